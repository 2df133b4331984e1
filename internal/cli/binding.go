// Package cli binds command line options and the environment to a deploy
// target.
package cli

import (
	"strings"

	"github.com/splax/swapdeploy/pkg/deployerr"
)

// PasswordEnv names the environment variable carrying the SFTP password.
const PasswordEnv = "PASSWORD"

// Values are the raw inputs collected from flags and the environment.
type Values struct {
	Target      string
	Environment string
	Username    string
	Password    string
}

// Binding is a validated set of Values.
type Binding struct {
	Target      string
	Environment string
	Username    string
	Password    string
}

// Bind checks that every value is present, in declaration order. A missing
// value is a configuration error.
func Bind(v Values) (Binding, error) {
	if strings.TrimSpace(v.Target) == "" {
		return Binding{}, deployerr.Configuration("Command line option --target=... must be set.")
	}
	if strings.TrimSpace(v.Environment) == "" {
		return Binding{}, deployerr.Configuration("Command line option --environment=... must be set.")
	}
	if strings.TrimSpace(v.Username) == "" {
		return Binding{}, deployerr.Configuration("Command line option --username=... must be set.")
	}
	if v.Password == "" {
		return Binding{}, deployerr.Configuration("Environment variable PASSWORD=... must be set.")
	}
	return Binding{
		Target:      v.Target,
		Environment: v.Environment,
		Username:    v.Username,
		Password:    v.Password,
	}, nil
}

// Args are the binding values handed to the install hook.
func (b Binding) Args() map[string]string {
	return map[string]string{
		"target":      b.Target,
		"environment": b.Environment,
	}
}
