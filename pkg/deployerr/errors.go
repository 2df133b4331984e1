// Package deployerr defines the error kinds shared by the orchestrator and the
// remote bootstrap.
package deployerr

import (
	"errors"
)

var (
	// ErrConfiguration indicates a bad or missing precondition an operator must fix.
	ErrConfiguration = errors.New("configuration error")
	// ErrIO indicates a filesystem operation failed.
	ErrIO = errors.New("io error")
	// ErrInstall indicates the install hook is missing or failed.
	ErrInstall = errors.New("install error")
	// ErrNetwork indicates the bootstrap could not be reached.
	ErrNetwork = errors.New("network error")
	// ErrDeployment indicates the remote side reported failure or returned garbage.
	ErrDeployment = errors.New("deployment error")
	// ErrResourceExhaustion indicates a random name could not be found.
	ErrResourceExhaustion = errors.New("resource exhaustion error")
	// ErrConcurrentRun indicates another bootstrap run holds the deploy lock.
	ErrConcurrentRun = errors.New("concurrent run error")
)

// typeNames is ordered: an error matching several kinds reports the first.
var typeNames = []struct {
	kind error
	name string
}{
	{ErrConcurrentRun, "ConcurrentRunError"},
	{ErrConfiguration, "ConfigurationError"},
	{ErrInstall, "InstallError"},
	{ErrIO, "IOError"},
	{ErrNetwork, "NetworkError"},
	{ErrDeployment, "DeploymentError"},
	{ErrResourceExhaustion, "ResourceExhaustionError"},
}

// Error carries a kind, a human readable message and an optional cause.
// Error() returns the message alone so callers can match it verbatim.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func newError(kind error, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Configuration(msg string) error { return newError(ErrConfiguration, msg, nil) }

func IO(msg string, err error) error { return newError(ErrIO, msg, err) }

func Install(msg string, err error) error { return newError(ErrInstall, msg, err) }

func Network(msg string) error { return newError(ErrNetwork, msg, nil) }

func Deployment(msg string) error { return newError(ErrDeployment, msg, nil) }

func ResourceExhaustion(msg string) error { return newError(ErrResourceExhaustion, msg, nil) }

func ConcurrentRun(msg string) error { return newError(ErrConcurrentRun, msg, nil) }

// TypeName returns the wire name of the error kind, e.g. "IOError".
// Errors without a known kind are reported as "Error".
func TypeName(err error) string {
	for _, t := range typeNames {
		if errors.Is(err, t.kind) {
			return t.name
		}
	}
	return "Error"
}
