package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	// BootstrapConfigName is the file uploaded next to the bootstrap binary.
	BootstrapConfigName = "deploy.json"
	// DefaultScriptName is the file name of the uploaded bootstrap binary.
	DefaultScriptName = "swapdeploy-bootstrap"
	// DefaultArchiveName is the file name of the uploaded code archive.
	DefaultArchiveName = "deploy.zip"
	// DefaultEntryPoint is the install hook executable inside the live tree.
	DefaultEntryPoint = "swapdeploy-install"
)

// BootstrapConfig is rendered by the orchestrator and read by the remote
// bootstrap. Every field is optional so the bootstrap can run standalone.
type BootstrapConfig struct {
	DeployPath string            `json:"deploy_path"`
	PublicPath string            `json:"public_path"`
	Args       map[string]string `json:"args,omitempty"`
	SealedArgs []byte            `json:"sealed_args,omitempty"`
	TokenHash  []byte            `json:"token_hash,omitempty"`
	EntryPoint string            `json:"entry_point,omitempty"`
	ScriptName string            `json:"script_name,omitempty"`
}

// WithDefaults fills empty optional fields.
func (c BootstrapConfig) WithDefaults() BootstrapConfig {
	if c.Args == nil {
		c.Args = map[string]string{}
	}
	if c.EntryPoint == "" {
		c.EntryPoint = DefaultEntryPoint
	}
	if c.ScriptName == "" {
		c.ScriptName = DefaultScriptName
	}
	return c
}

// LoadBootstrapConfig reads the config file at path. A missing file yields
// the empty defaults. SWAPDEPLOY_DEPLOY_PATH and SWAPDEPLOY_PUBLIC_PATH
// override the file values.
func LoadBootstrapConfig(path string) (BootstrapConfig, error) {
	var cfg BootstrapConfig
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return BootstrapConfig{}, fmt.Errorf("read bootstrap config: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return BootstrapConfig{}, fmt.Errorf("decode bootstrap config: %w", err)
		}
	}
	cfg.DeployPath = GetString("SWAPDEPLOY_DEPLOY_PATH", cfg.DeployPath)
	cfg.PublicPath = GetString("SWAPDEPLOY_PUBLIC_PATH", cfg.PublicPath)
	return cfg.WithDefaults(), nil
}

// Marshal encodes the config for upload.
func (c BootstrapConfig) Marshal() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
