package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/splax/swapdeploy/pkg/deployerr"
)

// OrchestratorConfig is the CI-side configuration.
type OrchestratorConfig struct {
	TmpDir          string                  `mapstructure:"tmp_dir"`
	BootstrapBinary string                  `mapstructure:"bootstrap_binary"`
	ScriptName      string                  `mapstructure:"script_name"`
	BuildSource     string                  `mapstructure:"build_source"`
	BuildRepository string                  `mapstructure:"build_repository"`
	BuildRef        string                  `mapstructure:"build_ref"`
	EntryPoint      string                  `mapstructure:"entry_point"`
	DeployDirname   string                  `mapstructure:"deploy_dirname"`
	LogLevel        string                  `mapstructure:"log_level"`
	Invoke          InvokeConfig            `mapstructure:"invoke"`
	Notify          NotifyConfig            `mapstructure:"notify"`
	Targets         map[string]TargetConfig `mapstructure:"targets"`
}

type InvokeConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
}

type NotifyConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TargetConfig describes one remote server location. Environments override
// the paths of the target for a given environment name.
type TargetConfig struct {
	Host                  string                       `mapstructure:"host"`
	Port                  int                          `mapstructure:"port"`
	PublicPath            string                       `mapstructure:"public_path"`
	PublicURL             string                       `mapstructure:"public_url"`
	PrivatePath           string                       `mapstructure:"private_path"`
	KnownHosts            string                       `mapstructure:"known_hosts"`
	InsecureIgnoreHostKey bool                         `mapstructure:"insecure_ignore_host_key"`
	Environments          map[string]EnvironmentConfig `mapstructure:"environments"`
}

type EnvironmentConfig struct {
	PublicPath  string `mapstructure:"public_path"`
	PublicURL   string `mapstructure:"public_url"`
	PrivatePath string `mapstructure:"private_path"`
}

// ResolvedTarget is a target with its environment overrides applied.
type ResolvedTarget struct {
	Name                  string
	Environment           string
	Host                  string
	Port                  int
	PublicPath            string
	PublicURL             string
	PrivatePath           string
	KnownHosts            string
	InsecureIgnoreHostKey bool
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the SWAPDEPLOY_ prefix (e.g. SWAPDEPLOY_TMP_DIR).
func Load(path string) (*OrchestratorConfig, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SWAPDEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg OrchestratorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tmp_dir", os.TempDir())
	v.SetDefault("bootstrap_binary", DefaultScriptName)
	v.SetDefault("script_name", DefaultScriptName)
	v.SetDefault("build_source", ".")
	v.SetDefault("entry_point", DefaultEntryPoint)
	v.SetDefault("deploy_dirname", "deploy")
	v.SetDefault("log_level", "info")

	v.SetDefault("invoke.max_attempts", 3)
	v.SetDefault("invoke.connect_timeout", 60*time.Second)
	v.SetDefault("invoke.timeout", 120*time.Second)
	v.SetDefault("invoke.retry_interval", time.Second)

	v.SetDefault("notify.url", "")
	v.SetDefault("notify.token", "")
	v.SetDefault("notify.timeout", 10*time.Second)
}

// ResolveTarget looks up a target by name and applies the environment's
// overrides. Names are matched case-insensitively since viper lowercases keys.
func (c *OrchestratorConfig) ResolveTarget(name, environment string) (ResolvedTarget, error) {
	target, ok := c.Targets[strings.ToLower(name)]
	if !ok {
		return ResolvedTarget{}, deployerr.Configuration(fmt.Sprintf("unknown target %q", name))
	}
	resolved := ResolvedTarget{
		Name:                  name,
		Environment:           environment,
		Host:                  target.Host,
		Port:                  target.Port,
		PublicPath:            target.PublicPath,
		PublicURL:             target.PublicURL,
		PrivatePath:           target.PrivatePath,
		KnownHosts:            target.KnownHosts,
		InsecureIgnoreHostKey: target.InsecureIgnoreHostKey,
	}
	if env, ok := target.Environments[strings.ToLower(environment)]; ok {
		if env.PublicPath != "" {
			resolved.PublicPath = env.PublicPath
		}
		if env.PublicURL != "" {
			resolved.PublicURL = env.PublicURL
		}
		if env.PrivatePath != "" {
			resolved.PrivatePath = env.PrivatePath
		}
	} else if len(target.Environments) > 0 {
		return ResolvedTarget{}, deployerr.Configuration(fmt.Sprintf("unknown environment %q for target %q", environment, name))
	}
	if resolved.Port == 0 {
		resolved.Port = 22
	}
	if resolved.PublicPath == "" || resolved.PublicURL == "" || resolved.PrivatePath == "" {
		return ResolvedTarget{}, deployerr.Configuration(fmt.Sprintf("target %q (%s) needs public_path, public_url and private_path", name, environment))
	}
	resolved.PublicURL = strings.TrimRight(resolved.PublicURL, "/")
	return resolved, nil
}
