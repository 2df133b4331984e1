package config

import "time"

// ErrorLogConfig sizes the bootstrap's rotating error log.
type ErrorLogConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// RuntimeConfig holds host-level settings of the bootstrap binary. They come
// from the environment of the web server, not from deploy.json.
type RuntimeConfig struct {
	LogLevel          string
	TextLog           bool
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	ErrorLog          ErrorLogConfig
}

// LoadRuntimeConfig constructs a RuntimeConfig from environment variables.
func LoadRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		LogLevel:          GetString("SWAPDEPLOY_LOG_LEVEL", "info"),
		TextLog:           GetBool("SWAPDEPLOY_TEXT_LOG", false),
		ReadHeaderTimeout: GetDuration("SWAPDEPLOY_READ_HEADER_TIMEOUT", 5*time.Second),
		ShutdownTimeout:   GetDuration("SWAPDEPLOY_SHUTDOWN_TIMEOUT", 10*time.Second),
		ErrorLog: ErrorLogConfig{
			MaxSizeMB:  GetInt("SWAPDEPLOY_ERROR_LOG_MAX_SIZE_MB", 5),
			MaxBackups: GetInt("SWAPDEPLOY_ERROR_LOG_MAX_BACKUPS", 3),
			MaxAgeDays: GetInt("SWAPDEPLOY_ERROR_LOG_MAX_AGE_DAYS", 90),
			Compress:   GetBool("SWAPDEPLOY_ERROR_LOG_COMPRESS", false),
		},
	}
}
