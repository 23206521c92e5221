package logging

import "strings"

// Config controls logger initialization.
type Config struct {
	// ServiceName identifies the process emitting logs.
	ServiceName string

	// Environment is the deployment environment (development, production, ...).
	Environment string

	// LogLevel controls verbosity (debug, info, warn, error).
	LogLevel string

	// LogFile is an optional path for a size-rotated log sink. Empty means stdout.
	LogFile string
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName: "filterstream",
		Environment: "development",
		LogLevel:    "info",
	}
}

// WithServiceName sets the service name.
func (c Config) WithServiceName(name string) Config {
	c.ServiceName = name
	return c
}

// WithEnvironment sets the environment.
func (c Config) WithEnvironment(env string) Config {
	c.Environment = env
	return c
}

// WithLogLevel sets the log level.
func (c Config) WithLogLevel(level string) Config {
	c.LogLevel = level
	return c
}

// WithLogFile sets the rotated log file path.
func (c Config) WithLogFile(path string) Config {
	c.LogFile = path
	return c
}

// IsDevelopment returns true if environment is development.
func (c Config) IsDevelopment() bool {
	return strings.ToLower(c.Environment) == "development"
}
