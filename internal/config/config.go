package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/episim/internal/observability"
)

// Config holds the application configuration shared by every subcommand.
// Scenario files configure individual runs; this covers the surrounding
// machinery.
type Config struct {
	Logging  observability.Config `mapstructure:"logging" yaml:"logging"`
	Output   OutputConfig         `mapstructure:"output" yaml:"output"`
	Database DatabaseConfig       `mapstructure:"database" yaml:"database"`
	Run      RunConfig            `mapstructure:"run" yaml:"run"`
}

// OutputConfig selects the report format and destination.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// DatabaseConfig selects the run archive backend.
type DatabaseConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	URL     string `mapstructure:"url" yaml:"-"`
}

// RunConfig controls ensemble execution.
type RunConfig struct {
	Runs     int `mapstructure:"runs" yaml:"runs"`
	Parallel int `mapstructure:"parallel" yaml:"parallel"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logging --
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.log_file", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)
	v.SetDefault("logging.compress", true)

	// -- Output --
	v.SetDefault("output.format", "json")
	v.SetDefault("output.path", "")

	// -- Database --
	v.SetDefault("database.backend", "memory")
	v.SetDefault("database.url", "")

	// -- Run --
	v.SetDefault("run.runs", 1)
	v.SetDefault("run.parallel", 0)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for connection strings so credentials stay
	// out of config files.
	v.BindEnv("database.url", "EPISIM_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Output.Format {
	case "json", "csv", "archive", "zst":
	default:
		return fmt.Errorf("output.format must be one of json, csv, archive, zst; got %q", c.Output.Format)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database configuration invalid: %w", err)
	}
	if err := c.Run.Validate(); err != nil {
		return fmt.Errorf("run configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the archive backend selection.
func (d *DatabaseConfig) Validate() error {
	switch d.Backend {
	case "", "memory":
	case "postgres":
		if d.URL == "" {
			return fmt.Errorf("backend %q needs database.url (or EPISIM_DATABASE_URL)", d.Backend)
		}
	case "sqlite":
		if d.URL == "" {
			return fmt.Errorf("backend %q needs database.url pointing at the database file", d.Backend)
		}
	default:
		return fmt.Errorf("unsupported backend %q", d.Backend)
	}
	return nil
}

// Validate checks the ensemble settings.
func (r *RunConfig) Validate() error {
	if r.Runs < 1 {
		return fmt.Errorf("runs must be at least 1, got %d", r.Runs)
	}
	if r.Parallel < 0 {
		return fmt.Errorf("parallel must be non-negative, got %d", r.Parallel)
	}
	return nil
}
