// Package config provides configuration management for the FlowMail
// dependency core using Viper for flexible configuration loading from
// files, environment variables, and command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the FLOWMAIL_ prefix. It manages the bridge server
// settings, the fixture provider harness, and logging options.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/flowmail/flowmail/internal/errors"
)

// DefaultConfigFile is the config file looked up in the working directory.
const DefaultConfigFile = ".flowmail.yml"

type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Fixtures FixturesConfig `yaml:"fixtures" mapstructure:"fixtures"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host" mapstructure:"host"`
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type FixturesConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir        string `yaml:"dir" mapstructure:"dir"`
	DebounceMs int    `yaml:"debounce_ms" mapstructure:"debounce_ms"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 7333,
			// Empty slice, not nil: the yaml round-trip in WriteDefault
			// decodes an empty sequence back to an empty slice.
			AllowedOrigins: []string{},
		},
		Fixtures: FixturesConfig{
			Enabled:    false,
			Dir:        "./fixtures",
			DebounceMs: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from viper's bound sources, applying
// defaults for anything unset and validating the result.
func Load() (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix("FLOWMAIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; everything else is not.
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, errors.NewConfigError("read_failed", fmt.Sprintf("failed to read config: %v", err))
		}
	}

	cfg := Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, errors.NewConfigError("unmarshal_failed", fmt.Sprintf("failed to parse config: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.NewConfigError("invalid_port",
			fmt.Sprintf("server port %d out of range", c.Server.Port))
	}
	if c.Server.Host == "" {
		return errors.NewConfigError("invalid_host", "server host must not be empty")
	}
	if c.Fixtures.Enabled && c.Fixtures.Dir == "" {
		return errors.NewConfigError("invalid_fixtures_dir",
			"fixtures are enabled but no directory is configured")
	}
	if c.Fixtures.DebounceMs < 0 {
		return errors.NewConfigError("invalid_debounce",
			fmt.Sprintf("fixture debounce %dms must not be negative", c.Fixtures.DebounceMs))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return errors.NewConfigError("invalid_log_format",
			fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	return nil
}

// WriteDefault writes the built-in configuration as a YAML file, used by
// the init command to scaffold a project.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.NewConfigError("config_exists",
			fmt.Sprintf("config file %s already exists", path))
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return errors.NewConfigError("marshal_failed", fmt.Sprintf("failed to marshal defaults: %v", err))
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewConfigError("write_failed", fmt.Sprintf("failed to write %s: %v", path, err))
	}

	return nil
}

func setDefaults() {
	d := Default()
	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	viper.SetDefault("fixtures.enabled", d.Fixtures.Enabled)
	viper.SetDefault("fixtures.dir", d.Fixtures.Dir)
	viper.SetDefault("fixtures.debounce_ms", d.Fixtures.DebounceMs)
	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)
}
