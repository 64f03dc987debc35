// Package config loads bracefmt settings from defaults, an optional YAML
// file and BRACEFMT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// BRACEFMT_CHECK_WORKERS=4.
const EnvPrefix = "BRACEFMT"

// Config holds the complete application configuration.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Store  StoreConfig  `mapstructure:"store"`
	Check  CheckConfig  `mapstructure:"check"`
	Server ServerConfig `mapstructure:"server"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig holds the results database location. An empty path means
// .bracefmt/results.db under the repository root.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// CheckConfig holds batch check configuration.
type CheckConfig struct {
	Workers      int      `mapstructure:"workers"`
	Parallel     bool     `mapstructure:"parallel"`
	Languages    []string `mapstructure:"languages"`
	GrammarCheck bool     `mapstructure:"grammar_check"`
	Policy       string   `mapstructure:"policy"`
	Rewrite      bool     `mapstructure:"rewrite"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// Address returns host:port.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// NewViper returns a Viper instance with defaults, environment binding and
// cfgFile (or the first of ./bracefmt.yaml, ./.bracefmt/bracefmt.yaml) read
// in. A missing default config file is not an error; a missing explicit one
// is.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("bracefmt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./.bracefmt")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config: %w", err)
		}
		// Config file not found; use defaults and environment
	}
	return v, nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("store.path", "")

	v.SetDefault("check.workers", runtime.NumCPU())
	v.SetDefault("check.parallel", true)
	v.SetDefault("check.languages", []string{})
	v.SetDefault("check.grammar_check", false)
	v.SetDefault("check.policy", "default")
	v.SetDefault("check.rewrite", false)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)
}

// New decodes and validates the configuration held by v.
func New(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unable to decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"json", "text"}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !slices.Contains(validLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level must be one of %s, got %q", strings.Join(validLevels, ", "), c.Log.Level)
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("log.format must be one of %s, got %q", strings.Join(validFormats, ", "), c.Log.Format)
	}
	if c.Check.Workers < 1 {
		return errors.New("check.workers must be at least 1")
	}
	if c.Check.Policy == "" {
		return errors.New("check.policy is required")
	}
	if c.Server.MaxBodyBytes < 1 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return errors.New("server timeouts must not be negative")
	}
	return nil
}
