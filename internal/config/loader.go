// Package config loads application configuration with the precedence
// runtime overrides > environment > config file > defaults.
//
// Environment variables use the INGRAIN_ prefix with underscores for
// nesting, e.g. INGRAIN_SERVER_PORT, INGRAIN_DATA_DIR, INGRAIN_LOG_LEVEL.
// The optional config file is ingrain.yaml in the working directory or
// under $HOME/.config/ingrain/.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	// DataDir roots all durable state: job markers under <DataDir>/jobs,
	// ledgers under <DataDir>/ledgers.
	DataDir string `mapstructure:"data_dir"`

	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig configures the control-surface HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig configures process logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// File, when set, duplicates logs to a rotated file.
	File string `mapstructure:"file"`
}

// JobsDir is where the control-signal store keeps job markers.
func (c *Config) JobsDir() string {
	return filepath.Join(c.DataDir, "jobs")
}

// LedgersDir is where per-source ledgers are stored.
func (c *Config) LedgersDir() string {
	return filepath.Join(c.DataDir, "ledgers")
}

// Load builds the configuration. Overrides, when given, take precedence
// over every other layer (used for flag values).
func Load(overrides ...map[string]any) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")

	v.SetConfigName("ingrain")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "ingrain"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("INGRAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows; defaults above
	// cover every key, plus the flat aliases below.
	if level := os.Getenv("INGRAIN_LOG_LEVEL"); level != "" {
		v.Set("logging.level", level)
	}

	// Overrides go through Set so they outrank the env layer.
	for _, layer := range overrides {
		applyOverrides(v, "", layer)
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func applyOverrides(v *viper.Viper, prefix string, layer map[string]any) {
	for key, value := range layer {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			applyOverrides(v, full, nested)
			continue
		}
		v.Set(full, value)
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "ingrain")
	}
	return ".ingrain"
}
