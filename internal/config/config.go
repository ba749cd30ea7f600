// Package config loads the daemon configuration from defaults, an optional
// YAML file and MOGWAI_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MOGWAI"

// Config holds the daemon settings.
type Config struct {
	SocketPath            string        `mapstructure:"socket_path"`
	HTTPAddr              string        `mapstructure:"http_addr"`
	RPCSecret             string        `mapstructure:"rpc_secret"`
	ConnectionsFile       string        `mapstructure:"connections_file"`
	MaxEntries            int           `mapstructure:"max_entries"`
	MaxActiveEntries      int           `mapstructure:"max_active_entries"`
	InactivityTimeout     time.Duration `mapstructure:"inactivity_timeout"`
	PrivilegedExecutables []string      `mapstructure:"privileged_executables"`
	Debug                 bool          `mapstructure:"debug"`
	LogFile               string        `mapstructure:"log_file"`
}

var keys = []string{
	"socket_path",
	"http_addr",
	"rpc_secret",
	"connections_file",
	"max_entries",
	"max_active_entries",
	"inactivity_timeout",
	"privileged_executables",
	"debug",
	"log_file",
}

// DefaultSocketPath is used when no socket path is configured.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), "mogwai.sock")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("socket_path", DefaultSocketPath())
	v.SetDefault("http_addr", "")
	v.SetDefault("rpc_secret", "")
	v.SetDefault("connections_file", "")
	v.SetDefault("max_entries", 1024)
	v.SetDefault("max_active_entries", 0)
	v.SetDefault("inactivity_timeout", 30*time.Second)
	v.SetDefault("privileged_executables", []string{})
	v.SetDefault("debug", false)
	v.SetDefault("log_file", "")
}

// Load reads the configuration. An empty path skips the config file; a
// named file must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		// Unmarshal only sees env values for bound keys.
		_ = v.BindEnv(k)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the limits.
func (c *Config) Validate() error {
	var errs []error
	if c.SocketPath == "" {
		errs = append(errs, errors.New("socket_path must not be empty"))
	}
	if c.MaxEntries < 1 {
		errs = append(errs, fmt.Errorf("max_entries must be at least 1, got %d", c.MaxEntries))
	}
	if c.MaxActiveEntries < 0 {
		errs = append(errs, fmt.Errorf("max_active_entries must not be negative, got %d", c.MaxActiveEntries))
	}
	if c.InactivityTimeout < 0 {
		errs = append(errs, fmt.Errorf("inactivity_timeout must not be negative, got %s", c.InactivityTimeout))
	}
	if c.HTTPAddr != "" && c.RPCSecret == "" {
		errs = append(errs, errors.New("rpc_secret is required when http_addr is set"))
	}
	return errors.Join(errs...)
}
