// Package config loads gridboard configuration from defaults, an optional
// YAML file, GRIDBOARD_-prefixed environment variables and CLI flags, in
// ascending precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Defaults.
const (
	DefaultListenAddr = ":8080"
	DefaultBackend    = "memory"
	DefaultDataDir    = "data"
	DefaultDatabase   = "gridboard.db"
	DefaultWidgetsDir = "widgets"
)

// Storage backend names accepted in storage_backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the resolved gridboard configuration.
type Config struct {
	ListenAddr     string `koanf:"listen_addr"`
	StorageBackend string `koanf:"storage_backend"`
	DataDir        string `koanf:"data_dir"`
	DatabasePath   string `koanf:"database"`
	WidgetsDir     string `koanf:"widgets_dir"`
	WatchWidgets   bool   `koanf:"watch_widgets"`
	SessionKey     string `koanf:"session_key"`
	Verbose        bool   `koanf:"verbose"`
}

var configFileUsed string

// findConfigFile finds the config file to use.
// Priority: explicit path > gridboard.yaml > gridboard.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"gridboard.yaml", "gridboard.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load resolves the configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"listen_addr":     DefaultListenAddr,
		"storage_backend": DefaultBackend,
		"data_dir":        DefaultDataDir,
		"database":        DefaultDatabase,
		"widgets_dir":     DefaultWidgetsDir,
		"watch_widgets":   false,
		"session_key":     "",
		"verbose":         false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables: GRIDBOARD_LISTEN_ADDR -> listen_addr
	if err := k.Load(env.Provider("GRIDBOARD_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "GRIDBOARD_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q (want memory, file or sqlite)", c.StorageBackend)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	return nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}
