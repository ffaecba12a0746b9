package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	configData Config
	v          *viper.Viper
)

// Config holds all configuration settings.
type Config struct {
	// Control server configuration
	Server struct {
		Host        string
		Port        int
		MetricsPort int
	}
	// Plugin configuration
	Plugin struct {
		Dir              string        // default directory scanned by rescan
		Static           []string      // plugins loaded at boot, not controllable at runtime
		HandshakeTimeout time.Duration // bound on how long a startup cohort may stay unresolved
		Workers          int           // handshake worker pool size
	}
	// Compatibility switches
	Compat struct {
		DeprecatedAPIs bool
	}
	// Logging configuration
	Log struct {
		Level  string
		Format string
	}
}

// Initialize sets up the configuration system.
func Initialize() error {
	v = viper.New()

	// Set config name and paths
	v.SetConfigName("config")       // name of config file (without extension)
	v.SetConfigType("yaml")         // config file type
	v.AddConfigPath(".")            // optionally look for config in working directory
	v.AddConfigPath("$HOME/.plugd") // look for config in .plugd directory in home
	v.AddConfigPath("/etc/plugd/")  // path to look for the config file in

	// Set default values
	setDefaults()

	// Environment variables
	v.SetEnvPrefix("PLUGD") // prefix for env vars
	v.AutomaticEnv()        // read in environment variables that match
	v.SetEnvKeyReplacer(    // replace dots with underscores in env vars
		strings.NewReplacer(".", "_"),
	)

	// Create config file if it doesn't exist
	if err := ensureConfig(); err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}

	// Read in config file
	if err := v.ReadInConfig(); err != nil {
		// It's okay if we can't find a config file, we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal config into struct
	if err := v.Unmarshal(&configData); err != nil {
		return fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return nil
}

// setDefaults sets default values for all configuration options.
func setDefaults() {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 7301)
	v.SetDefault("server.metricsport", 7302)

	// Plugin defaults
	v.SetDefault("plugin.dir", "plugins")
	v.SetDefault("plugin.static", []string{})
	v.SetDefault("plugin.handshaketimeout", "60s")
	v.SetDefault("plugin.workers", 8)

	// Compatibility defaults
	v.SetDefault("compat.deprecatedapis", false)

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "human")
}

// ensureConfig creates a default config file if none exists.
func ensureConfig() error {
	// Check if config file exists
	if _, err := os.Stat(filepath.Join(os.Getenv("HOME"), ".plugd")); os.IsNotExist(err) {
		// Create directory
		if err := os.MkdirAll(filepath.Join(os.Getenv("HOME"), ".plugd"), 0o755); err != nil {
			return err
		}
	}

	configFile := filepath.Join(os.Getenv("HOME"), ".plugd", "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		// Create default config file
		defaultConfig := `# plugd Configuration File
server:
  host: localhost
  port: 7301
  metricsport: 7302

plugin:
  dir: plugins
  static: []
  handshaketimeout: 60s
  workers: 8

compat:
  deprecatedapis: false

log:
  level: info
  format: human
`
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o644); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the current configuration.
func Get() *Config {
	return &configData
}

// GetViper returns the viper instance.
func GetViper() *viper.Viper {
	return v
}
