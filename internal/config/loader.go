package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. CRASHCAPTURE_CAPTURE_DEBUG.
const EnvPrefix = "CRASHCAPTURE"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: EnvPrefix,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (CRASHCAPTURE_*)
// 3. Project config (.crashcapture.yaml in current directory)
// 4. User config (~/.config/crashcapture/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	configFile := l.configFile
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Capture.StorageRoot == "" {
		cfg.Capture.StorageRoot = DefaultStorageRoot()
	}
	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
	l.v.SetDefault("log.file", "")

	// Capture defaults
	l.v.SetDefault("capture.storage_root", "")
	l.v.SetDefault("capture.dir_name", "crash")
	l.v.SetDefault("capture.debug", false)
	l.v.SetDefault("capture.utc", false)
	l.v.SetDefault("capture.subsecond", false)
	l.v.SetDefault("capture.max_files", 0)
	l.v.SetDefault("capture.redact", false)
	l.v.SetDefault("capture.compress", false)
	l.v.SetDefault("capture.fatal_output", true)
	l.v.SetDefault("capture.traceback", "all")

	// Dispatcher defaults
	l.v.SetDefault("dispatcher.mode", "pool")
	l.v.SetDefault("dispatcher.max_concurrent", 0)
	l.v.SetDefault("dispatcher.queue_size", 64)
	l.v.SetDefault("dispatcher.drain_timeout", "5s")

	// Notify defaults
	l.v.SetDefault("notify.locale", "")

	// UI defaults
	l.v.SetDefault("ui.alt_screen", true)
}

// findConfigFile returns the first existing config file: the project file
// in the working directory, then the user file.
func findConfigFile() string {
	candidates := []string{"." + AppName + ".yaml"}
	if userFile, err := UserConfigPath(); err == nil {
		candidates = append(candidates, userFile)
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// IsSet checks if a key has been set.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// AllSettings returns all settings as a map.
func (l *Loader) AllSettings() map[string]interface{} {
	return l.v.AllSettings()
}
