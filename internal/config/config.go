package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Capture    CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" yaml:"dispatcher"`
	Notify     NotifyConfig     `mapstructure:"notify" yaml:"notify"`
	UI         UIConfig         `mapstructure:"ui" yaml:"ui"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// CaptureConfig configures where and how crash dumps are written.
type CaptureConfig struct {
	StorageRoot string `mapstructure:"storage_root" yaml:"storage_root"`
	DirName     string `mapstructure:"dir_name" yaml:"dir_name"`
	// Debug shows raw fault messages to the user instead of the generic text.
	Debug     bool `mapstructure:"debug" yaml:"debug"`
	UTC       bool `mapstructure:"utc" yaml:"utc"`
	SubSecond bool `mapstructure:"subsecond" yaml:"subsecond"`
	MaxFiles  int  `mapstructure:"max_files" yaml:"max_files"`
	Redact    bool `mapstructure:"redact" yaml:"redact"`
	Compress  bool `mapstructure:"compress" yaml:"compress"`
	// FatalOutput mirrors unrecoverable runtime failures into fatal.log.
	FatalOutput bool   `mapstructure:"fatal_output" yaml:"fatal_output"`
	Traceback   string `mapstructure:"traceback" yaml:"traceback"`
}

// DispatcherConfig configures how dump work runs in the background.
type DispatcherConfig struct {
	Mode          string        `mapstructure:"mode" yaml:"mode"`
	MaxConcurrent int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	QueueSize     int           `mapstructure:"queue_size" yaml:"queue_size"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout" yaml:"drain_timeout"`
}

// NotifyConfig configures user notifications.
type NotifyConfig struct {
	// Locale selects the notification language; empty reads LANG.
	Locale string `mapstructure:"locale" yaml:"locale"`
}

// UIConfig configures the interactive demo.
type UIConfig struct {
	AltScreen bool `mapstructure:"alt_screen" yaml:"alt_screen"`
}
