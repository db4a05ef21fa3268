package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/config"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/i18n"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/logging"
)

// loadConfig loads and validates configuration using the global viper
// instance, so bound flags take precedence. It also returns the config file
// used, if any.
func loadConfig() (*config.Config, string, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, "", fmt.Errorf("validating config: %w", err)
	}
	return cfg, loader.ConfigFile(), nil
}

// newLogger creates a logger from config. When log.file is set, output goes
// there instead of out. The returned func releases the file.
func newLogger(cfg *config.Config, out io.Writer) (*logging.Logger, func(), error) {
	logCfg := logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	}
	if cfg.Log.File == "" {
		return logging.New(logCfg), func() {}, nil
	}

	logger, closer, err := logging.NewFile(logCfg, cfg.Log.File)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = closer.Close() }, nil
}

// appInfo describes this binary for dump headers. Placeholder build values
// are left empty so the collector falls back to the embedded build info.
func appInfo() diagnostics.AppInfo {
	info := diagnostics.AppInfo{Name: config.AppName}
	if appVersion != "" && appVersion != "dev" {
		info.Version = appVersion
	}
	if appCommit != "" && appCommit != "none" {
		info.Code = appCommit
	}
	return info
}

// serviceOptions maps configuration onto crash capture options.
func serviceOptions(cfg *config.Config) diagnostics.Options {
	return diagnostics.Options{
		App:            appInfo(),
		StorageRoot:    cfg.Capture.StorageRoot,
		DirName:        cfg.Capture.DirName,
		Debug:          cfg.Capture.Debug,
		UTC:            cfg.Capture.UTC,
		SubSecond:      cfg.Capture.SubSecond,
		MaxFiles:       cfg.Capture.MaxFiles,
		Redact:         cfg.Capture.Redact,
		Compress:       cfg.Capture.Compress,
		FatalOutput:    cfg.Capture.FatalOutput,
		Traceback:      cfg.Capture.Traceback,
		DispatcherMode: cfg.Dispatcher.Mode,
		MaxConcurrent:  cfg.Dispatcher.MaxConcurrent,
		QueueSize:      cfg.Dispatcher.QueueSize,
		DrainTimeout:   cfg.Dispatcher.DrainTimeout,
	}
}

// newService builds an uninitialized crash capture service.
func newService(cfg *config.Config, logger *logging.Logger, deps diagnostics.Deps) (*diagnostics.Service, error) {
	deps.Logger = logger
	if deps.Messages == nil {
		deps.Messages = i18n.New(cfg.Notify.Locale)
	}
	svc, err := diagnostics.New(serviceOptions(cfg), deps)
	if err != nil {
		return nil, fmt.Errorf("creating crash capture: %w", err)
	}
	return svc, nil
}

// openWriter loads config and returns the dump writer it describes, for
// commands that only read or manage dumps. No dispatcher is started.
func openWriter() (*diagnostics.DumpWriter, *config.Config, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	writer, err := diagnostics.NewWriter(serviceOptions(cfg), nil, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening crash dumps: %w", err)
	}
	return writer, cfg, nil
}

// ensureStorageRoot creates the storage root for hosts that own it. The
// capture pipeline itself treats a missing root as unavailable storage.
func ensureStorageRoot(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.Capture.StorageRoot, 0o750); err != nil {
		return fmt.Errorf("creating storage root: %w", err)
	}
	return nil
}

// useColor reports whether styled output is wanted.
func useColor() bool {
	return !noColor && os.Getenv("NO_COLOR") == ""
}
