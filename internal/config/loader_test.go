package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate keeps the developer's own config files out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestLoader_Defaults(t *testing.T) {
	isolate(t)

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "auto")
	}

	if cfg.Capture.DirName != "crash" {
		t.Errorf("Capture.DirName = %q, want %q", cfg.Capture.DirName, "crash")
	}
	if cfg.Capture.StorageRoot != DefaultStorageRoot() {
		t.Errorf("Capture.StorageRoot = %q, want %q", cfg.Capture.StorageRoot, DefaultStorageRoot())
	}
	if cfg.Capture.Debug {
		t.Error("Capture.Debug = true, want false")
	}
	if !cfg.Capture.FatalOutput {
		t.Error("Capture.FatalOutput = false, want true")
	}
	if cfg.Capture.Traceback != "all" {
		t.Errorf("Capture.Traceback = %q, want %q", cfg.Capture.Traceback, "all")
	}

	if cfg.Dispatcher.Mode != "pool" {
		t.Errorf("Dispatcher.Mode = %q, want %q", cfg.Dispatcher.Mode, "pool")
	}
	if cfg.Dispatcher.QueueSize != 64 {
		t.Errorf("Dispatcher.QueueSize = %d, want %d", cfg.Dispatcher.QueueSize, 64)
	}
	if cfg.Dispatcher.DrainTimeout != 5*time.Second {
		t.Errorf("Dispatcher.DrainTimeout = %v, want %v", cfg.Dispatcher.DrainTimeout, 5*time.Second)
	}
	if !cfg.UI.AltScreen {
		t.Error("UI.AltScreen = false, want true")
	}

	if loader.ConfigFile() != "" {
		t.Errorf("ConfigFile() = %q, want empty", loader.ConfigFile())
	}
}

func TestLoader_DefaultsPassValidation(t *testing.T) {
	isolate(t)

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig() error = %v", err)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("CRASHCAPTURE_LOG_LEVEL", "debug")
	t.Setenv("CRASHCAPTURE_CAPTURE_DEBUG", "true")
	t.Setenv("CRASHCAPTURE_CAPTURE_MAX_FILES", "20")
	t.Setenv("CRASHCAPTURE_DISPATCHER_MODE", "serial")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if !cfg.Capture.Debug {
		t.Error("Capture.Debug = false, want true")
	}
	if cfg.Capture.MaxFiles != 20 {
		t.Errorf("Capture.MaxFiles = %d, want %d", cfg.Capture.MaxFiles, 20)
	}
	if cfg.Dispatcher.Mode != "serial" {
		t.Errorf("Dispatcher.Mode = %q, want %q", cfg.Dispatcher.Mode, "serial")
	}
}

func TestLoader_ConfigFileOverride(t *testing.T) {
	isolate(t)

	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	configContent := `
log:
  level: warn
  format: json
capture:
  storage_root: /srv/dumps
  utc: true
  compress: true
dispatcher:
  mode: serial
  queue_size: 8
  drain_timeout: 250ms
notify:
  locale: es
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	if cfg.Capture.StorageRoot != "/srv/dumps" {
		t.Errorf("Capture.StorageRoot = %q, want %q", cfg.Capture.StorageRoot, "/srv/dumps")
	}
	if !cfg.Capture.UTC || !cfg.Capture.Compress {
		t.Errorf("Capture.UTC/Compress = %v/%v, want true/true", cfg.Capture.UTC, cfg.Capture.Compress)
	}
	if cfg.Capture.DirName != "crash" {
		t.Errorf("Capture.DirName = %q, want default %q", cfg.Capture.DirName, "crash")
	}
	if cfg.Dispatcher.QueueSize != 8 {
		t.Errorf("Dispatcher.QueueSize = %d, want %d", cfg.Dispatcher.QueueSize, 8)
	}
	if cfg.Dispatcher.DrainTimeout != 250*time.Millisecond {
		t.Errorf("Dispatcher.DrainTimeout = %v, want %v", cfg.Dispatcher.DrainTimeout, 250*time.Millisecond)
	}
	if cfg.Notify.Locale != "es" {
		t.Errorf("Notify.Locale = %q, want %q", cfg.Notify.Locale, "es")
	}
	if loader.ConfigFile() != configPath {
		t.Errorf("ConfigFile() = %q, want %q", loader.ConfigFile(), configPath)
	}
}

func TestLoader_ProjectFileFound(t *testing.T) {
	isolate(t)

	if err := os.WriteFile(".crashcapture.yaml", []byte("capture:\n  subsecond: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Capture.SubSecond {
		t.Error("Capture.SubSecond = false, want true from project file")
	}
}

func TestLoader_UserFileFound(t *testing.T) {
	isolate(t)

	userFile, err := UserConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(userFile, []byte("capture:\n  max_files: 3\n")); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Capture.MaxFiles != 3 {
		t.Errorf("Capture.MaxFiles = %d, want 3 from user file", cfg.Capture.MaxFiles)
	}
}

func TestLoader_InvalidConfigFile(t *testing.T) {
	isolate(t)

	configPath := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(configPath, []byte("capture: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewLoader().WithConfigFile(configPath).Load(); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}
