package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateCapture(&cfg.Capture)
	v.validateDispatcher(&cfg.Dispatcher)
	v.validateNotify(&cfg.Notify)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
}

func (v *Validator) validateCapture(cfg *CaptureConfig) {
	if cfg.StorageRoot != "" && !filepath.IsAbs(cfg.StorageRoot) {
		v.addError("capture.storage_root", cfg.StorageRoot, "must be an absolute path")
	}

	if cfg.DirName == "" {
		v.addError("capture.dir_name", cfg.DirName, "required")
	} else if cfg.DirName != filepath.Base(cfg.DirName) || cfg.DirName == "." || cfg.DirName == ".." {
		// The crash directory is created with a single mkdir.
		v.addError("capture.dir_name", cfg.DirName, "must be a single path element")
	}

	if cfg.MaxFiles < 0 {
		v.addError("capture.max_files", cfg.MaxFiles, "must be non-negative")
	}

	validTraceback := map[string]bool{
		"": true, "none": true, "single": true, "all": true, "system": true, "crash": true,
	}
	if !validTraceback[cfg.Traceback] {
		v.addError("capture.traceback", cfg.Traceback, "must be one of: none, single, all, system, crash")
	}
}

func (v *Validator) validateDispatcher(cfg *DispatcherConfig) {
	validModes := map[string]bool{
		"pool": true, "serial": true, "inline": true,
	}
	if !validModes[cfg.Mode] {
		v.addError("dispatcher.mode", cfg.Mode, "must be one of: pool, serial, inline")
	}

	if cfg.MaxConcurrent < 0 {
		v.addError("dispatcher.max_concurrent", cfg.MaxConcurrent, "must be non-negative")
	}
	if cfg.Mode == "serial" && cfg.QueueSize < 1 {
		v.addError("dispatcher.queue_size", cfg.QueueSize, "must be at least 1")
	}
	if cfg.DrainTimeout < 0 {
		v.addError("dispatcher.drain_timeout", cfg.DrainTimeout, "must be non-negative")
	}
}

func (v *Validator) validateNotify(cfg *NotifyConfig) {
	if cfg.Locale == "" {
		return
	}
	if _, err := language.Parse(strings.NewReplacer("_", "-").Replace(strings.Split(cfg.Locale, ".")[0])); err != nil {
		v.addError("notify.locale", cfg.Locale, "not a valid language tag")
	}
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
