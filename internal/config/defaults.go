package config

import (
	"os"
	"path/filepath"
)

// AppName names config files, env prefixes and the default storage root.
const AppName = "crashcapture"

// DefaultConfigYAML is written by `crashcapture config init`.
const DefaultConfigYAML = `# crashcapture configuration
#
# Values not specified here use built-in defaults.

log:
  level: info
  format: auto

capture:
  # Root of the storage medium; dumps go to <storage_root>/<dir_name>/.
  # Defaults to the user cache directory.
  # storage_root: /var/tmp/crashcapture
  dir_name: crash
  # Show raw fault messages instead of the generic localized text.
  debug: false
  utc: false
  # Append milliseconds to dump names so faults in the same second do not
  # overwrite each other.
  subsecond: false
  # Keep only the newest N dumps. 0 keeps all.
  max_files: 0
  redact: false
  compress: false
  fatal_output: true
  traceback: all

dispatcher:
  # pool, serial or inline
  mode: pool
  max_concurrent: 0
  queue_size: 64
  drain_timeout: 5s

notify:
  # Empty uses LC_ALL, LC_MESSAGES or LANG.
  locale: ""

ui:
  alt_screen: true
`

// DefaultStorageRoot returns the storage root used when none is configured:
// the user cache directory, falling back to the temp directory.
func DefaultStorageRoot() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, AppName)
}
