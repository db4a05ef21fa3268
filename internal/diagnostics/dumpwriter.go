package diagnostics

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/logging"
)

const (
	// DefaultDirName is the single directory level created under the storage root.
	DefaultDirName = "crash"
	// TimeLayout formats dump timestamps: year-month-day-hour-minute-second.
	TimeLayout = "2006-01-02-15-04-05"

	dumpPrefix       = "crash-"
	dumpSuffix       = ".log"
	compressedSuffix = ".zst"
)

// encoder and decoder are safe for concurrent EncodeAll/DecodeAll use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Redactor scrubs secrets from dump text.
type Redactor interface {
	Sanitize(string) string
}

// DumpWriterOptions configures file naming and the optional hardening features.
type DumpWriterOptions struct {
	DirName  string
	Location *time.Location
	// SubSecond appends milliseconds to file names so faults within the
	// same second do not overwrite each other.
	SubSecond bool
	// MaxFiles keeps only the newest dumps; 0 keeps all.
	MaxFiles int
	Compress bool
	Redactor Redactor
}

// DumpWriter serializes fault records to files under <root>/<dir>.
type DumpWriter struct {
	storage Storage
	opts    DumpWriterOptions
	logger  *logging.Logger

	rotateMu sync.Mutex
}

// NewDumpWriter creates a dump writer on storage.
func NewDumpWriter(storage Storage, opts DumpWriterOptions, logger *logging.Logger) *DumpWriter {
	if opts.DirName == "" {
		opts.DirName = DefaultDirName
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DumpWriter{
		storage: storage,
		opts:    opts,
		logger:  logger.WithComponent("dump_writer"),
	}
}

// Dir returns the directory dumps are written to.
func (w *DumpWriter) Dir() string {
	return filepath.Join(w.storage.Root(), w.opts.DirName)
}

// Storage returns the underlying storage medium.
func (w *DumpWriter) Storage() Storage {
	return w.storage
}

// Timestamp formats t the way dump names and header lines do.
func (w *DumpWriter) Timestamp(t time.Time) string {
	stamp := t.In(w.opts.Location).Format(TimeLayout)
	if w.opts.SubSecond {
		stamp += fmt.Sprintf("-%03d", t.Nanosecond()/int(time.Millisecond))
	}
	return stamp
}

// FileName returns the dump file name for a fault at t.
func (w *DumpWriter) FileName(t time.Time) string {
	name := dumpPrefix + w.Timestamp(t) + dumpSuffix
	if w.opts.Compress {
		name += compressedSuffix
	}
	return name
}

// Write persists one dump and returns its path. An unavailable medium yields
// ErrStorageUnavailable without touching storage; I/O failures yield
// ErrWriteFailed. Two faults in the same second share a file name and the
// later write replaces the earlier one.
func (w *DumpWriter) Write(record FaultRecord, env EnvironmentSnapshot) (string, error) {
	if err := w.storage.Available(); err != nil {
		return "", newDumpError(KindStorageUnavailable, "check storage", w.storage.Root(), err)
	}

	dir := w.Dir()
	if !w.storage.PathExists(dir) {
		err := w.storage.Mkdir(dir)
		w.logger.Debug("create crash directory", "path", dir, "success", err == nil)
		if err != nil {
			// The write below is still attempted; it fails on its own if the
			// directory is really missing.
			w.logger.Warn("crash directory not created",
				"error", newDumpError(KindDirectoryCreateFailed, "create directory", dir, err))
		}
	}

	path := filepath.Join(dir, w.FileName(record.OccurredAt))
	w.logger.Debug("dump file path", "path", path, "fault_id", record.ID)

	data := w.Render(record, env)
	if w.opts.Compress {
		data = zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	}

	if err := w.storage.WriteFile(path, data); err != nil {
		return "", newDumpError(KindWriteFailed, "write dump", path, err)
	}

	if w.opts.MaxFiles > 0 {
		w.rotate()
	}
	return path, nil
}

// Render builds the complete dump text: timestamp line, environment block,
// a blank line, then the fault and its stack trace.
func (w *DumpWriter) Render(record FaultRecord, env EnvironmentSnapshot) []byte {
	var b bytes.Buffer

	b.WriteString(w.Timestamp(record.OccurredAt))
	b.WriteByte('\n')

	fmt.Fprintf(&b, "App Version: %s_%s\n", env.AppVersionName, env.AppVersionCode)
	fmt.Fprintf(&b, "OS Version: %s_%s\n", env.OSVersion, env.OSAPILevel)
	fmt.Fprintf(&b, "Device Vendor: %s\n", env.DeviceVendor)
	fmt.Fprintf(&b, "Device Model: %s\n", env.DeviceModel)
	fmt.Fprintf(&b, "Device CPU ARCH 32 : %s\n", abiList(env.Supported32BitABIs))
	fmt.Fprintf(&b, "Device CPU ARCH 64 : %s\n", abiList(env.Supported64BitABIs))
	if env.GoVersion != "" {
		fmt.Fprintf(&b, "Go Runtime: %s goroutines=%d heap=%.1fMB\n",
			env.GoVersion, env.Goroutines, env.HeapAllocMB)
	}
	for _, failure := range env.Failures {
		fmt.Fprintf(&b, "Metadata Lookup Failed: %s\n", failure)
	}

	b.WriteByte('\n')

	message, stack := record.Message, record.StackText
	if w.opts.Redactor != nil {
		message = w.opts.Redactor.Sanitize(message)
		stack = w.opts.Redactor.Sanitize(stack)
	}
	fmt.Fprintf(&b, "[%s] panic: %s\n", record.ThreadName, message)
	if loc := record.Location(); loc != "" {
		fmt.Fprintf(&b, "at %s\n", loc)
	}
	b.WriteString(stack)
	if stack != "" && !strings.HasSuffix(stack, "\n") {
		b.WriteByte('\n')
	}

	return b.Bytes()
}

// abiList writes every ABI followed by a space, so a non-empty list keeps a
// trailing separator.
func abiList(abis []string) string {
	var b strings.Builder
	for _, abi := range abis {
		b.WriteString(abi)
		b.WriteByte(' ')
	}
	return b.String()
}

// rotate removes the oldest dumps beyond MaxFiles.
func (w *DumpWriter) rotate() {
	w.rotateMu.Lock()
	defer w.rotateMu.Unlock()

	dumps, err := w.List()
	if err != nil {
		w.logger.Warn("listing dumps for rotation failed", "error", err)
		return
	}
	for i := w.opts.MaxFiles; i < len(dumps); i++ {
		if err := w.storage.Remove(dumps[i].Path); err != nil {
			w.logger.Warn("failed to remove old dump", "path", dumps[i].Path, "error", err)
		}
	}
}
