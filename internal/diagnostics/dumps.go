package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoDumps is returned by Latest when the crash directory holds no dumps.
var ErrNoDumps = errors.New("no crash dumps found")

// DumpInfo describes one dump file on storage.
type DumpInfo struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
	Compressed bool      `json:"compressed"`
}

// IsDumpName reports whether name looks like a file produced by DumpWriter.
func IsDumpName(name string) bool {
	if !strings.HasPrefix(name, dumpPrefix) {
		return false
	}
	return strings.HasSuffix(name, dumpSuffix) || strings.HasSuffix(name, dumpSuffix+compressedSuffix)
}

// ParseDumpTime recovers the fault time encoded in a dump file name.
func ParseDumpTime(name string, loc *time.Location) (time.Time, bool) {
	if !IsDumpName(name) {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	stamp := strings.TrimPrefix(name, dumpPrefix)
	stamp = strings.TrimSuffix(stamp, compressedSuffix)
	stamp = strings.TrimSuffix(stamp, dumpSuffix)
	if len(stamp) < len(TimeLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(TimeLayout, stamp[:len(TimeLayout)], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// List returns the dumps in the crash directory, newest first. A missing
// directory is not an error.
func (w *DumpWriter) List() ([]DumpInfo, error) {
	dir := w.Dir()
	if !w.storage.PathExists(dir) {
		return nil, nil
	}
	entries, err := w.storage.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading crash directory: %w", err)
	}

	var dumps []DumpInfo
	for _, e := range entries {
		if e.IsDir() || !IsDumpName(e.Name()) {
			continue
		}
		dumps = append(dumps, DumpInfo{
			Name:       e.Name(),
			Path:       filepath.Join(dir, e.Name()),
			Size:       e.Size(),
			ModTime:    e.ModTime(),
			Compressed: strings.HasSuffix(e.Name(), compressedSuffix),
		})
	}

	// Names sort chronologically; ModTime breaks ties between a plain and a
	// compressed dump of the same second.
	sort.Slice(dumps, func(i, j int) bool {
		ni := strings.TrimSuffix(dumps[i].Name, compressedSuffix)
		nj := strings.TrimSuffix(dumps[j].Name, compressedSuffix)
		if ni != nj {
			return ni > nj
		}
		return dumps[i].ModTime.After(dumps[j].ModTime)
	})
	return dumps, nil
}

// Read returns the text of the named dump, decompressing it when needed.
// name may be a bare file name or a path inside the crash directory.
func (w *DumpWriter) Read(name string) ([]byte, error) {
	base := filepath.Base(name)
	if !IsDumpName(base) {
		return nil, fmt.Errorf("%q is not a crash dump", name)
	}
	data, err := w.storage.ReadFile(filepath.Join(w.Dir(), base))
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(base, compressedSuffix) {
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", base, err)
		}
		return out, nil
	}
	return data, nil
}

// Latest returns the newest dump and its text.
func (w *DumpWriter) Latest() (DumpInfo, []byte, error) {
	dumps, err := w.List()
	if err != nil {
		return DumpInfo{}, nil, err
	}
	if len(dumps) == 0 {
		return DumpInfo{}, nil, ErrNoDumps
	}
	data, err := w.Read(dumps[0].Name)
	if err != nil {
		return DumpInfo{}, nil, err
	}
	return dumps[0], data, nil
}

// Purge removes every dump and returns how many were deleted.
func (w *DumpWriter) Purge() (int, error) {
	dumps, err := w.List()
	if err != nil {
		return 0, err
	}
	var errs []error
	removed := 0
	for _, d := range dumps {
		if err := w.storage.Remove(d.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
