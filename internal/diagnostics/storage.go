package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/fsutil"
)

// Storage is the durable medium dumps are written to. The dump pipeline only
// needs to probe, create one directory level and write whole files; listing
// and removal back rotation and the dumps CLI.
type Storage interface {
	// Root returns the resolved storage root.
	Root() string
	// Available reports nil when the medium is mounted and reachable.
	Available() error
	PathExists(path string) bool
	// Mkdir creates exactly one directory level.
	Mkdir(path string) error
	// WriteFile replaces path with data in a single atomic step.
	WriteFile(path string, data []byte) error
	ReadFile(path string) ([]byte, error)
	ReadDir(path string) ([]os.FileInfo, error)
	Remove(path string) error
}

// FSStorage implements Storage on top of an afero filesystem.
type FSStorage struct {
	fs    afero.Fs
	root  string
	perm  os.FileMode
	write func(path string, data []byte, perm os.FileMode) error
}

// NewDiskStorage returns storage on the OS filesystem rooted at root. Files
// are replaced atomically through fsutil.WriteFileAtomic.
func NewDiskStorage(root string) *FSStorage {
	return &FSStorage{
		fs:    afero.NewOsFs(),
		root:  filepath.Clean(root),
		perm:  0o600,
		write: fsutil.WriteFileAtomic,
	}
}

// NewFSStorage returns storage on an arbitrary afero filesystem, such as
// afero.NewMemMapFs in tests. Writes go through a temp file and rename.
func NewFSStorage(fs afero.Fs, root string) *FSStorage {
	s := &FSStorage{fs: fs, root: filepath.Clean(root), perm: 0o600}
	s.write = s.renameWrite
	return s
}

// Root returns the storage root.
func (s *FSStorage) Root() string { return s.root }

// Available reports whether the root exists and is a directory.
func (s *FSStorage) Available() error {
	info, err := s.fs.Stat(s.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.root)
	}
	return nil
}

// PathExists reports whether path exists.
func (s *FSStorage) PathExists(path string) bool {
	ok, err := afero.Exists(s.fs, path)
	return err == nil && ok
}

// Mkdir creates a single directory level.
func (s *FSStorage) Mkdir(path string) error {
	return s.fs.Mkdir(path, 0o750)
}

// WriteFile atomically replaces path with data.
func (s *FSStorage) WriteFile(path string, data []byte) error {
	return s.write(path, data, s.perm)
}

// ReadFile reads the whole file at path.
func (s *FSStorage) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(s.fs, path)
}

// ReadDir lists the entries of path.
func (s *FSStorage) ReadDir(path string) ([]os.FileInfo, error) {
	return afero.ReadDir(s.fs, path)
}

// Remove deletes path.
func (s *FSStorage) Remove(path string) error {
	return s.fs.Remove(path)
}

func (s *FSStorage) renameWrite(path string, data []byte, perm os.FileMode) error {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(path), "."+filepath.Base(path)+".")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return err
	}
	if err := s.fs.Chmod(tmpPath, perm); err != nil {
		_ = s.fs.Remove(tmpPath)
		return err
	}
	if err := s.fs.Rename(tmpPath, path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return err
	}
	return nil
}
