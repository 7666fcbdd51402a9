package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// DiskStorage keeps staged photos under a local directory
type DiskStorage struct {
	root string

	mu    sync.Mutex
	known map[string]struct{} // directories already created
}

func NewDiskStorage(bucket *Bucket) *DiskStorage {
	return &DiskStorage{
		root:  bucket.Path,
		known: make(map[string]struct{}),
	}
}

func (s *DiskStorage) ensureDir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.known[dir]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	s.known[dir] = struct{}{}
	return nil
}

// fullPath refuses keys that would escape the root
func (s *DiskStorage) fullPath(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: invalid path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

// Save writes to a temporary file first so readers never see a partial photo
func (s *DiskStorage) Save(path string, reader io.Reader) (int64, error) {
	target, err := s.fullPath(path)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(target)
	if err = s.ensureDir(dir); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, ".staging-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), target)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}

func (s *DiskStorage) Load(path string, writer io.Writer) (int64, error) {
	target, err := s.fullPath(path)
	if err != nil {
		return 0, err
	}
	file, err := os.Open(target)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return io.Copy(writer, file)
}

// Delete ignores files that are already gone
func (s *DiskStorage) Delete(path string) error {
	target, err := s.fullPath(path)
	if err != nil {
		return err
	}
	if err = os.Remove(target); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *DiskStorage) FreeSpace() (uint64, bool, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(s.root, &stat); err != nil {
		return 0, true, err
	}
	return stat.Bavail * uint64(stat.Bsize), true, nil
}
