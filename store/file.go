package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is the default Store: a single JSON file holding all keys.
// Writes go to a temp file which is fsynced and renamed over the target,
// so readers of the file never observe a partial write and a crash after
// Set returns cannot lose the update.
type FileStore struct {
	path         string
	mu           sync.RWMutex
	values       map[string]string
	bootstrapped bool
}

// NewFileStore opens (or creates) a file-backed store named name under dir.
// An empty dir falls back to the user cache directory, then the system
// temp directory.
func NewFileStore(name string, dir string) (*FileStore, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: store name is required", ErrStoreUnavailable)
	}
	if dir == "" {
		if cacheDir, err := os.UserCacheDir(); err == nil {
			dir = filepath.Join(cacheDir, "flagsync")
		} else {
			dir = filepath.Join(os.TempDir(), "flagsync")
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	s := &FileStore{
		path:   filepath.Join(dir, name+".json"),
		values: make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Join(ErrStoreUnavailable, err)
	}
	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		// A corrupt file is treated as empty rather than fatal: the next
		// successful fetch rewrites it.
		return nil
	}
	s.values = values
	return nil
}

// persist writes the full map to a temp file and renames it into place.
// Caller must hold the write lock.
func (s *FileStore) persist() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Join(ErrStoreUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Join(ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Join(ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.persist()
}

func (s *FileStore) MSet(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
	return s.persist()
}

func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok, nil
}

func (s *FileStore) Destroy(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FileStore) Bootstrapped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bootstrapped
}

func (s *FileStore) MarkBootstrapped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootstrapped = true
}
