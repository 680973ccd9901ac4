package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
)

var (
	// ErrQuotaExceeded is returned when a write would grow the store past its quota
	ErrQuotaExceeded = errors.New("key-value quota exceeded")
)

// Backend is the raw persistent string map under a Store
type Backend interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	Keys() ([]string, error)
}

// FileBackend keeps every entry in memory and rewrites a single JSON object file on each mutation
type FileBackend struct {
	fs    afero.Fs
	path  string
	quota int

	mu      sync.RWMutex
	entries map[string]string
	size    int
}

// NewFileBackend opens (or creates) the JSON file at path. A quota <= 0 disables the limit.
func NewFileBackend(fs afero.Fs, path string, quota int) (*FileBackend, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	b := &FileBackend{fs: fs, path: path, quota: quota, entries: map[string]string{}}

	data, err := afero.ReadFile(fs, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return b, nil
	case err != nil:
		return nil, fmt.Errorf("read store file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &b.entries); err != nil {
			return nil, fmt.Errorf("decode store file: %w", err)
		}
	}
	for k, v := range b.entries {
		b.size += len(k) + len(v)
	}
	return b, nil
}

func (b *FileBackend) Get(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.entries[key]
	return v, ok, nil
}

func (b *FileBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	old, exists := b.entries[key]
	size := b.size + len(value)
	if exists {
		size -= len(old)
	} else {
		size += len(key)
	}
	if b.quota > 0 && size > b.quota {
		return fmt.Errorf("set %q (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}

	b.entries[key] = value
	if err := b.flush(); err != nil {
		if exists {
			b.entries[key] = old
		} else {
			delete(b.entries, key)
		}
		return err
	}
	b.size = size
	return nil
}

func (b *FileBackend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	old, exists := b.entries[key]
	if !exists {
		return nil
	}
	delete(b.entries, key)
	if err := b.flush(); err != nil {
		b.entries[key] = old
		return err
	}
	b.size -= len(key) + len(old)
	return nil
}

func (b *FileBackend) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// flush writes the whole map through a temp file so a crash never leaves half a file behind.
// Caller holds b.mu.
func (b *FileBackend) flush() error {
	data, err := json.Marshal(b.entries)
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := afero.WriteFile(b.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := b.fs.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
