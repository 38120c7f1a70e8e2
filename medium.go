package modelstore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Medium is the text-only key-value collaborator the store persists into.
// It mirrors a browser localStorage surface: string keys, string values,
// and full-namespace enumeration.
//
// Implementations must be safe for concurrent use.
type Medium interface {
	// GetItem returns the value for key and whether it exists.
	GetItem(key string) (string, bool)

	// SetItem stores value under key, overwriting any previous value.
	SetItem(key, value string) error

	// RemoveItem deletes key. Removing an absent key is a no-op.
	RemoveItem(key string) error

	// Keys enumerates every key currently present, in no particular order.
	Keys() ([]string, error)
}

// MemoryMedium is an in-process Medium backed by a plain map. It is the
// default medium for tests and for the single-process deployments the
// store was written for.
type MemoryMedium struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryMedium creates an empty in-memory medium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{items: make(map[string]string)}
}

func (m *MemoryMedium) GetItem(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *MemoryMedium) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryMedium) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryMedium) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored entries.
func (m *MemoryMedium) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

const mediumFileExt = ".kv"

// FileMedium is a Medium that keeps one file per key in a single
// directory. Keys are encoded with URL-safe base64 to produce valid file
// names, so arbitrary key strings round-trip through enumeration.
//
// Why temp file: values are written to a temporary file first and renamed
// into place, so a crash mid-write never leaves a truncated value behind.
type FileMedium struct {
	mu   sync.Mutex
	root string
}

// NewFileMedium creates a file-backed medium rooted at dir.
func NewFileMedium(dir string) (*FileMedium, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating medium directory: %w", err)
	}
	return &FileMedium{root: dir}, nil
}

func (m *FileMedium) path(key string) string {
	name := base64.URLEncoding.EncodeToString([]byte(key)) + mediumFileExt
	return filepath.Join(m.root, name)
}

func (m *FileMedium) GetItem(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path(key))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (m *FileMedium) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tmp := filepath.Join(m.root, "."+newID()+".tmp")
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return fmt.Errorf("writing item %q: %w", key, err)
	}
	if err := os.Rename(tmp, m.path(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("committing item %q: %w", key, err)
	}
	return nil
}

func (m *FileMedium) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing item %q: %w", key, err)
	}
	return nil
}

func (m *FileMedium) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("enumerating medium: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), mediumFileExt) {
			continue
		}
		raw, err := base64.URLEncoding.DecodeString(strings.TrimSuffix(e.Name(), mediumFileExt))
		if err != nil {
			// Foreign file in the medium directory, not one of ours.
			continue
		}
		keys = append(keys, string(raw))
	}
	sort.Strings(keys)
	return keys, nil
}
