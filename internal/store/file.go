package store

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fileStateVersion = 1

// File is a KV persisted as a JSON snapshot. Every mutation rewrites the
// snapshot through a temp file and rename, so a crash leaves either the old or
// the new state on disk.
type File struct {
	mu    sync.RWMutex
	path  string
	items map[string][]byte
}

var _ KV = (*File)(nil)

type persistedFileState struct {
	Version int               `json:"version"`
	Items   map[string]string `json:"items"`
}

// OpenFile loads path, creating an empty store when it does not exist.
func OpenFile(path string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: file path is required")
	}
	f := &File{path: path, items: make(map[string][]byte)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if err := f.persistLocked(); err != nil {
				return nil, err
			}
			return f, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	var state persistedFileState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	if state.Version != fileStateVersion {
		return nil, fmt.Errorf("store: %s has unsupported version %d", path, state.Version)
	}
	for k, v := range state.Items {
		key, err := hex.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("store: %s has invalid key %q: %w", path, k, err)
		}
		val, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("store: %s has invalid value for %q: %w", path, k, err)
		}
		f.items[string(key)] = val
	}
	return f, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Get(key []byte) ([]byte, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.items[string(key)]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

func (f *File) Put(key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.items[string(key)]
	f.items[string(key)] = cloneBytes(value)
	if err := f.persistLocked(); err != nil {
		if had {
			f.items[string(key)] = prev
		} else {
			delete(f.items, string(key))
		}
		return err
	}
	return nil
}

func (f *File) Delete(key []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.items[string(key)]
	if !had {
		return nil
	}
	delete(f.items, string(key))
	if err := f.persistLocked(); err != nil {
		f.items[string(key)] = prev
		return err
	}
	return nil
}

func (f *File) List(prefix []byte) ([]Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return listSorted(f.items, prefix), nil
}

func (f *File) persistLocked() error {
	state := persistedFileState{
		Version: fileStateVersion,
		Items:   make(map[string]string, len(f.items)),
	}
	for k, v := range f.items {
		state.Items[hex.EncodeToString([]byte(k))] = hex.EncodeToString(v)
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
