// Package kvstore provides a small persisted key/value map kept outside the
// SQL tables. It holds the pending-sync list and the user session.
package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
)

// FileName is the store file created inside the data directory.
const FileName = "kv.json"

// Well-known keys.
const (
	KeyPendingJobs = "pendingJobs"
	KeySession     = "userData"
)

// Store is a JSON file backed key/value map. Every write rewrites the file
// through a temp file and rename so a crash never leaves it half written.
type Store struct {
	path string

	mu   sync.RWMutex
	data map[string]json.RawMessage
}

// Open loads (or creates) the store in dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to create data directory", err)
	}

	s := &Store{
		path: filepath.Join(dataDir, FileName),
		data: make(map[string]json.RawMessage),
	}

	content, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read key/value store", err)
	}

	if len(content) > 0 {
		if err := json.Unmarshal(content, &s.data); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "corrupt key/value store", err)
		}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get decodes the value stored under key into dst. It reports false when
// the key is absent.
func (s *Store) Get(key string, dst interface{}) (bool, error) {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("failed to decode %q", key), err)
	}
	return true, nil
}

// Set stores v under key and flushes to disk.
func (s *Store) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("failed to encode %q", key), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	s.data[key] = raw
	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Update applies fn to the current value of key under the write lock, so
// read-modify-write cycles do not interleave. fn receives nil when the key
// is absent; returning nil from fn deletes the key.
func (s *Store) Update(key string, fn func(current json.RawMessage) (interface{}, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	next, err := fn(prev)
	if err != nil {
		return err
	}

	if next == nil {
		delete(s.data, key)
	} else {
		raw, err := json.Marshal(next)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("failed to encode %q", key), err)
		}
		s.data[key] = raw
	}

	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	if !had {
		return nil
	}
	delete(s.data, key)
	if err := s.flush(); err != nil {
		s.data[key] = prev
		return err
	}
	return nil
}

// Keys returns all keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// flush writes the map atomically. Caller holds s.mu.
func (s *Store) flush() error {
	content, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to encode key/value store", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".kv-*.tmp")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Wrap(apperrors.ErrStorage, "failed to write key/value store", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Wrap(apperrors.ErrStorage, "failed to sync key/value store", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(apperrors.ErrStorage, "failed to close key/value store", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(apperrors.ErrStorage, "failed to replace key/value store", err)
	}
	return nil
}
