package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists keyed JSON documents in a single config file with
// atomic writes (temp file + rename).
type FileStore struct {
	path    string
	data    map[string]json.RawMessage
	mu      sync.RWMutex
	version string
}

// NewFileStore creates a file-backed store. If path is empty, it defaults to
// ~/.guardian/config.json. A missing file is not an error; the store starts
// empty.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".guardian", "config.json")
	}

	store := &FileStore{
		path:    path,
		data:    make(map[string]json.RawMessage),
		version: "1.0",
	}

	if err := store.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	return store, nil
}

// Load reads the store from disk, replacing in-memory state.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = make(map[string]json.RawMessage)
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var doc struct {
		Version string                     `json:"version"`
		Keys    map[string]json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(file).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}

	s.version = doc.Version
	if doc.Keys != nil {
		s.data = doc.Keys
	} else {
		s.data = make(map[string]json.RawMessage)
	}
	return nil
}

// Save writes the store to disk atomically.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}

	doc := struct {
		Version string                     `json:"version"`
		Keys    map[string]json.RawMessage `json:"keys"`
	}{
		Version: s.version,
		Keys:    s.data,
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Get unmarshals the value stored under key into v. It reports whether the
// key was present.
func (s *FileStore) Get(key string, v interface{}) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("failed to decode key %q: %w", key, err)
	}
	return true, nil
}

// Set stores v under key in memory; call Save to persist.
func (s *FileStore) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode key %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return nil
}

// Path returns the file path of the store.
func (s *FileStore) Path() string { return s.path }
