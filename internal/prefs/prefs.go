// Package prefs keeps client-local preferences: section toggles, collapsed
// flags and the remembered user for one-tap login.
//
// Reads never fail: a missing or unreadable value yields the default.
// Writes are read-modify-write against the backend and the last writer wins.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// RememberedKey holds the remembered user record.
const RememberedKey = "remembered_user"

// ToggleKey is the key of the include-in-overall toggle of a section.
func ToggleKey(section string) string { return "toggle_" + section }

// CollapsibleKey is the key of the expanded flag of a section.
func CollapsibleKey(section string) string { return "collapsible_" + section }

// Backend persists string values by key.
type Backend interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// User is the remembered-user record.
type User struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Store is the typed view over a Backend.
type Store struct {
	b Backend
}

// New wraps b. A nil backend keeps everything in memory.
func New(b Backend) *Store {
	if b == nil {
		b = NewMemoryBackend()
	}
	return &Store{b: b}
}

func (s *Store) flag(key string) bool {
	v, found, err := s.b.Get(key)
	if err != nil || !found {
		return false
	}
	on, err := strconv.ParseBool(v)
	return err == nil && on
}

// Toggle reports whether section counts towards the overall percentage.
func (s *Store) Toggle(section string) bool { return s.flag(ToggleKey(section)) }

// SetToggle stores the toggle of section.
func (s *Store) SetToggle(section string, on bool) error {
	return s.b.Set(ToggleKey(section), strconv.FormatBool(on))
}

// Expanded reports whether section is open. Sections start closed.
func (s *Store) Expanded(section string) bool { return s.flag(CollapsibleKey(section)) }

// SetExpanded stores the open flag of section.
func (s *Store) SetExpanded(section string, open bool) error {
	return s.b.Set(CollapsibleKey(section), strconv.FormatBool(open))
}

// Remembered returns the remembered user. A corrupt record is dropped.
func (s *Store) Remembered() (User, bool) {
	v, found, err := s.b.Get(RememberedKey)
	if err != nil || !found {
		return User{}, false
	}
	var u User
	if err := json.Unmarshal([]byte(v), &u); err != nil || u.Username == "" {
		_ = s.b.Delete(RememberedKey)
		return User{}, false
	}
	return u, true
}

// Remember stores u as the remembered user.
func (s *Store) Remember(u User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.b.Set(RememberedKey, string(raw))
}

// Forget clears the remembered user.
func (s *Store) Forget() error { return s.b.Delete(RememberedKey) }

// MemoryBackend is a process-local backend.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (m *MemoryBackend) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryBackend) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// FileBackend stores all keys in one JSON object on disk.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend uses the file at path, created on first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (f *FileBackend) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	values := map[string]string{}
	if len(raw) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode prefs: %w", err)
	}
	return values, nil
}

func (f *FileBackend) save(values map[string]string) error {
	raw, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileBackend) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileBackend) Set(key, value string) error {
	return f.update(func(values map[string]string) { values[key] = value })
}

func (f *FileBackend) Delete(key string) error {
	return f.update(func(values map[string]string) { delete(values, key) })
}

func (f *FileBackend) update(fn func(map[string]string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		// A corrupt file is replaced rather than blocking every write.
		values = map[string]string{}
	}
	fn(values)
	return f.save(values)
}
