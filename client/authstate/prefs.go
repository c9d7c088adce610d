package authstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Preferences survive restarts: the last active role and the token it was issued with.
type Preferences struct {
	Role  string `json:"role"`
	Token string `json:"token"`
}

type PreferenceStore interface {
	Load() (Preferences, error)
	Save(p Preferences) error
	Clear() error
}

type MemoryStore struct {
	mu    sync.Mutex
	prefs Preferences
}

var _ PreferenceStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs, nil
}

func (m *MemoryStore) Save(p Preferences) error {
	m.mu.Lock()
	m.prefs = p
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear() error {
	return m.Save(Preferences{})
}

// FileStore keeps the preferences as JSON in a file readable by its owner only.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ PreferenceStore = (*FileStore)(nil)

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (f *FileStore) Load() (Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var p Preferences
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, errors.Wrap(err, "reading preferences")
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, errors.Wrap(err, "decoding preferences")
	}
	return p, nil
}

func (f *FileStore) Save(p Preferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encoding preferences")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(err, "creating preferences dir")
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "writing preferences")
	}
	return errors.Wrap(os.Rename(tmp, f.path), "writing preferences")
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing preferences")
	}
	return nil
}
