package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DiskStore writes sessions as JSON files. With an empty Dir a temp
// directory is created lazily on first use.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore returns a store rooted at dir, created on first Save.
// An empty dir selects a private temp directory.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// Save writes sess through a temp file and rename.
func (s *DiskStore) Save(sess *Session) error {
	if !validID(sess.ID) {
		return fmt.Errorf("invalid session id %q", sess.ID)
	}
	dir, err := s.ensureDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling session %s: %w", sess.ID, err)
	}

	tmp, err := os.CreateTemp(dir, sess.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing session %s: %w", sess.ID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing session %s: %w", sess.ID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing session %s: %w", sess.ID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(dir, sess.ID)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing session %s: %w", sess.ID, err)
	}
	return nil
}

// Load reads a session from disk.
func (s *DiskStore) Load(id string) (*Session, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	dir, err := s.ensureDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(dir, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshalling session %s: %w", id, err)
	}
	return &sess, nil
}

// Dir returns the store directory, creating it if needed.
func (s *DiskStore) Dir() (string, error) {
	return s.ensureDir()
}

func (s *DiskStore) path(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

func (s *DiskStore) ensureDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		dir, err := os.MkdirTemp("", "runmeta-sessions-*")
		if err != nil {
			return "", fmt.Errorf("creating session directory: %w", err)
		}
		s.dir = dir
		return dir, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating session directory: %w", err)
	}
	return s.dir, nil
}
