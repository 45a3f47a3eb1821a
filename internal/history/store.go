// Package history persists writer state between invocations so a batch
// of runs can span several processes before its document is written.
package history

import (
	"errors"
	"time"

	"github.com/deixis/runmeta/internal/metadata"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned by Load for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// Store persists and retrieves sessions.
type Store interface {
	Save(s *Session) error
	Load(id string) (*Session, error)
}

// Session is a stored batch of runs for one tool.
type Session struct {
	ID       string            `json:"id"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	Metadata metadata.Snapshot `json:"metadata"`
}

// NewSession captures w under a fresh session ID.
func NewSession(w *metadata.Writer) *Session {
	now := time.Now()
	return &Session{
		ID:       uuid.New().String(),
		Created:  now,
		Updated:  now,
		Metadata: w.Snapshot(),
	}
}

// Update returns a copy of s holding the current state of w. s itself is
// left untouched, so a cached session only changes once the copy is saved.
func (s *Session) Update(w *metadata.Writer) *Session {
	next := *s
	next.Metadata = w.Snapshot()
	next.Updated = time.Now()
	return &next
}

// Writer restores the session's writer with opts applied.
func (s *Session) Writer(opts ...metadata.Option) (*metadata.Writer, error) {
	return metadata.Restore(s.Metadata, opts...)
}

// validID reports whether id is a UUID, which keeps IDs safe to use as
// file names.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
