// Package session provides the durable store for conversation sessions.
//
// The whole collection is the unit of durability: it is read once at
// startup, mirrored in memory, and every mutating call rewrites the entire
// file. The store is not internally locked; at most one run may drive
// writes at a time, which the single-active-run model upholds.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/loopwork/agentchat/internal/idgen"
	"github.com/loopwork/agentchat/internal/steps"
)

var (
	// ErrNotFound reports an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrStorageUnavailable reports an I/O failure against the backing
	// file. The in-memory collection stays valid; callers surface the
	// error and continue.
	ErrStorageUnavailable = errors.New("session storage unavailable")
)

// Summary is the lightweight listing shape for the session sidebar.
type Summary struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Preview   string    `json:"preview"`
}

// Session is one persisted conversation: an ordered step list plus
// metadata. Identity is the id, assigned once and never changed.
type Session struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Preview   string         `json:"preview"`
	Steps     []steps.Record `json:"steps"`
}

// Store keeps the session collection, newest-first. With an empty path it
// runs in ephemeral mode: fully functional, nothing written to disk.
type Store struct {
	path  string
	cache []Session
}

// NewStore loads (or creates) the collection file at path. An empty path
// selects ephemeral mode.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.flush(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, path, err)
	}
	if err := json.Unmarshal(data, &s.cache); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrStorageUnavailable, path, err)
	}
	return s, nil
}

// Ephemeral reports whether the store persists nothing.
func (s *Store) Ephemeral() bool { return s.path == "" }

// ListSummaries returns the sidebar listing, newest first.
func (s *Store) ListSummaries() []Summary {
	out := make([]Summary, 0, len(s.cache))
	for _, sess := range s.cache {
		out = append(out, Summary{ID: sess.ID, Timestamp: sess.Timestamp, Preview: sess.Preview})
	}
	return out
}

// Get returns the full session for id.
func (s *Store) Get(id string) (Session, error) {
	for _, sess := range s.cache {
		if sess.ID == id {
			return sess, nil
		}
	}
	return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Upsert saves a session. With an empty id a fresh session is created at
// the front of the collection; otherwise the existing session's steps,
// preview, and timestamp are replaced in place, preserving its position.
// The returned id is always valid even when the flush fails; the flush
// error is reported alongside so the caller can surface it.
func (s *Store) Upsert(id string, recs []steps.Record, preview string) (string, error) {
	if id == "" {
		id = idgen.NewSessionID()
	}
	sess := Session{
		ID:        id,
		Timestamp: time.Now().UTC(),
		Preview:   preview,
		Steps:     recs,
	}
	replaced := false
	for i := range s.cache {
		if s.cache[i].ID == id {
			s.cache[i] = sess
			replaced = true
			break
		}
	}
	if !replaced {
		s.cache = append([]Session{sess}, s.cache...)
	}
	return id, s.flush()
}

// Rename updates a session's preview text without touching its steps,
// timestamp, or position. Returns false for an unknown id.
func (s *Store) Rename(id, preview string) (bool, error) {
	for i := range s.cache {
		if s.cache[i].ID == id {
			s.cache[i].Preview = preview
			return true, s.flush()
		}
	}
	return false, nil
}

// Delete removes a session. Returns false for an unknown id.
func (s *Store) Delete(id string) (bool, error) {
	for i := range s.cache {
		if s.cache[i].ID == id {
			s.cache = append(s.cache[:i], s.cache[i+1:]...)
			return true, s.flush()
		}
	}
	return false, nil
}

func (s *Store) flush() error {
	if s.path == "" {
		return nil
	}
	collection := s.cache
	if collection == nil {
		collection = []Session{}
	}
	data, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode collection: %v", ErrStorageUnavailable, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorageUnavailable, s.path, err)
	}
	return nil
}
