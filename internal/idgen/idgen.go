package idgen

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewSessionID returns a collision-resistant session identifier. UUIDv7
// keeps ids roughly time-ordered; on the unlikely generation failure it
// falls back to a random UUIDv4.
func NewSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewRunID returns a lexically sortable identifier for one agent run.
func NewRunID() string {
	return ulid.Make().String()
}
