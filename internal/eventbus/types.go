package eventbus

import "time"

// Event is one journaled UI event: what was sent over the realtime channel,
// durably recorded under its run and session scope.
type Event struct {
	ID        string         `json:"id"`
	Stream    string         `json:"stream"`
	SessionID string         `json:"session_id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type EventInput struct {
	Stream    string
	SessionID string
	RunID     string
	Type      string
	Payload   map[string]any
}

type ListOptions struct {
	RunID string
	Limit int
	Order string // "fifo" or "lifo"; empty uses the stream default
}
