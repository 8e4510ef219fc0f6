package engine

import (
	"context"

	"github.com/loopwork/agentchat/internal/steps"
)

// Delta is an in-flight fragment of the model's streamed reply. Transient:
// it is never persisted.
type Delta struct {
	Content string
}

// ToolCall announces that the agent is about to execute code.
type ToolCall struct {
	Name      string
	Arguments string
}

// Stream carries one run's live output. Items yields heterogeneous values:
// Delta, ToolCall, and the step variants from the steps package. The
// terminal result travels on a second channel: FinalAnswer and Err are
// valid only after Items is closed (the close is the synchronization
// point), and the final answer is not guaranteed to have appeared as a
// yielded item.
type Stream struct {
	items chan any
	final *steps.FinalAnswerStep
	err   error
}

func newStream() *Stream {
	// Unbuffered: the producer blocks until the consumer has taken the
	// item, so at most one item is in flight.
	return &Stream{items: make(chan any)}
}

func (s *Stream) Items() <-chan any { return s.items }

// FinalAnswer returns the terminal step of the run, if one was produced.
func (s *Stream) FinalAnswer() *steps.FinalAnswerStep { return s.final }

// Err returns the failure that ended the run, if any.
func (s *Stream) Err() error { return s.err }

func (s *Stream) emit(ctx context.Context, item any) bool {
	select {
	case s.items <- item:
		return true
	case <-ctx.Done():
		return false
	}
}
