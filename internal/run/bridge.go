// Package run bridges one live agent run onto the realtime channel: each
// item the engine yields becomes exactly one UI event, and the terminal
// result is captured exactly once no matter which of the engine's two
// channels it arrives on.
package run

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/loopwork/agentchat/internal/engine"
	"github.com/loopwork/agentchat/internal/eventbus"
	"github.com/loopwork/agentchat/internal/schema"
	"github.com/loopwork/agentchat/internal/steps"
)

// Sink delivers one event to the client. Send blocks until the event is
// flushed to the transport; that blocking is the bridge's backpressure and
// its suspension point between items.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// Stream is the engine-side view the bridge consumes. FinalAnswer and Err
// are valid once Items is closed.
type Stream interface {
	Items() <-chan any
	FinalAnswer() *steps.FinalAnswerStep
	Err() error
}

// Runner starts one agent run.
type Runner interface {
	Run(ctx context.Context, task string) Stream
}

// AgentRunner adapts the concrete engine to the Runner interface.
type AgentRunner struct {
	Agent *engine.CodeAgent
}

func (r AgentRunner) Run(ctx context.Context, task string) Stream {
	return r.Agent.Run(ctx, task)
}

// Bridge drives runs. Journal, when set, records every emitted event.
type Bridge struct {
	Agent   Runner
	Journal *eventbus.Bus
}

// Run executes one task and emits its event sequence to sink: agent_start,
// one event per yielded item, at most one final_answer, an error event on
// failure, and always exactly one run_complete. It returns the captured
// terminal step (nil if the run produced none) and the run failure, if
// any. Persisting the step history afterwards is the caller's half of the
// "finished" phase.
func (b *Bridge) Run(ctx context.Context, sessionID, runID, task string, sink Sink) (*steps.FinalAnswerStep, error) {
	if b.Agent == nil {
		err := errors.New("no agent configured")
		b.journal(ctx, sessionID, runID, ErrorEvent(err.Error()))
		if sendErr := sink.Send(ctx, ErrorEvent(err.Error())); sendErr != nil {
			log.Printf("send error event: %v", sendErr)
		}
		b.journal(ctx, sessionID, runID, RunComplete())
		if sendErr := sink.Send(ctx, RunComplete()); sendErr != nil {
			log.Printf("send run_complete: %v", sendErr)
		}
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream := b.Agent.Run(runCtx, task)

	var final *steps.FinalAnswerStep
	var runErr error

	scope := func(evt Event) error {
		b.journal(ctx, sessionID, runID, evt)
		return sink.Send(ctx, evt)
	}

	if err := scope(AgentStart()); err != nil {
		runErr = err
	}

	if runErr == nil {
	consume:
		for item := range stream.Items() {
			var evt Event
			switch v := item.(type) {
			case engine.Delta:
				if v.Content == "" {
					continue
				}
				evt = StreamDelta(v.Content)
			case engine.ToolCall:
				evt = ToolStart(v.Name, v.Arguments)
			case *steps.ActionStep:
				evt = ActionStepEvent(v)
			case *steps.PlanningStep:
				evt = PlanningStepEvent(v)
			case *steps.FinalAnswerStep:
				if final != nil {
					// Already emitted for this run; capture only.
					final = v
					continue
				}
				final = v
				evt = FinalAnswerEvent(v)
			default:
				runErr = fmt.Errorf("%w: %T", steps.ErrUnknownStep, item)
				break consume
			}
			if err := scope(evt); err != nil {
				runErr = err
				break consume
			}
		}
	}

	if runErr != nil {
		// Abort: stop the producer and drain so it can exit.
		cancel()
		for range stream.Items() {
		}
	}

	if runErr == nil {
		runErr = stream.Err()
	}

	// The termination signal may carry the terminal value even when it was
	// never yielded. Capture it, emitting only if we have not already.
	if terminal := stream.FinalAnswer(); terminal != nil {
		if final == nil && runErr == nil {
			if err := scope(FinalAnswerEvent(terminal)); err != nil {
				runErr = err
			}
		}
		final = terminal
	}

	if runErr != nil {
		if err := scope(ErrorEvent(runErr.Error())); err != nil {
			log.Printf("send error event: %v", err)
		}
	}
	if err := scope(RunComplete()); err != nil {
		log.Printf("send run_complete: %v", err)
	}

	return final, runErr
}

func (b *Bridge) journal(ctx context.Context, sessionID, runID string, evt Event) {
	if b.Journal == nil {
		return
	}
	input := eventbus.EventInput{
		Stream:    schema.StreamRunEvents,
		SessionID: sessionID,
		RunID:     runID,
		Type:      evt.Type,
		Payload:   evt.Payload,
	}
	if _, err := b.Journal.Push(ctx, input); err != nil {
		log.Printf("journal %s event: %v", evt.Type, err)
	}
	if evt.Type == EventError {
		input.Stream = schema.StreamErrors
		if _, err := b.Journal.Push(ctx, input); err != nil {
			log.Printf("journal error event: %v", err)
		}
	}
}
