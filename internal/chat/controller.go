// Package chat orchestrates sessions: it resets and rehydrates the agent's
// live memory, drives runs through the bridge, and writes the resulting
// step history back to the store. The controller is the explicit home of
// the "active session" state; one controller, one active session, one run
// in flight at a time.
package chat

import (
	"context"
	"log"

	"github.com/loopwork/agentchat/internal/engine"
	"github.com/loopwork/agentchat/internal/idgen"
	"github.com/loopwork/agentchat/internal/run"
	"github.com/loopwork/agentchat/internal/session"
	"github.com/loopwork/agentchat/internal/steps"
)

const previewLimit = 50

type Controller struct {
	Store  *session.Store
	Memory *engine.Memory
	Bridge *run.Bridge

	activeID string
}

func NewController(store *session.Store, memory *engine.Memory, bridge *run.Bridge) *Controller {
	return &Controller{Store: store, Memory: memory, Bridge: bridge}
}

// ActiveID returns the id of the session the live memory belongs to, or ""
// when the conversation has not been saved yet.
func (c *Controller) ActiveID() string { return c.activeID }

// NewChat clears live memory and detaches from the active session. The old
// session stays in the store untouched; the next run creates a fresh one.
func (c *Controller) NewChat() {
	c.Memory.Reset()
	c.activeID = ""
}

// LoadSession replaces live memory with the stored session's steps and
// adopts its id as active. On NotFound nothing changes.
func (c *Controller) LoadSession(id string) (session.Session, error) {
	sess, err := c.Store.Get(id)
	if err != nil {
		return session.Session{}, err
	}
	c.Memory.Replace(steps.DeserializeAll(sess.Steps))
	c.activeID = sess.ID
	return sess, nil
}

// StartRun drives one agent run for task, emitting events to sink, and
// always finishes with exactly one persistence attempt; a run interrupted
// by an error still leaves its partial history recoverable from the store.
func (c *Controller) StartRun(ctx context.Context, task string, sink run.Sink) error {
	runID := idgen.NewRunID()
	final, runErr := c.Bridge.Run(ctx, c.activeID, runID, task, sink)
	if err := c.SaveActive(final); err != nil {
		// Storage trouble must not mask the run outcome; the
		// conversation lives on in memory.
		log.Printf("persist session: %v", err)
	}
	return runErr
}

// SaveActive snapshots live memory into the active session, creating one if
// needed. The captured final step is appended only when it is not already
// the last element of live memory. The check is identity, not equality, so a
// final step the engine did append is never duplicated.
func (c *Controller) SaveActive(final *steps.FinalAnswerStep) error {
	live := c.Memory.Steps()
	if final != nil {
		if len(live) == 0 || live[len(live)-1] != steps.Step(final) {
			live = append(live, final)
		}
	}
	recs, err := steps.SerializeAll(live)
	if err != nil {
		return err
	}
	id, err := c.Store.Upsert(c.activeID, recs, previewFromSteps(live))
	if id != "" {
		c.activeID = id
	}
	return err
}

// Rename updates a stored session's preview text.
func (c *Controller) Rename(id, preview string) (bool, error) {
	return c.Store.Rename(id, preview)
}

// Delete removes a stored session. Deleting the active session keeps the
// live conversation but detaches it, so a later save creates a new session.
func (c *Controller) Delete(id string) (bool, error) {
	ok, err := c.Store.Delete(id)
	if ok && id == c.activeID {
		c.activeID = ""
	}
	return ok, err
}

// previewFromSteps derives the sidebar preview from the first task.
func previewFromSteps(list []steps.Step) string {
	for _, step := range list {
		if task, ok := step.(*steps.TaskStep); ok && task.Task != "" {
			text := []rune(task.Task)
			if len(text) > previewLimit {
				text = text[:previewLimit]
			}
			return string(text) + "..."
		}
	}
	return "New Chat"
}
