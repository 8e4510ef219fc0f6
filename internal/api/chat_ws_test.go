package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/coder/websocket"
	"github.com/loopwork/agentchat/internal/chat"
	"github.com/loopwork/agentchat/internal/engine"
	"github.com/loopwork/agentchat/internal/run"
	"github.com/loopwork/agentchat/internal/session"
	"github.com/loopwork/agentchat/internal/steps"
)

// fakeConn feeds queued control messages to the chat loop and records
// everything written back.
type fakeConn struct {
	inbound  [][]byte
	messages [][]byte
}

func (c *fakeConn) Read(_ context.Context) (websocket.MessageType, []byte, error) {
	if len(c.inbound) == 0 {
		return 0, nil, websocket.CloseError{Code: websocket.StatusNormalClosure}
	}
	msg := c.inbound[0]
	c.inbound = c.inbound[1:]
	return websocket.MessageText, msg, nil
}

func (c *fakeConn) Write(_ context.Context, _ websocket.MessageType, data []byte) error {
	c.messages = append(c.messages, data)
	return nil
}

func (c *fakeConn) queue(t *testing.T, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal control message: %v", err)
	}
	c.inbound = append(c.inbound, data)
}

func (c *fakeConn) eventTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	for _, raw := range c.messages {
		var evt run.Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		types = append(types, evt.Type)
	}
	return types
}

type wsStream struct {
	items chan any
	final *steps.FinalAnswerStep
}

func (s *wsStream) Items() <-chan any                   { return s.items }
func (s *wsStream) FinalAnswer() *steps.FinalAnswerStep { return s.final }
func (s *wsStream) Err() error                          { return nil }

// wsRunner mimics the engine just enough for the control surface: the task
// lands in memory and the run terminates with a text answer.
type wsRunner struct {
	memory *engine.Memory
}

func (r *wsRunner) Run(_ context.Context, task string) run.Stream {
	r.memory.Append(&steps.TaskStep{Task: task})
	final := &steps.FinalAnswerStep{Content: "done"}
	s := &wsStream{items: make(chan any, 1), final: final}
	s.items <- final
	close(s.items)
	return s
}

func newChatController(t *testing.T) *chat.Controller {
	t.Helper()
	store, err := session.NewStore("")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	memory := engine.NewMemory()
	bridge := &run.Bridge{Agent: &wsRunner{memory: memory}}
	return chat.NewController(store, memory, bridge)
}

func TestChatLoopStartRunSequence(t *testing.T) {
	ctrl := newChatController(t)

	conn := &fakeConn{}
	conn.queue(t, controlMessage{Type: "start_run", Message: "count to three"})

	if err := chatLoop(context.Background(), ctrl, conn); err != nil {
		t.Fatalf("chat loop: %v", err)
	}

	want := []string{"agent_start", "final_answer", "run_complete", "history_list"}
	got := conn.eventTypes(t)
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), got)
	}
	for i, typ := range want {
		if got[i] != typ {
			t.Fatalf("event %d: expected %q, got %q", i, typ, got[i])
		}
	}

	// The run persisted a session and the closing history_list carries it.
	summaries := ctrl.Store.ListSummaries()
	if len(summaries) != 1 {
		t.Fatalf("expected one stored session, got %d", len(summaries))
	}
	if summaries[0].Preview != "count to three..." {
		t.Fatalf("unexpected preview %q", summaries[0].Preview)
	}
}

func TestChatLoopHistoryAndNewChat(t *testing.T) {
	ctrl := newChatController(t)
	if _, err := ctrl.Store.Upsert("", []steps.Record{{Type: steps.TypeTask, Task: "old"}}, "old"); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	conn := &fakeConn{}
	conn.queue(t, controlMessage{Type: "get_history"})
	conn.queue(t, controlMessage{Type: "new_chat"})

	if err := chatLoop(context.Background(), ctrl, conn); err != nil {
		t.Fatalf("chat loop: %v", err)
	}

	got := conn.eventTypes(t)
	if len(got) != 2 || got[0] != "history_list" || got[1] != "reload_chat" {
		t.Fatalf("unexpected events %v", got)
	}

	var history run.Event
	if err := json.Unmarshal(conn.messages[0], &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	sessions, ok := history.Payload["sessions"].([]any)
	if !ok || len(sessions) != 1 {
		t.Fatalf("expected one session in history, got %v", history.Payload["sessions"])
	}
}

func TestChatLoopLoadSession(t *testing.T) {
	ctrl := newChatController(t)
	id, err := ctrl.Store.Upsert("", []steps.Record{{Type: steps.TypeTask, Task: "resume me"}}, "resume me")
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	conn := &fakeConn{}
	conn.queue(t, controlMessage{Type: "load_session", ID: id})
	conn.queue(t, controlMessage{Type: "load_session", ID: "missing"})

	if err := chatLoop(context.Background(), ctrl, conn); err != nil {
		t.Fatalf("chat loop: %v", err)
	}

	got := conn.eventTypes(t)
	if len(got) != 2 || got[0] != "reload_chat" || got[1] != "error" {
		t.Fatalf("unexpected events %v", got)
	}
	if ctrl.ActiveID() != id {
		t.Fatalf("expected active session %q, got %q", id, ctrl.ActiveID())
	}

	var reload run.Event
	if err := json.Unmarshal(conn.messages[0], &reload); err != nil {
		t.Fatalf("decode reload: %v", err)
	}
	if reload.Payload["id"] != id {
		t.Fatalf("reload_chat id mismatch: %v", reload.Payload["id"])
	}
}

func TestChatLoopRenameAndDelete(t *testing.T) {
	ctrl := newChatController(t)
	id, err := ctrl.Store.Upsert("", []steps.Record{{Type: steps.TypeTask, Task: "temp"}}, "temp")
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	conn := &fakeConn{}
	conn.queue(t, controlMessage{Type: "rename_session", ID: id, Title: "kept"})
	conn.queue(t, controlMessage{Type: "rename_session", ID: id})
	conn.queue(t, controlMessage{Type: "delete_session", ID: id})

	if err := chatLoop(context.Background(), ctrl, conn); err != nil {
		t.Fatalf("chat loop: %v", err)
	}

	got := conn.eventTypes(t)
	if len(got) != 3 || got[0] != "history_list" || got[1] != "error" || got[2] != "history_list" {
		t.Fatalf("unexpected events %v", got)
	}
	if len(ctrl.Store.ListSummaries()) != 0 {
		t.Fatalf("expected session deleted")
	}
}

func TestChatLoopRejectsBadMessages(t *testing.T) {
	ctrl := newChatController(t)

	conn := &fakeConn{
		inbound: [][]byte{[]byte("{not json")},
	}
	conn.queue(t, controlMessage{Type: "teleport"})
	conn.queue(t, controlMessage{Type: "start_run", Message: "   "})

	if err := chatLoop(context.Background(), ctrl, conn); err != nil {
		t.Fatalf("chat loop: %v", err)
	}

	got := conn.eventTypes(t)
	if len(got) != 3 {
		t.Fatalf("expected three error events, got %v", got)
	}
	for i, typ := range got {
		if typ != "error" {
			t.Fatalf("event %d: expected error, got %q", i, typ)
		}
	}
}
