package run

import (
	"github.com/loopwork/agentchat/internal/session"
	"github.com/loopwork/agentchat/internal/steps"
)

// Event type tags, one per message on the realtime channel.
const (
	EventAgentStart   = "agent_start"
	EventStreamDelta  = "stream_delta"
	EventToolStart    = "tool_start"
	EventActionStep   = "action_step"
	EventPlanningStep = "planning_step"
	EventFinalAnswer  = "final_answer"
	EventError        = "error"
	EventRunComplete  = "run_complete"
	EventHistoryList  = "history_list"
	EventReloadChat   = "reload_chat"
)

// Event is one message for the UI: a type tag plus that type's payload.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

func AgentStart() Event {
	return Event{Type: EventAgentStart}
}

func StreamDelta(content string) Event {
	return Event{Type: EventStreamDelta, Payload: map[string]any{"content": content}}
}

func ToolStart(toolName, arguments string) Event {
	return Event{Type: EventToolStart, Payload: map[string]any{
		"tool_name": toolName,
		"arguments": arguments,
	}}
}

// ActionStepEvent renders a code-execution turn for the UI. Images carry
// the data-URI prefix so the client can render them directly; the
// persisted form stays plain base64.
func ActionStepEvent(step *steps.ActionStep) Event {
	payload := map[string]any{
		"step_number":  step.StepNumber,
		"observations": step.Observations,
	}
	if step.Code != "" {
		payload["code"] = step.Code
	}
	if step.Error != "" {
		payload["error"] = step.Error
	}
	if len(step.Images) > 0 {
		uris := make([]string, 0, len(step.Images))
		for _, img := range step.Images {
			uris = append(uris, steps.DataURI(img))
		}
		payload["images"] = uris
	}
	return Event{Type: EventActionStep, Payload: payload}
}

func PlanningStepEvent(step *steps.PlanningStep) Event {
	return Event{Type: EventPlanningStep, Payload: map[string]any{"plan": step.Plan}}
}

func FinalAnswerEvent(step *steps.FinalAnswerStep) Event {
	if step.IsImage() {
		return Event{Type: EventFinalAnswer, Payload: map[string]any{
			"type":    "image",
			"content": steps.DataURI(step.Image),
		}}
	}
	return Event{Type: EventFinalAnswer, Payload: map[string]any{
		"type":    "text",
		"content": step.Content,
	}}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Payload: map[string]any{"message": message}}
}

func RunComplete() Event {
	return Event{Type: EventRunComplete}
}

func HistoryList(summaries []session.Summary) Event {
	if summaries == nil {
		summaries = []session.Summary{}
	}
	return Event{Type: EventHistoryList, Payload: map[string]any{"sessions": summaries}}
}

// ReloadChat tells the client to replace its transcript with a stored
// session.
func ReloadChat(sess session.Session) Event {
	recs := sess.Steps
	if recs == nil {
		recs = []steps.Record{}
	}
	payload := map[string]any{"steps": recs}
	if sess.ID != "" {
		payload["id"] = sess.ID
		payload["timestamp"] = sess.Timestamp
		payload["preview"] = sess.Preview
	}
	return Event{Type: EventReloadChat, Payload: payload}
}
