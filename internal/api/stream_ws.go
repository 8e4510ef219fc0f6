package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/loopwork/agentchat/internal/eventbus"
	"github.com/loopwork/agentchat/internal/schema"
)

type wsWriter interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
}

// handleEventsList replays journaled events for one stream, optionally
// scoped to a run.
func (s *Server) handleEventsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if s.Bus == nil {
		writeError(w, http.StatusInternalServerError, errors.New("event journal unavailable"))
		return
	}

	stream := r.URL.Query().Get("stream")
	if stream == "" {
		stream = schema.StreamRunEvents
	}
	events, err := s.Bus.List(r.Context(), stream, eventbus.ListOptions{
		RunID: r.URL.Query().Get("run_id"),
		Limit: parseInt(r.URL.Query().Get("limit"), 100),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []eventbus.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleEventsWS tails the journal over a WebSocket. Clients pick streams
// with ?streams=run_events,errors; the default is both.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.Bus == nil {
		writeError(w, http.StatusInternalServerError, errors.New("event journal unavailable"))
		return
	}

	streamsParam := r.URL.Query().Get("streams")
	if streamsParam == "" {
		streamsParam = schema.StreamRunEvents + "," + schema.StreamErrors
	}
	streamList := splitComma(streamsParam)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := r.Context()
	if err := tailJournal(ctx, s.Bus, streamList, conn); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "stream error")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func tailJournal(ctx context.Context, bus *eventbus.Bus, streamList []string, writer wsWriter) error {
	sub := bus.Subscribe(ctx, streamList)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				return err
			}
			if err := writer.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		}
	}
}
