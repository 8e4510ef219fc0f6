package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/loopwork/agentchat/internal/chat"
	"github.com/loopwork/agentchat/internal/run"
	"github.com/loopwork/agentchat/internal/session"
)

// wsConn is the slice of *websocket.Conn the chat loop needs.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
}

// controlMessage is a client request on the chat channel.
type controlMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Title   string `json:"title,omitempty"`
}

// eventWriter sends run events down the WebSocket. Write blocks until the
// frame is flushed, which is what throttles the agent between events.
type eventWriter struct {
	conn wsConn
}

func (w eventWriter) Send(ctx context.Context, evt run.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return w.conn.Write(ctx, websocket.MessageText, payload)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	if s.Chat == nil {
		writeError(w, http.StatusInternalServerError, errors.New("chat controller unavailable"))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	if err := chatLoop(r.Context(), s.Chat, conn); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "chat error")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

// chatLoop reads control messages until the client goes away. Malformed
// messages get an error event back; transport errors end the loop.
func chatLoop(ctx context.Context, ctrl *chat.Controller, conn wsConn) error {
	sink := eventWriter{conn: conn}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := sink.Send(ctx, run.ErrorEvent("invalid control message")); err != nil {
				return err
			}
			continue
		}
		if err := dispatchControl(ctx, ctrl, msg, sink); err != nil {
			return err
		}
	}
}

// dispatchControl handles one control message. Application-level failures
// turn into error events; a returned error means the connection is gone.
func dispatchControl(ctx context.Context, ctrl *chat.Controller, msg controlMessage, sink eventWriter) error {
	switch msg.Type {
	case "get_history":
		return sink.Send(ctx, run.HistoryList(ctrl.Store.ListSummaries()))

	case "new_chat":
		ctrl.NewChat()
		return sink.Send(ctx, run.ReloadChat(session.Session{}))

	case "load_session":
		sess, err := ctrl.LoadSession(msg.ID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return sink.Send(ctx, run.ErrorEvent("session not found"))
			}
			return sink.Send(ctx, run.ErrorEvent("could not load session"))
		}
		return sink.Send(ctx, run.ReloadChat(sess))

	case "rename_session":
		if strings.TrimSpace(msg.Title) == "" {
			return sink.Send(ctx, run.ErrorEvent("title is required"))
		}
		ok, err := ctrl.Rename(msg.ID, msg.Title)
		if err != nil {
			return sink.Send(ctx, run.ErrorEvent("could not rename session"))
		}
		if !ok {
			return sink.Send(ctx, run.ErrorEvent("session not found"))
		}
		return sink.Send(ctx, run.HistoryList(ctrl.Store.ListSummaries()))

	case "delete_session":
		ok, err := ctrl.Delete(msg.ID)
		if err != nil {
			return sink.Send(ctx, run.ErrorEvent("could not delete session"))
		}
		if !ok {
			return sink.Send(ctx, run.ErrorEvent("session not found"))
		}
		return sink.Send(ctx, run.HistoryList(ctrl.Store.ListSummaries()))

	case "start_run":
		if strings.TrimSpace(msg.Message) == "" {
			return sink.Send(ctx, run.ErrorEvent("message is required"))
		}
		if err := ctrl.StartRun(ctx, msg.Message, sink); err != nil {
			// The bridge already surfaced the failure as an error event.
			log.Printf("run failed: %v", err)
		}
		// Refresh the sidebar so the new or updated session shows up.
		return sink.Send(ctx, run.HistoryList(ctrl.Store.ListSummaries()))

	default:
		return sink.Send(ctx, run.ErrorEvent("unknown control message type"))
	}
}
