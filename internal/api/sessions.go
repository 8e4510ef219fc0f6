package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/loopwork/agentchat/internal/session"
)

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.Store.ListSummaries()})
}

func (s *Server) handleSessionItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errNotFound("session"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, err := s.Store.Get(id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	case http.MethodPatch:
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeJSON(r.Body, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(body.Title) == "" {
			writeError(w, http.StatusBadRequest, errors.New("title is required"))
			return
		}
		ok, err := s.Chat.Rename(id, body.Title)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, errNotFound("session"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case http.MethodDelete:
		ok, err := s.Chat.Delete(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, errNotFound("session"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, errNotFound("session"))
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
