// Package api provides the HTTP handlers for conversation sessions.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brconnect/leadintake/internal/flow"
	"github.com/brconnect/leadintake/internal/models"
	"github.com/google/uuid"
)

// draftRequest carries raw keystroke text from the presentation sink.
type draftRequest struct {
	Text string `json:"text"`
}

// submitRequest carries a submit event. Option is set when the user clicked a
// suggested choice; when empty the current draft is committed.
type submitRequest struct {
	Option string `json:"option,omitempty"`
}

// sessionsHandler handles POST /sessions.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.sessionsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	id := uuid.NewString()
	sess := flow.NewSession(id, s.verifier, s.orchestrator, s.timer, s.typingDelay)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	slog.Info("Server.sessionsHandler: session created", "sessionID", id)
	writeJSONResponse(w, http.StatusCreated, models.Success(sess.Snapshot()))
}

// sessionRouter dispatches /sessions/{id}[/draft|/submit].
func (s *Server) sessionRouter(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session id required"))
		return
	}

	sess := s.lookupSession(segments[0])
	if sess == nil {
		slog.Debug("Server.sessionRouter: session not found", "sessionID", segments[0])
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getSessionHandler(w, r, sess)
		case http.MethodDelete:
			s.closeSessionHandler(w, r, sess)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		switch segments[1] {
		case "draft":
			s.draftHandler(w, r, sess)
		case "submit":
			s.submitHandler(w, r, sess)
		default:
			writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
		}
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
}

func (s *Server) lookupSession(id string) *flow.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// getSessionHandler handles GET /sessions/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request, sess *flow.Session) {
	writeJSONResponse(w, http.StatusOK, models.Success(sess.Snapshot()))
}

// closeSessionHandler handles DELETE /sessions/{id}. In-flight persistence
// keeps running detached.
func (s *Server) closeSessionHandler(w http.ResponseWriter, r *http.Request, sess *flow.Session) {
	sess.Close()
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
	slog.Info("Server.closeSessionHandler: session closed", "sessionID", sess.ID())
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// draftHandler handles POST /sessions/{id}/draft: formats raw keystroke text
// and stores it as the current draft.
func (s *Server) draftHandler(w http.ResponseWriter, r *http.Request, sess *flow.Session) {
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.draftHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	formatted, err := sess.SetDraftInput(req.Text)
	if err != nil {
		s.writeSubmitError(w, sess, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"draft": formatted}))
}

// submitHandler handles POST /sessions/{id}/submit.
func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request, sess *flow.Session) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.submitHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := sess.Submit(r.Context(), req.Option); err != nil {
		s.writeSubmitError(w, sess, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess.Snapshot()))
}

// writeSubmitError maps the submit error taxonomy to HTTP statuses. Every
// recoverable rejection also ships the current snapshot so the sink can show
// the freshest notices.
func (s *Server) writeSubmitError(w http.ResponseWriter, sess *flow.Session, err error) {
	var validationErr *flow.ValidationError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.Is(err, flow.ErrVerificationRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, flow.ErrVerificationUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, flow.ErrSessionBusy), errors.Is(err, flow.ErrConversationDone):
		status = http.StatusConflict
	case errors.Is(err, flow.ErrSessionClosed):
		status = http.StatusGone
	}
	slog.Debug("Server.writeSubmitError: submit rejected", "sessionID", sess.ID(), "status", status, "error", err)
	resp := models.Error(err.Error())
	resp.Result = sess.Snapshot()
	writeJSONResponse(w, status, resp)
}
