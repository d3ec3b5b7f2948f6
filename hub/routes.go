package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bosley/coach/persona"
	"github.com/bosley/coach/session"
	"github.com/bosley/coach/transcript"
	"github.com/gorilla/mux"
)

// request bodies are small JSON documents
const maxBody = 64 * 1024

// Router returns the API routes.
func (h *Hub) Router() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/personas", h.handleListPersonas).Methods("GET")
	api.HandleFunc("/sessions", h.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions", h.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions/{sessionID}", h.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{sessionID}", h.handleStopSession).Methods("DELETE")
	api.HandleFunc("/sessions/{sessionID}/transcript", h.handleAppendTranscript).Methods("POST")
	api.HandleFunc("/sessions/{sessionID}/turns", h.handleObserveTurn).Methods("POST")
	api.HandleFunc("/sessions/{sessionID}/quality", h.handleQuality).Methods("GET")
	api.HandleFunc("/sessions/{sessionID}/audio/retry", h.handleRetryAudio).Methods("POST")

	router.HandleFunc("/ws/{sessionID}", h.handleWebSocket)

	return router
}

type createSessionRequest struct {
	PersonaID string `json:"personaId"`
}

type transcriptRequest struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type turnRequest struct {
	Rep         string `json:"rep"`
	Counterpart string `json:"counterpart"`
	// Append also records both utterances in the transcript.
	Append bool `json:"append"`
}

func (h *Hub) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.List())
}

func (h *Hub) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.List()
	statuses := make([]session.Status, 0, len(sessions))
	for _, s := range sessions {
		statuses = append(statuses, s.Status())
	}

	slog.Debug("Sending session list", "numSessions", len(statuses))
	writeJSON(w, http.StatusOK, statuses)
}

// handleCreateSession starts a text only session. Audio sessions are created by the
// ingest server when a client connects.
func (h *Hub) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.catalog.Get(req.PersonaID)
	if err != nil {
		writeError(w, err)
		return
	}

	s := session.New(h.sessions, p, nil, h)
	// The session outlives the request.
	if err := s.Start(context.Background()); err != nil {
		writeError(w, err)
		return
	}
	h.registry.Add(s)

	slog.Info("Session created over the API", "sessionID", s.ID(), "persona", p.ID)
	writeJSON(w, http.StatusCreated, s.Status())
}

func (h *Hub) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (h *Hub) handleStopSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	sum := s.Stop()
	h.registry.Remove(s.ID())
	h.notifyStopped(s.ID(), sum)
	writeJSON(w, http.StatusOK, sum)
}

func (h *Hub) handleAppendTranscript(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req transcriptRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	speaker, err := transcript.ParseSpeaker(req.Speaker)
	if err != nil {
		writeError(w, badRequest(err))
		return
	}

	entry, err := s.Append(transcript.Entry{Speaker: speaker, Text: req.Text, Timestamp: req.Timestamp})
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Hub) handleObserveTurn(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req turnRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Append {
		for _, e := range []transcript.Entry{
			{Speaker: transcript.Rep, Text: req.Rep},
			{Speaker: transcript.Counterpart, Text: req.Counterpart},
		} {
			if _, err := s.Append(e); err != nil {
				writeError(w, badRequest(err))
				return
			}
		}
	}

	res := s.ObserveTurn(req.Rep, req.Counterpart)
	h.broadcast(s.ID(), Update{Type: UpdateTurn, SessionID: s.ID(), Turn: &res})
	writeJSON(w, http.StatusOK, res)
}

func (h *Hub) handleQuality(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Quality())
}

func (h *Hub) handleRetryAudio(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := s.RetryAudio(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (h *Hub) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.registry.Lookup(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, persona.ErrUnknownPersona):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotRunning), errors.Is(err, session.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, session.ErrAudioUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
