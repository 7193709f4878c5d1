package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/neurablink/internal/store"
)

// DefaultListLimit is used when a list request has no limit parameter.
const DefaultListLimit = 50

// SessionHandler serves the detection history under /api/sessions.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a SessionHandler reading from s.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// ServeHTTP routes /api/sessions, /api/sessions/stats, /api/sessions/{id}
// and /api/sessions/{id}/events.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	id, sub, _ := strings.Cut(path, "/")
	switch {
	case id == "stats":
		h.stats(w, r)
	case id == "":
		h.list(w, r, limit)
	case sub == "":
		h.get(w, r, id)
	case sub == "events":
		h.events(w, r, id, limit)
	default:
		http.NotFound(w, r)
	}
}

type sessionResponse struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at"`
	Active     bool       `json:"active"`
	Extractor  string     `json:"extractor"`
	Calibrator string     `json:"calibrator"`
	Frames     int64      `json:"frames"`
	Blinks     int64      `json:"blinks"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type listEventsResponse struct {
	Events []*store.BlinkEvent `json:"events"`
}

func toResponse(s *store.Session) sessionResponse {
	resp := sessionResponse{
		ID:         s.ID,
		StartedAt:  s.StartedAt,
		Active:     s.Active(),
		Extractor:  s.Extractor,
		Calibrator: s.Calibrator,
		Frames:     s.Frames,
		Blinks:     s.Blinks,
	}
	if s.EndedAt.Valid {
		t := s.EndedAt.Time
		resp.EndedAt = &t
	}
	return resp
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid limit")
	}
	return n, nil
}

func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request, limit int) {
	sessions, err := h.store.Sessions().List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	resp := listSessionsResponse{Sessions: make([]sessionResponse, len(sessions))}
	for i, s := range sessions {
		resp.Sessions[i] = toResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	s, err := h.store.Sessions().GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(s))
}

func (h *SessionHandler) events(w http.ResponseWriter, r *http.Request, id string, limit int) {
	if _, err := h.store.Sessions().GetByID(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	events, err := h.store.Events().ListBySession(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events})
}

type statsResponse struct {
	Since  time.Time `json:"since"`
	Blinks int64     `json:"blinks"`
}

// stats counts blinks since the RFC 3339 "since" parameter, by default the last 24 hours.
func (h *SessionHandler) stats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since")
			return
		}
		since = t
	}

	n, err := h.store.Events().CountSince(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count blinks")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Since: since, Blinks: n})
}
