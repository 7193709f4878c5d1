package api

import (
	"net/http"
	"strings"
)

// DetectionHandler serves /api/status and /api/detection/{start,stop,camera}.
type DetectionHandler struct {
	ctl Controller
}

// NewDetectionHandler creates a DetectionHandler driving ctl.
func NewDetectionHandler(ctl Controller) *DetectionHandler {
	return &DetectionHandler{ctl: ctl}
}

type cameraRequest struct {
	ID *int `json:"id"`
}

// ServeHTTP implements the http.Handler interface.
func (h *DetectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/status" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.ctl.Status())
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/api/detection/") {
	case "start":
		h.run(w, h.ctl.Start, http.StatusOK)
	case "stop":
		h.run(w, h.ctl.Stop, http.StatusOK)
	case "camera":
		var req cameraRequest
		if err := decode(w, r, &req); err != nil || req.ID == nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		h.run(w, func() error { return h.ctl.SwitchCamera(*req.ID) }, http.StatusAccepted)
	default:
		http.NotFound(w, r)
	}
}

func (h *DetectionHandler) run(w http.ResponseWriter, fn func() error, status int) {
	if err := fn(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, status, h.ctl.Status())
}
