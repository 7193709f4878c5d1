package api

import (
	"net/http"

	"github.com/ayusman/neurablink/internal/config"
)

// SettingsHandler serves GET and PUT /api/settings.
type SettingsHandler struct {
	ctl Controller
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(ctl Controller) *SettingsHandler {
	return &SettingsHandler{ctl: ctl}
}

type settingsResponse struct {
	Settings map[string]any `json:"settings"`
	Mutable  []string       `json:"mutable"`
}

// ServeHTTP implements the http.Handler interface.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w)
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) get(w http.ResponseWriter) {
	cfg := h.ctl.Config()

	mutable := []string{}
	for _, k := range config.Keys() {
		if config.Mutable(k) {
			mutable = append(mutable, k)
		}
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: cfg.Values(), Mutable: mutable})
}

// update applies a partial settings object. Only runtime-mutable keys are accepted.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := decode(w, r, &values); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(values) == 0 {
		writeError(w, http.StatusBadRequest, "No settings given")
		return
	}

	if err := h.ctl.Update(values); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.get(w)
}
