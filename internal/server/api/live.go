package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/heartsync/internal/app"
	"github.com/ayusman/heartsync/internal/biometric"
)

// maxPushBytes caps a biometric push body.
const maxPushBytes = 4 << 10

// LiveHandler serves biometric pushes, session control and the current state.
type LiveHandler struct {
	app *app.App
}

// NewLiveHandler creates a LiveHandler for a.
func NewLiveHandler(a *app.App) *LiveHandler {
	return &LiveHandler{app: a}
}

// Register adds the handler's routes to mux.
func (h *LiveHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/biometrics", h.biometrics)
	mux.HandleFunc("/api/session/start", h.startSession)
	mux.HandleFunc("/api/session/stop", h.stopSession)
	mux.HandleFunc("/api/state", h.state)
}

// biometrics handles POST /api/biometrics.
func (h *LiveHandler) biometrics(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	push, err := biometric.DecodePush(http.MaxBytesReader(w, r.Body, maxPushBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sample, err := push.Apply(h.app.Biometrics())
	if err != nil {
		if errors.Is(err, biometric.ErrUnknownPerson) || errors.Is(err, biometric.ErrInvalidRate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to record sample")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Status string           `json:"status"`
		Sample biometric.Sample `json:"sample"`
	}{"ok", sample})
}

// startSession handles POST /api/session/start. A running session is
// restarted.
func (h *LiveHandler) startSession(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	info, err := h.app.StartSession()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "started", Session: info})
}

// stopSession handles POST /api/session/stop. Stopping while idle succeeds
// and changes nothing.
func (h *LiveHandler) stopSession(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	info, err := h.app.StopSession()
	if errors.Is(err, app.ErrNoSession) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "idle"})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to stop session")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "stopped", Session: info})
}

// state handles GET /api/state.
func (h *LiveHandler) state(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.app.State())
}
