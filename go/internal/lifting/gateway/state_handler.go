package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/control"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/mirror"
)

// StateProvider returns the current surface snapshot
type StateProvider interface {
	Snapshot() control.Snapshot
}

// MirrorStateResponse is what a late-joining display fetches over plain HTTP.
type MirrorStateResponse struct {
	Status   *mirror.Status  `json:"status,omitempty"`
	Rendered mirror.Rendered `json:"rendered"`
}

// StateHandler handles HTTP requests for lifting state
type StateHandler struct {
	stateProvider StateProvider
	primaries     map[mirror.ViewType]MirrorController
	bridges       map[mirror.ViewType]*Bridge
}

func NewStateHandler(provider StateProvider, primaries map[mirror.ViewType]MirrorController, bridges map[mirror.ViewType]*Bridge) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
		primaries:     primaries,
		bridges:       bridges,
	}
}

// HandleGetState handles GET /api/lifting/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stateProvider.Snapshot())
}

// HandleGetMirror handles GET /api/lifting/mirrors/{view}
func (h *StateHandler) HandleGetMirror(w http.ResponseWriter, r *http.Request) {
	view, err := mirror.ParseViewType(r.PathValue("view"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := MirrorStateResponse{
		Rendered: mirror.Rendered{View: view, Waiting: true, Message: mirror.PlaceholderMessage},
	}
	if p, ok := h.primaries[view]; ok {
		status := p.Status()
		res.Status = &status
	}
	if b, ok := h.bridges[view]; ok {
		if frame := b.LastState(); frame != nil {
			var env mirror.Envelope
			if err := json.Unmarshal(frame, &env); err == nil {
				res.Rendered = mirror.Rendered{View: view, State: env.Data, ReceivedAt: env.Timestamp}
			}
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/lifting/state", h.HandleGetState)
	mux.HandleFunc("GET /api/lifting/mirrors/{view}", h.HandleGetMirror)
}
