package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/mirror"
)

// WebSocketHandler upgrades browser mirrors onto their view's bridge
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	bridges           map[mirror.ViewType]*Bridge
}

func NewWebSocketHandler(cm *ConnectionManager, bridges map[mirror.ViewType]*Bridge) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		bridges:           bridges,
	}
}

// HandleMirrorConnection handles GET /ws/mirror?view=<view>
func (h *WebSocketHandler) HandleMirrorConnection(w http.ResponseWriter, r *http.Request) {
	view, err := mirror.ParseViewType(r.URL.Query().Get("view"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	bridge, ok := h.bridges[view]
	if !ok {
		http.Error(w, "view is not mirrored", http.StatusNotFound)
		return
	}

	// Late joiners get the current state straight away.
	if _, err := h.connectionManager.UpgradeConnection(w, r, view, bridge.LastState()); err != nil {
		// Upgrade has already replied to the client.
		log.Error().Err(err).Str("view", string(view)).Msg("failed to upgrade mirror connection")
	}
}

// HandleConnectionStats returns the number of open mirror sockets per view
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.ConnectionCounts())
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/mirror", h.HandleMirrorConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
