package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// MaxHealthyBacklog is the unsent event count above which the relay is
// reported as falling behind.
const MaxHealthyBacklog = 1000

type HealthStatus struct {
	Healthy           bool     `json:"healthy"`
	PendingEvents     int64    `json:"pending_events"`
	DatabaseConnected *bool    `json:"database_connected,omitempty"`
	NATSConnected     *bool    `json:"nats_connected,omitempty"`
	Errors            []string `json:"errors"`
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Backlogger interface {
	Backlog(ctx context.Context) (int64, error)
}

type ConnectionStatus interface {
	IsConnected() bool
}

// HealthChecker reports on whichever of the database, the outbox backlog
// and the NATS connection the process uses. Nil parts are skipped.
type HealthChecker struct {
	db      Pinger
	backlog Backlogger
	nats    ConnectionStatus
}

func NewHealthChecker(db Pinger, backlog Backlogger, nats ConnectionStatus) *HealthChecker {
	return &HealthChecker{db: db, backlog: backlog, nats: nats}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	dbUp := true
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			dbUp = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
		status.DatabaseConnected = &dbUp
	}

	if h.nats != nil {
		connected := h.nats.IsConnected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if h.backlog != nil && dbUp {
		pending, err := h.backlog.Backlog(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > MaxHealthyBacklog {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}
