// Package gateway puts the control surface and its mirrors on the network:
// Connect procedures for the operator, WebSocket sockets for browser
// mirrors and plain HTTP snapshots for late joiners.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/mirror"
)

// Config holds configuration for the lifting gateway
type Config struct {
	ConnectionConfig ConnectionConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// ViewBinding pairs a view's primary with the channel its mirrors listen on.
type ViewBinding struct {
	Primary MirrorController
	Channel mirror.Channel
}

// Service is the lifting gateway
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	lifting           *LiftingService
	bridges           map[mirror.ViewType]*Bridge
}

func NewService(config Config, surface Controller, views ...ViewBinding) (*Service, error) {
	cm := NewConnectionManager(config.ConnectionConfig)

	bridges := make(map[mirror.ViewType]*Bridge, len(views))
	primaries := make(map[mirror.ViewType]MirrorController, len(views))
	controllers := make([]MirrorController, 0, len(views))
	for _, v := range views {
		view := v.Primary.View().Type
		b := NewBridge(view, v.Channel, cm)
		if err := b.Start(); err != nil {
			for _, started := range bridges {
				started.Close()
			}
			return nil, fmt.Errorf("failed to start %s bridge: %w", view, err)
		}
		bridges[view] = b
		primaries[view] = v.Primary
		controllers = append(controllers, v.Primary)
	}

	s := &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, bridges),
		stateHandler:      NewStateHandler(surface, primaries, bridges),
		lifting:           NewLiftingService(surface, controllers...),
		bridges:           bridges,
	}
	cm.OnClientMessage(s.clientMessage)
	return s, nil
}

// Start runs the connection manager until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Int("views", len(s.bridges)).Msg("starting lifting gateway")
	s.connectionManager.Start(ctx)
	return s.Stop()
}

func (s *Service) Stop() error {
	for _, b := range s.bridges {
		b.Close()
	}
	log.Info().Msg("lifting gateway stopped")
	return nil
}

// RegisterRoutes registers every gateway route
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.lifting.RegisterRoutes(mux)
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("lifting gateway routes registered")
}

func (s *Service) clientMessage(view mirror.ViewType, data []byte) {
	b, ok := s.bridges[view]
	if !ok {
		return
	}
	if err := b.FromClient(context.Background(), data); err != nil {
		log.Warn().Err(err).Str("view", string(view)).Msg("dropped mirror client frame")
	}
}
