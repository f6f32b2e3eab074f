package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service wires the websocket side of the server: connections, message
// dispatch and the room HTTP API.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	roomsHandler      *RoomsHandler
}

// NewService attaches message dispatch for rooms to cm. The connection
// manager is built first because the rooms emit through it.
func NewService(cm *ConnectionManager, rooms Rooms) *Service {
	cm.handler = NewDispatcher(rooms, cm, cm.recorder)

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		roomsHandler:      NewRoomsHandler(rooms),
	}
}

// Start runs the broadcast loop until ctx is done.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting session gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("session gateway stopped")
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.roomsHandler.RegisterRoutes(mux)
	log.Info().Msg("session gateway routes registered")
}

func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
