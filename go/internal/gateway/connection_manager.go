package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/outsider/go/internal/eventbus"
	"github.com/mcdev12/outsider/go/internal/room"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// MessageHandler receives everything a connection reads.
type MessageHandler interface {
	HandleMessage(c *Connection, data []byte)
	HandleDisconnect(c *Connection)
}

// ConnectionManager owns every websocket connection and delivers room events
// to them. It implements room.Emitter.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock
	recorder Recorder
	handler  MessageHandler

	broadcastCh chan room.Event
}

// Connection is one websocket client. It is bound to a room and player once
// a join succeeds.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	limiter     *rate.Limiter

	mu       sync.Mutex
	roomCode string
	playerID string
}

type ConnectionConfig struct {
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	MaxMessageSize    int64
	ReadBufferSize    int
	WriteBufferSize   int
	SendBufferSize    int
	BroadcastBuffer   int
	MessagesPerSecond float64
	Burst             int
	CheckOrigin       func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    4096,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBufferSize:    256,
		BroadcastBuffer:   1000,
		MessagesPerSecond: 10,
		Burst:             20,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock, recorder Recorder) *ConnectionManager {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		recorder:    recorder,
		broadcastCh: make(chan room.Event, config.BroadcastBuffer),
	}
}

// Start delivers queued events until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case ev := <-cm.broadcastCh:
			cm.handleBroadcast(ev)
		}
	}
}

// Emit queues a room event for delivery. Rooms call it under their lock, so
// it never blocks.
func (cm *ConnectionManager) Emit(ev room.Event) {
	if len(ev.Recipients) == 0 {
		return
	}
	select {
	case cm.broadcastCh <- ev:
	default:
		log.Warn().
			Str("room_code", ev.Room).
			Str("event_type", string(ev.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.NewString(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
		limiter:     rate.NewLimiter(rate.Limit(cm.config.MessagesPerSecond), cm.config.Burst),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn.ID] = conn
	cm.recorder.RecordActiveConnections(len(cm.connections))
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.connections[conn.ID] != conn {
		return false
	}
	delete(cm.connections, conn.ID)
	close(conn.Send)
	cm.recorder.RecordActiveConnections(len(cm.connections))

	roomCode, playerID := conn.Binding()
	log.Info().
		Str("connection_id", conn.ID).
		Str("room_code", roomCode).
		Str("player_id", playerID).
		Msg("connection unregistered")
	return true
}

// closeConnection drops a connection from the manager and closes the socket.
func (cm *ConnectionManager) closeConnection(conn *Connection) {
	if cm.unregisterConnection(conn) {
		conn.Conn.Close()
	}
}

// findPlayer returns the live connection bound to the player, if any.
func (cm *ConnectionManager) findPlayer(roomCode, playerID string) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, conn := range cm.connections {
		code, id := conn.Binding()
		if code == roomCode && id == playerID {
			return conn
		}
	}
	return nil
}

// SendTo writes an envelope to a single connection, bypassing the room.
func (cm *ConnectionManager) SendTo(conn *Connection, env eventbus.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal direct message")
		return
	}

	cm.mu.RLock()
	full := false
	if cm.connections[conn.ID] == conn {
		select {
		case conn.Send <- data:
		default:
			full = true
		}
	}
	cm.mu.RUnlock()

	if full {
		log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, closing connection")
		cm.closeConnection(conn)
	}
}

func (cm *ConnectionManager) handleBroadcast(ev room.Event) {
	data, err := json.Marshal(eventbus.NewEnvelope(ev, cm.clock.Now()))
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so no Send channel is closed under us.
	var slow []*Connection
	delivered := 0
	cm.mu.RLock()
	for _, rcpt := range ev.Recipients {
		conn, ok := cm.connections[rcpt.ConnID]
		if !ok {
			continue
		}
		select {
		case conn.Send <- data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.closeConnection(conn)
	}

	log.Debug().
		Str("event_type", string(ev.Type)).
		Str("room_code", ev.Room).
		Int("connections", delivered).
		Msg("event broadcasted")
}

type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	counts := make(map[string]int)
	for _, conn := range cm.connections {
		if code, _ := conn.Binding(); code != "" {
			counts[code]++
		}
	}
	return ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveRooms:      len(counts),
		RoomConnections:  counts,
	}
}

// Binding returns the room and player this connection speaks for.
func (c *Connection) Binding() (roomCode, playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode, c.playerID
}

func (c *Connection) bind(roomCode, playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCode, c.playerID = roomCode, playerID
}

func (c *Connection) unbind() {
	c.bind("", "")
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
		if c.Manager.handler != nil {
			c.Manager.handler.HandleDisconnect(c)
		}
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		if !c.limiter.Allow() {
			c.Manager.recorder.RecordInboundMessage("", "rate_limited")
			c.Manager.SendTo(c, c.Manager.errorEnvelope(c, &room.Error{Kind: KindRateLimited, Message: "too many messages"}))
			continue
		}
		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c, message)
		}
	}
}

func (cm *ConnectionManager) errorEnvelope(c *Connection, err error) eventbus.Envelope {
	roomCode, _ := c.Binding()
	kind := room.KindOf(err)
	if kind == "" {
		kind = KindInternal
	}
	return eventbus.Envelope{
		ID:        uuid.NewString(),
		RoomCode:  roomCode,
		Type:      EventError,
		Timestamp: cm.clock.Now().UTC(),
		Data:      ErrorPayload{Message: err.Error(), Kind: kind},
	}
}
