package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/mirror"
)

// ConnectionManager manages WebSocket connections of browser mirrors
type ConnectionManager struct {
	// Connection pools organized by view
	viewConnections map[mirror.ViewType]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	// pending holds frames per view until Start hands them to the sockets.
	// A view keeps at most one state frame, the newest.
	queueMu sync.Mutex
	pending map[mirror.ViewType][]BroadcastMessage
	wake    chan struct{}

	// onMessage receives every frame a browser sends
	onMessage func(view mirror.ViewType, data []byte)
}

// Connection represents a WebSocket connection to a mirror view
type Connection struct {
	ID      string
	View    mirror.ViewType
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a frame for every connection of one view
type BroadcastMessage struct {
	View  mirror.ViewType
	Data  []byte
	State bool
}

// maxPendingFrames bounds the non-state frames queued for one view.
const maxPendingFrames = 256

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Displays run on the meet LAN
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		viewConnections: make(map[mirror.ViewType]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		pending:     make(map[mirror.ViewType][]BroadcastMessage),
		wake:        make(chan struct{}, 1),
	}
}

// OnClientMessage sets the handler for frames sent by browsers.
func (cm *ConnectionManager) OnClientMessage(fn func(view mirror.ViewType, data []byte)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onMessage = fn
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case <-cm.wake:
			for _, frames := range cm.drain() {
				for _, message := range frames {
					cm.handleBroadcast(message)
				}
			}
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. greeting, when
// set, is the first frame the client receives.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, view mirror.ViewType, greeting []byte) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.NewString(),
		View:        view,
		Conn:        conn,
		Send:        make(chan []byte, 64),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	if len(greeting) > 0 {
		connection.Send <- greeting
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("view", string(view)).
		Str("remote_addr", r.RemoteAddr).
		Msg("mirror connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.viewConnections[conn.View] == nil {
		cm.viewConnections[conn.View] = make(map[*Connection]bool)
	}
	cm.viewConnections[conn.View][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("view", string(conn.View)).
		Int("total_connections", len(cm.viewConnections[conn.View])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.viewConnections[conn.View]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.viewConnections, conn.View)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("view", string(conn.View)).
		Msg("mirror connection unregistered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.viewConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// BroadcastToView queues a frame for every connection of view. When the
// view's queue is full the oldest non-state frame is dropped.
func (cm *ConnectionManager) BroadcastToView(view mirror.ViewType, data []byte) {
	cm.enqueue(BroadcastMessage{View: view, Data: data})
}

// BroadcastState queues a full state frame for view. It replaces any state
// frame still waiting for the same view, so the newest state always goes out.
func (cm *ConnectionManager) BroadcastState(view mirror.ViewType, data []byte) {
	cm.enqueue(BroadcastMessage{View: view, Data: data, State: true})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	cm.queueMu.Lock()
	frames := cm.pending[message.View]
	if message.State {
		kept := frames[:0]
		for _, f := range frames {
			if !f.State {
				kept = append(kept, f)
			}
		}
		frames = kept
	} else if countFrames(frames) >= maxPendingFrames {
		for i, f := range frames {
			if !f.State {
				frames = append(frames[:i], frames[i+1:]...)
				break
			}
		}
		log.Warn().Str("view", string(message.View)).Msg("broadcast queue full, dropping oldest frame")
	}
	cm.pending[message.View] = append(frames, message)
	cm.queueMu.Unlock()

	select {
	case cm.wake <- struct{}{}:
	default:
	}
}

func countFrames(frames []BroadcastMessage) int {
	n := 0
	for _, f := range frames {
		if !f.State {
			n++
		}
	}
	return n
}

// drain takes every queued frame, grouped by view in queue order.
func (cm *ConnectionManager) drain() map[mirror.ViewType][]BroadcastMessage {
	cm.queueMu.Lock()
	defer cm.queueMu.Unlock()
	out := cm.pending
	cm.pending = make(map[mirror.ViewType][]BroadcastMessage, len(out))
	return out
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	// Sends happen under the read lock so no Send channel is closed under us.
	cm.mu.RLock()
	connections := cm.viewConnections[message.View]
	var slow []*Connection
	for conn := range connections {
		select {
		case conn.Send <- message.Data:
		default:
			slow = append(slow, conn)
		}
	}
	delivered := len(connections) - len(slow)
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("view", string(message.View)).
		Int("connections", delivered).
		Msg("mirror frame broadcasted")
}

// ConnectionCounts returns the number of open connections per view
func (cm *ConnectionManager) ConnectionCounts() map[mirror.ViewType]int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	counts := make(map[mirror.ViewType]int, len(cm.viewConnections))
	for view, connections := range cm.viewConnections {
		counts[view] = len(connections)
	}
	return counts
}

func (cm *ConnectionManager) clientMessage(view mirror.ViewType, data []byte) {
	cm.mu.RLock()
	fn := cm.onMessage
	cm.mu.RUnlock()
	if fn != nil {
		fn(view, data)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
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
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump forwards client frames to the manager until the socket closes
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
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
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			break
		}
		c.Manager.clientMessage(c.View, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
