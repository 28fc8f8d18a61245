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
	"github.com/rs/zerolog/log"

	"github.com/BugisoftRSG/subathon-timer/internal/timer"
)

// StateProvider supplies the snapshot a late-joining overlay needs to render
// full state without replaying history.
type StateProvider interface {
	Snapshot() timer.ViewState
}

// Hub fans engine state changes out to every connected overlay. It
// implements timer.Broadcaster.
type Hub struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   Config

	state StateProvider

	broadcastCh chan *Event
}

// Connection is one overlay's WebSocket connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub

	ConnectedAt time.Time
	LastPing    time.Time
}

// Config holds WebSocket connection tuning.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Overlays are typically loaded from OBS browser sources with
			// arbitrary origins.
			return true
		},
	}
}

// NewHub creates a hub. The state provider is attached separately because
// the engine that provides it broadcasts through this hub.
func NewHub(config Config) *Hub {
	return &Hub{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan *Event, 256),
	}
}

// SetStateProvider attaches the source of late-join snapshots.
func (h *Hub) SetStateProvider(p StateProvider) {
	h.state = p
}

// Run processes broadcast messages until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("gateway hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway hub shutting down")
			return
		case event := <-h.broadcastCh:
			h.handleBroadcast(event)
		}
	}
}

// BroadcastTimer implements timer.Broadcaster.
func (h *Hub) BroadcastTimer(endingAt time.Time, forced bool) {
	event, err := timerEvent(endingAt, forced)
	if err != nil {
		log.Error().Err(err).Msg("failed to build timer event")
		return
	}
	h.enqueue(event)
}

// BroadcastUptime implements timer.Broadcaster.
func (h *Hub) BroadcastUptime(startedAt time.Time) {
	event, err := uptimeEvent(startedAt)
	if err != nil {
		log.Error().Err(err).Msg("failed to build uptime event")
		return
	}
	h.enqueue(event)
}

// BroadcastIncentives implements timer.Broadcaster.
func (h *Hub) BroadcastIncentives(inc timer.Incentives) {
	event, err := incentivesEvent(inc)
	if err != nil {
		log.Error().Err(err).Msg("failed to build incentives event")
		return
	}
	h.enqueue(event)
}

func (h *Hub) enqueue(event *Event) {
	select {
	case h.broadcastCh <- event:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("broadcast channel full, dropping event")
	}
}

// Upgrade upgrades an HTTP request to a WebSocket connection, delivers the
// late-join snapshot and starts the connection pumps.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Hub:         h,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	h.register(connection)
	h.sendSnapshot(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().Str("connection_id", connection.ID).Msg("overlay connected")
	return nil
}

// sendSnapshot queues the full current state for one connection: incentive
// amounts, a forced timer update and the uptime.
func (h *Hub) sendSnapshot(conn *Connection) {
	if h.state == nil {
		return
	}
	view := h.state.Snapshot()

	events := make([]*Event, 0, 3)
	if event, err := incentivesEvent(view.Incentives); err == nil {
		events = append(events, event)
	}
	if event, err := timerEvent(view.EndingAt, true); err == nil {
		events = append(events, event)
	}
	if event, err := uptimeEvent(view.StartedAt); err == nil {
		events = append(events, event)
	}

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal snapshot event")
			continue
		}
		select {
		case conn.Send <- data:
		default:
			log.Warn().Str("connection_id", conn.ID).Msg("send buffer full during snapshot")
		}
	}
}

func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(h.connections)).
		Msg("connection registered")
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.connections[conn]; exists {
		delete(h.connections, conn)
		close(conn.Send)

		log.Info().Str("connection_id", conn.ID).Msg("overlay disconnected")
	}
}

// handleBroadcast marshals an event once and fans it out to every
// connection. Slow or dead connections are evicted rather than blocking the
// rest.
func (h *Hub) handleBroadcast(event *Event) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.connections))
	for conn := range h.connections {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, closing connection")
			h.unregister(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Int("connections", len(targets)).
		Msg("event broadcast")
}

// ConnectionCount returns the number of connected overlays.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// writePump sends queued messages and pings to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump consumes the connection so close and pong frames are processed.
// Overlays are display-only; inbound payloads are ignored.
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
	}
}
