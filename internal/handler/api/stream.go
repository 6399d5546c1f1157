package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"GoPredict/internal/domain/models"
	applogger "GoPredict/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// StreamEvent is pushed to websocket subscribers for every accepted snapshot.
type StreamEvent struct {
	Dataset       models.DatasetKey     `json:"dataset"`
	Version       uint64                `json:"version"`
	LastUpdate    *time.Time            `json:"lastUpdate"`
	Records       []models.Record       `json:"records"`
	Notifications []models.Notification `json:"notifications"`
}

type StreamOption func(*StreamHub)

func WithStreamBuffer(n int) StreamOption {
	return func(h *StreamHub) { h.buffer = n }
}

func WithPingInterval(d time.Duration) StreamOption {
	return func(h *StreamHub) { h.pingInterval = d }
}

// StreamHub fans snapshot updates out to websocket clients. Slow clients
// whose buffer fills up are disconnected instead of blocking publishers.
type StreamHub struct {
	logger       *applogger.Logger
	upgrader     websocket.Upgrader
	buffer       int
	pingInterval time.Duration
	writeWait    time.Duration

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func NewStreamHub(l *applogger.Logger, opts ...StreamOption) *StreamHub {
	if l == nil {
		l = applogger.Nop()
	}
	h := &StreamHub{
		logger:       l,
		buffer:       16,
		pingInterval: 30 * time.Second,
		writeWait:    10 * time.Second,
		clients:      make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *StreamHub) Name() string { return "websocket" }

// PublishSnapshot queues snap for every connected client.
func (h *StreamHub) PublishSnapshot(_ context.Context, snap *models.Snapshot) error {
	b, err := json.Marshal(StreamEvent{
		Dataset:       snap.Dataset,
		Version:       snap.Version,
		LastUpdate:    snap.LastUpdated,
		Records:       snap.Records,
		Notifications: snap.Notifications,
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*streamClient
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("stream client too slow, disconnecting")
		h.remove(c)
	}
	return nil
}

// Clients returns the number of connected subscribers.
func (h *StreamHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handle upgrades the request and streams events until the client leaves.
func (h *StreamHub) Handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := &streamClient{
		conn: conn,
		send: make(chan []byte, h.buffer),
		done: make(chan struct{}),
	}
	if !h.add(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		client.close()
		return nil
	}
	h.logger.Debug("stream client connected", applogger.String("remote", c.RealIP()))

	go h.writeLoop(client)
	h.readLoop(client)
	h.remove(client)
	return nil
}

// Close disconnects every client and rejects new ones.
func (h *StreamHub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *StreamHub) add(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *StreamHub) remove(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// readLoop drains client frames so control messages are processed.
func (h *StreamHub) readLoop(c *streamClient) {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHub) writeLoop(c *streamClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
