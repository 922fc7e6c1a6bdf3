// Package statusfeed broadcasts job status to UI listeners over a websocket
// and serves the process metrics next to it.
package statusfeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richinsley/matforge2go/logging"
	"go.uber.org/zap"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// Hub fans messages out to every connected websocket client. New clients
// receive the last status message first.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	status   []byte
	closed   bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub. logger may be nil.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the feed is read-only and carries no credentials
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logging.OrNop(logger),
	}
}

// Publish sends m to every client. A client whose buffer is full is
// disconnected rather than blocking the publisher.
func (h *Hub) Publish(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", m.Type, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("status hub closed")
	}
	if m.Type == TypeStatus {
		h.status = data
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow status client", zap.String("remote", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
	}
	return nil
}

// Status publishes the environment state.
func (h *Hub) Status(environment string, queueLength int) error {
	return h.Publish(Message{Type: TypeStatus, Data: &DataStatus{Environment: environment, QueueLength: queueLength}})
}

func (h *Hub) Started(jobID, name, operation string) error {
	return h.Publish(Message{Type: TypeStarted, JobID: jobID, Data: &DataStarted{Name: name, Operation: operation}})
}

func (h *Hub) Progress(jobID string, value, max int, label string) error {
	return h.Publish(Message{Type: TypeProgress, JobID: jobID, Data: &DataProgress{Value: value, Max: max, Label: label}})
}

// Stopped publishes the end of a job: the material on success, the error
// otherwise.
func (h *Hub) Stopped(jobID, material string, jobErr error) error {
	data := &DataStopped{Material: material}
	if jobErr != nil {
		data.Material = ""
		data.Error = jobErr.Error()
		data.ErrorKind = fmt.Sprintf("%T", jobErr)
	}
	return h.Publish(Message{Type: TypeStopped, JobID: jobID, Data: data})
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.status != nil {
		c.send <- h.status
	}
	h.mu.Unlock()
	h.logger.Debug("status client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop discards anything the client sends and notices when it leaves.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Close disconnects every client. Publish fails afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// Handler serves the feed on /ws and the metrics gathered from g on
// /metrics. A nil g selects the default registry.
func (h *Hub) Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}
