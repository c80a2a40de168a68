package mockapi

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	sendQueueSize = 64
	writeWait     = 10 * time.Second
)

// ErrTooManyClients is returned by AddClient when the connection cap is hit.
var ErrTooManyClients = errors.New("too many websocket clients")

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

func newClient(conn *websocket.Conn, userID string) *client {
	c := &client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendQueueSize),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans envelopes out to every connected channel client. A client
// whose queue is full is disconnected.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int
	logger   *log.Logger
}

func NewBroadcaster(maxConns int, logger *log.Logger) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
		logger:   logger.WithPrefix("broadcast"),
	}
}

func (b *Broadcaster) AddClient(conn *websocket.Conn, userID string) (*client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		return nil, ErrTooManyClients
	}
	c := newClient(conn, userID)
	b.clients[c] = true
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Publish sends an envelope to every client.
func (b *Broadcaster) Publish(typ string, payload any) {
	b.publish(typ, payload, "")
}

// PublishTo sends an envelope to the clients authenticated as userID.
func (b *Broadcaster) PublishTo(userID, typ string, payload any) {
	b.publish(typ, payload, userID)
}

func (b *Broadcaster) publish(typ string, payload any, userID string) {
	data, err := json.Marshal(envelope{Type: typ, Payload: payload})
	if err != nil {
		b.logger.Error("marshal envelope", "type", typ, "err", err)
		return
	}

	// Sends happen under the read lock so no queue is closed mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		if userID != "" && c.userID != userID {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn("client too slow, disconnecting", "user", c.userID)
		b.RemoveClient(c)
	}
}

// CloseAll disconnects every client.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
