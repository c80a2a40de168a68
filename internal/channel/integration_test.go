package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myspacecornelius/Dharma/internal/logging"
)

// wsServer accepts channel connections carrying the expected token and lets
// the test push frames or drop connections.
type wsServer struct {
	t     *testing.T
	token string
	srv   *httptest.Server

	mu    sync.Mutex
	conns []*websocket.Conn
	seen  chan *websocket.Conn
}

func newWSServer(t *testing.T, token string) *wsServer {
	s := &wsServer{t: t, token: token, seen: make(chan *websocket.Conn, 16)}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != s.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		s.seen <- conn
		// Drain until the client goes away so control frames are handled.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(func() {
		s.mu.Lock()
		for _, c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		s.srv.Close()
	})
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

func (s *wsServer) accept() *websocket.Conn {
	s.t.Helper()
	select {
	case c := <-s.seen:
		return c
	case <-time.After(3 * time.Second):
		s.t.Fatal("server never saw a connection")
		return nil
	}
}

func newLiveClient(t *testing.T, url string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		URL:          url,
		BaseDelay:    10 * time.Millisecond,
		PingInterval: 20 * time.Millisecond,
		PongTimeout:  time.Second,
		Dialer:       WebsocketDialer{HandshakeTimeout: time.Second},
		Logger:       logging.Discard(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestLiveDeliveryAndReconnect(t *testing.T) {
	srv := newWSServer(t, "s3cret")
	c := newLiveClient(t, srv.url(), nil)

	got := make(chan string, 8)
	c.On("task.update", func(p json.RawMessage) { got <- string(p) })

	require.NoError(t, c.Connect("s3cret"))
	conn := srv.accept()
	require.Eventually(t, func() bool { return c.Status().State == Connected }, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"task.update","payload":{"id":"t1","progress":40}}`)))
	select {
	case p := <-got:
		assert.JSONEq(t, `{"id":"t1","progress":40}`, p)
	case <-time.After(3 * time.Second):
		t.Fatal("frame not delivered")
	}

	// Server drops the connection; the client comes back on its own.
	conn.Close()
	conn = srv.accept()
	require.Eventually(t, func() bool { return c.Status().State == Connected }, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"task.update","payload":2}`)))
	select {
	case p := <-got:
		assert.Equal(t, "2", p)
	case <-time.After(3 * time.Second):
		t.Fatal("frame not delivered after reconnect")
	}
}

func TestLiveRejectedHandshakeExhausts(t *testing.T) {
	srv := newWSServer(t, "s3cret")
	c := newLiveClient(t, srv.url(), func(cfg *Config) { cfg.MaxAttempts = 2 })

	exhausted := make(chan json.RawMessage, 2)
	c.On("channel.exhausted", func(p json.RawMessage) { exhausted <- p })

	require.NoError(t, c.Connect("wrong"))
	select {
	case p := <-exhausted:
		assert.JSONEq(t, `{"attempts":2}`, string(p))
	case <-time.After(3 * time.Second):
		t.Fatal("never exhausted")
	}
	assert.ErrorIs(t, c.Err(), ErrExhausted)
}
