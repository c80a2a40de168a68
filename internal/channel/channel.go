// Package channel implements the real-time event channel: a receive-only
// websocket that authenticates with the session token, dispatches typed
// envelopes to listeners and reconnects with exponential backoff.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/myspacecornelius/Dharma/internal/events"
)

var (
	// ErrAlreadyActive is returned by Connect unless the client is idle in
	// Disconnected with no reconnect pending.
	ErrAlreadyActive = errors.New("channel: already connecting or connected")

	// ErrExhausted is reported once the reconnect budget is spent. Only an
	// explicit Connect leaves this state.
	ErrExhausted = errors.New("channel: reconnect attempts exhausted")
)

// TransientError wraps a dial or read failure that feeds the backoff.
type TransientError struct {
	Attempt int
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("channel transient failure (attempt %d): %v", e.Attempt, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status is a point-in-time view of the client.
type Status struct {
	State State
	// Attempt counts transport closes since the last open, so while a retry is
	// pending it is the number of that reconnect. Once exhausted it is
	// MaxAttempts+1: the first connection plus every reconnect failed. The
	// channel.exhausted payload reports the reconnects alone, MaxAttempts.
	Attempt   int
	Exhausted bool
	// RetryIn is the delay of the pending reconnect, zero when none is pending.
	RetryIn time.Duration
	Err     error
}

// Listener receives the payload of every envelope of the type it was
// registered for.
type Listener func(payload json.RawMessage)

// Registration identifies a listener for Off.
type Registration struct {
	typ string
	id  uint64
}

type entry struct {
	id uint64
	fn Listener
}

// Config tunes a Client. Zero values fall back to the defaults noted per field.
type Config struct {
	URL string

	MaxAttempts int           // default 5
	BaseDelay   time.Duration // default 1s
	MaxDelay    time.Duration // zero means uncapped

	PingInterval time.Duration // zero disables pings
	PongTimeout  time.Duration // zero disables the read deadline
	WriteTimeout time.Duration // default 10s

	Dialer Dialer
	Clock  Clock
	Logger *log.Logger
}

// Client owns one logical connection. All methods are safe for concurrent use,
// and On/Off/Connect/Disconnect may be called from inside a Listener.
type Client struct {
	cfg    Config
	base   *url.URL
	logger *log.Logger

	mu        sync.Mutex
	state     State
	attempt   int
	exhausted bool
	lastErr   error
	token     string
	gen       uint64
	conn      Conn
	timer     Timer
	retryIn   time.Duration
	cancel    context.CancelFunc

	lmu       sync.Mutex
	listeners map[string][]entry
	nextID    uint64

	hmu   sync.Mutex
	hooks []func(Status)

	wg sync.WaitGroup
}

// New validates cfg and returns an idle client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "channel url")
	}
	if base.Scheme != "ws" && base.Scheme != "wss" {
		return nil, errors.Errorf("channel url %q: scheme must be ws or wss", cfg.URL)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{HandshakeTimeout: 10 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Client{
		cfg:       cfg,
		base:      base,
		logger:    cfg.Logger.WithPrefix("channel"),
		listeners: make(map[string][]entry),
	}, nil
}

// On registers fn for envelopes of type typ. Listeners run sequentially in
// registration order on the connection's read goroutine.
func (c *Client) On(typ string, fn Listener) Registration {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextID++
	c.listeners[typ] = append(c.listeners[typ], entry{id: c.nextID, fn: fn})
	return Registration{typ: typ, id: c.nextID}
}

// Off removes a listener. It reports whether the registration was found.
func (c *Client) Off(reg Registration) bool {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	list := c.listeners[reg.typ]
	for i, e := range list {
		if e.id != reg.id {
			continue
		}
		// Build a fresh slice so in-flight dispatch snapshots stay intact.
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(c.listeners, reg.typ)
		} else {
			c.listeners[reg.typ] = next
		}
		return true
	}
	return false
}

// OnStateChange registers an observer for state transitions. Observers run
// outside the client's locks; Status is authoritative when ordering matters.
func (c *Client) OnStateChange(fn func(Status)) {
	c.hmu.Lock()
	c.hooks = append(c.hooks, fn)
	c.hmu.Unlock()
}

// Status returns the current state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Err returns ErrExhausted once the client has given up, else nil.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exhausted {
		return ErrExhausted
	}
	return nil
}

func (c *Client) statusLocked() Status {
	return Status{
		State:     c.state,
		Attempt:   c.attempt,
		Exhausted: c.exhausted,
		RetryIn:   c.retryIn,
		Err:       c.lastErr,
	}
}

// Connect starts connecting with token in the handshake query. It returns
// immediately; progress is reported through OnStateChange. Connect from an
// exhausted client starts a fresh attempt budget.
func (c *Client) Connect(token string) error {
	c.mu.Lock()
	if c.state != Disconnected || c.timer != nil {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.token = token
	c.attempt = 0
	c.exhausted = false
	c.lastErr = nil
	c.startDialLocked()
	st := c.statusLocked()
	c.mu.Unlock()

	c.notify(st)
	return nil
}

// Disconnect closes the transport and cancels any pending reconnect before
// returning. It never triggers a reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.retryIn = 0
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = Closing
	closing := c.statusLocked()
	c.mu.Unlock()

	c.notify(closing)
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug("close transport", "err", err)
		}
	}

	c.mu.Lock()
	c.state = Disconnected
	c.attempt = 0
	c.exhausted = false
	c.lastErr = nil
	settled := c.statusLocked()
	c.mu.Unlock()

	c.logger.Info("disconnected")
	c.notify(settled)
}

// Close disconnects and waits for the connection goroutines to exit. It must
// not be called from a Listener or state observer.
func (c *Client) Close() {
	c.Disconnect()
	c.wg.Wait()
}

func (c *Client) dialURL() string {
	u := *c.base
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// startDialLocked moves to Connecting and dials in the background.
func (c *Client) startDialLocked() {
	c.gen++
	gen := c.gen
	c.state = Connecting
	c.retryIn = 0

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	target := c.dialURL()

	c.logger.Debug("dialing", "attempt", c.attempt)
	c.wg.Add(1)
	go c.dial(ctx, gen, target)
}

func (c *Client) dial(ctx context.Context, gen uint64, target string) {
	defer c.wg.Done()

	conn, err := c.cfg.Dialer.Dial(ctx, target)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if err != nil {
		st, exhausted := c.closedLocked(err)
		c.mu.Unlock()
		c.afterClose(st, exhausted)
		return
	}

	c.conn = conn
	c.state = Connected
	c.attempt = 0
	c.lastErr = nil
	st := c.statusLocked()
	c.mu.Unlock()

	c.logger.Info("connected")
	c.notify(st)
	c.readLoop(gen, conn)
}

// readLoop runs until the transport fails or is closed by Disconnect.
func (c *Client) readLoop(gen uint64, conn Conn) {
	stopPing := make(chan struct{})
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		c.pingLoop(conn, stopPing)
	}()

	if c.cfg.PongTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		})
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	}

	var readErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		env, ok := parseEnvelope(data)
		if !ok {
			c.logger.Debug("dropping malformed frame", "bytes", len(data))
			continue
		}
		if !c.owns(gen) {
			break
		}
		c.dispatch(env)
	}

	close(stopPing)
	<-pingDone
	conn.Close()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	st, exhausted := c.closedLocked(readErr)
	c.mu.Unlock()
	c.afterClose(st, exhausted)
}

func (c *Client) owns(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Client) pingLoop(conn Conn, stop <-chan struct{}) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ping failed", "err", err)
				return
			}
		}
	}
}

// closedLocked applies the close transition: Disconnected(attempt+1), then
// either one scheduled reconnect or exhaustion.
func (c *Client) closedLocked(cause error) (Status, bool) {
	c.attempt++
	c.state = Disconnected
	if cause != nil {
		c.lastErr = &TransientError{Attempt: c.attempt, Err: cause}
		c.logger.Warn("transport closed", "attempt", c.attempt, "err", cause)
	}

	if c.attempt > c.cfg.MaxAttempts {
		c.exhausted = true
		c.lastErr = ErrExhausted
		c.retryIn = 0
		c.logger.Error("giving up", "attempts", c.attempt-1)
		return c.statusLocked(), true
	}

	delay := c.backoff(c.attempt)
	gen := c.gen
	c.retryIn = delay
	c.timer = c.cfg.Clock.AfterFunc(delay, func() { c.retry(gen) })
	c.logger.Info("reconnect scheduled", "attempt", c.attempt, "delay", delay)
	return c.statusLocked(), false
}

func (c *Client) afterClose(st Status, exhausted bool) {
	c.notify(st)
	if exhausted {
		payload, _ := json.Marshal(events.Exhausted{Attempts: st.Attempt - 1})
		c.dispatch(Envelope{Type: events.ChannelExhausted, Payload: payload})
	}
}

func (c *Client) retry(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Disconnected || c.timer == nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.startDialLocked()
	st := c.statusLocked()
	c.mu.Unlock()

	c.notify(st)
}

// backoff returns BaseDelay * 2^(attempt-1), capped at MaxDelay when set.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		if d > time.Duration(1<<62) {
			break
		}
		d *= 2
	}
	if c.cfg.MaxDelay > 0 && d > c.cfg.MaxDelay {
		d = c.cfg.MaxDelay
	}
	return d
}

func (c *Client) dispatch(env Envelope) {
	c.lmu.Lock()
	snapshot := c.listeners[env.Type]
	c.lmu.Unlock()

	for _, e := range snapshot {
		c.invoke(env, e.fn)
	}
}

func (c *Client) invoke(env Envelope, fn Listener) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panicked", "type", env.Type, "panic", r)
		}
	}()
	fn(env.Payload)
}

func (c *Client) notify(st Status) {
	c.hmu.Lock()
	hooks := append([]func(Status){}, c.hooks...)
	c.hmu.Unlock()
	for _, h := range hooks {
		h(st)
	}
}
