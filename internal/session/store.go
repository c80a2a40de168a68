// Package session owns the authenticated identity shared by the HTTP command
// client and the event channel.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const defaultAPIKey = "dev-mode"

// Session is the token/user pair issued by POST /api/auth/session.
type Session struct {
	Token     string    `json:"token" yaml:"token"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	CreatedAt time.Time `json:"-" yaml:"created_at"`
}

// Credential is exchanged for a Session. Empty fields fall back to the
// development API key and the store's device id.
type Credential struct {
	APIKey   string
	DeviceID string
}

// AuthError reports a failed session creation or validation.
type AuthError struct {
	Op     string
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("auth %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Store holds at most one Session. It is the only writer of the token; other
// components read it through CurrentToken.
type Store struct {
	baseURL  string
	client   *http.Client
	logger   *log.Logger
	deviceID string
	path     string

	mu      sync.RWMutex
	current *Session
}

// Option configures a Store.
type Option func(*Store)

// WithPersistence keeps the session in a YAML file at path so a restarted
// process can reuse it.
func WithPersistence(path string) Option {
	return func(s *Store) { s.path = path }
}

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// WithDeviceID pins the device identifier instead of generating one.
func WithDeviceID(id string) Option {
	return func(s *Store) {
		if id != "" {
			s.deviceID = id
		}
	}
}

// NewStore creates a store that authenticates against baseURL
// (e.g. "http://localhost:8000").
func NewStore(baseURL string, logger *log.Logger, opts ...Option) *Store {
	s := &Store{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.WithPrefix("session"),
		deviceID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.path != "" {
		if sess, err := readSessionFile(s.path); err == nil {
			s.current = sess
			s.logger.Debug("restored session", "user", sess.UserID)
		} else if !os.IsNotExist(errors.Cause(err)) {
			s.logger.Warn("ignoring unreadable session file", "path", s.path, "err", err)
		}
	}
	return s
}

// DeviceID returns the identifier sent with Authenticate when the credential
// carries none.
func (s *Store) DeviceID() string { return s.deviceID }

type authRequest struct {
	APIKey   string `json:"api_key"`
	DeviceID string `json:"device_id,omitempty"`
}

// Authenticate exchanges cred for a Session and makes it current. cred may be
// nil.
func (s *Store) Authenticate(ctx context.Context, cred *Credential) (Session, error) {
	req := authRequest{APIKey: defaultAPIKey, DeviceID: s.deviceID}
	if cred != nil {
		if cred.APIKey != "" {
			req.APIKey = cred.APIKey
		}
		if cred.DeviceID != "" {
			req.DeviceID = cred.DeviceID
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Session{}, &AuthError{Op: "create", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/auth/session", bytes.NewReader(body))
	if err != nil {
		return Session{}, &AuthError{Op: "create", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Session{}, &AuthError{Op: "create", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return Session{}, &AuthError{Op: "create", Status: resp.StatusCode}
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return Session{}, &AuthError{Op: "create", Err: errors.Wrap(err, "decode session")}
	}
	if sess.Token == "" {
		return Session{}, &AuthError{Op: "create", Err: errors.New("response carries no token")}
	}
	sess.CreatedAt = time.Now()

	s.mu.Lock()
	s.current = &sess
	if s.path != "" {
		if err := writeSessionFile(s.path, &sess); err != nil {
			s.logger.Warn("could not persist session", "path", s.path, "err", err)
		}
	}
	s.mu.Unlock()

	s.logger.Info("authenticated", "user", sess.UserID)
	return sess, nil
}

// CurrentToken returns the token, or false when the caller must authenticate
// first.
func (s *Store) CurrentToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return "", false
	}
	return s.current.Token, true
}

// Current returns a copy of the held Session.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Invalidate drops the Session and its persisted copy.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
}

// InvalidateToken drops the Session only while token is still the current
// one. A rejection that raced a newer Authenticate leaves the new session in
// place and reports false.
func (s *Store) InvalidateToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Token != token {
		return false
	}
	s.dropLocked()
	return true
}

func (s *Store) dropLocked() {
	s.current = nil
	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("could not remove session file", "path", s.path, "err", err)
		}
	}
}

// Validate checks the held token against an authenticated endpoint. A 401 or
// 403 invalidates the session, unless it was replaced while the check ran.
func (s *Store) Validate(ctx context.Context) error {
	token, ok := s.CurrentToken()
	if !ok {
		return &AuthError{Op: "validate", Err: errors.New("no session")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/laces/balance", nil)
	if err != nil {
		return &AuthError{Op: "validate", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return &AuthError{Op: "validate", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if !s.InvalidateToken(token) {
			s.logger.Debug("ignoring rejection of a replaced session")
		}
		return &AuthError{Op: "validate", Status: resp.StatusCode}
	case resp.StatusCode >= 300:
		return &AuthError{Op: "validate", Status: resp.StatusCode}
	}
	return nil
}

func readSessionFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var sess Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(err, "parse session file")
	}
	if sess.Token == "" {
		return nil, errors.New("session file carries no token")
	}
	return &sess, nil
}

func writeSessionFile(path string, sess *Session) error {
	data, err := yaml.Marshal(sess)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
