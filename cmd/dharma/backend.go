package main

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/myspacecornelius/Dharma/internal/channel"
	"github.com/myspacecornelius/Dharma/internal/client"
	"github.com/myspacecornelius/Dharma/internal/session"
)

// backend bundles the session store and the REST client built from cfg.
type backend struct {
	store *session.Store
	api   *client.HTTPClient
	cred  *session.Credential
}

func newBackend() *backend {
	opts := []session.Option{
		session.WithDeviceID(cfg.API.DeviceID),
		session.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
	}
	if cfg.API.SessionFile != "" {
		opts = append(opts, session.WithPersistence(cfg.API.SessionFile))
	}
	store := session.NewStore(cfg.API.BaseURL, logger, opts...)
	return &backend{
		store: store,
		api:   client.NewHTTPClient(cfg.API.BaseURL, store, cfg.API.Timeout, logger),
		cred:  &session.Credential{APIKey: cfg.API.APIKey, DeviceID: cfg.API.DeviceID},
	}
}

// ensureSession authenticates unless a session is already held.
func (b *backend) ensureSession(ctx context.Context) error {
	if _, ok := b.store.CurrentToken(); ok {
		return nil
	}
	_, err := b.store.Authenticate(ctx, b.cred)
	return err
}

// call runs fn with a session, signing in again once if the backend rejects
// the held token.
func (b *backend) call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.ensureSession(ctx); err != nil {
		return err
	}
	token, _ := b.store.CurrentToken()
	err := fn(ctx)
	if !client.IsUnauthorized(err) {
		return err
	}
	logger.Debug("session rejected, signing in again")
	b.store.InvalidateToken(token)
	if err := b.ensureSession(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// validSession returns a token the backend accepts. A restored session that
// fails validation is replaced by a fresh one.
func (b *backend) validSession(ctx context.Context) (string, error) {
	if err := b.ensureSession(ctx); err != nil {
		return "", err
	}
	err := b.store.Validate(ctx)
	var authErr *session.AuthError
	if errors.As(err, &authErr) && (authErr.Status == http.StatusUnauthorized || authErr.Status == http.StatusForbidden) {
		logger.Debug("stored session rejected, signing in again")
		if err := b.ensureSession(ctx); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}
	token, ok := b.store.CurrentToken()
	if !ok {
		return "", errors.New("session dropped while signing in")
	}
	return token, nil
}

func newChannel() (*channel.Client, error) {
	return channel.New(channel.Config{
		URL:          cfg.API.WSURL,
		MaxAttempts:  cfg.Channel.MaxAttempts,
		BaseDelay:    cfg.Channel.BaseDelay,
		MaxDelay:     cfg.Channel.MaxDelay,
		PingInterval: cfg.Channel.PingInterval,
		PongTimeout:  cfg.Channel.PongTimeout,
		Dialer:       channel.WebsocketDialer{HandshakeTimeout: cfg.Channel.HandshakeTimeout},
		Logger:       logger,
	})
}
