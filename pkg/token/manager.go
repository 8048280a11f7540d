// Package token keeps accounting access tokens valid, refreshing them on demand.
package token

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ledger_bridge/pkg/apperr"
	"ledger_bridge/pkg/logging"
	"ledger_bridge/pkg/store"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Operation receives a valid access token for the realm it was called for.
type Operation func(ctx context.Context, accessToken string) error

// CredentialRepository is the persistence the manager needs.
type CredentialRepository interface {
	Get(ctx context.Context, realmID string) (*store.AccessCredential, error)
	Save(ctx context.Context, cred *store.AccessCredential) error
}

// Manager wraps operations that need an access token. Concurrent callers that
// find the same realm expired share one refresh.
type Manager struct {
	creds      CredentialRepository
	oauth      *oauth2.Config
	httpClient *http.Client
	log        *zap.Logger
	now        func() time.Time
	flights    singleflight.Group
}

type Option func(*Manager)

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(creds CredentialRepository, oauth *oauth2.Config, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		creds:      creds,
		oauth:      oauth,
		httpClient: http.DefaultClient,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithAuthenticatedCall invokes op with a valid access token for realmID,
// refreshing and persisting the credential first when it has expired.
// op is not invoked when the credential is missing or the refresh fails.
func (m *Manager) WithAuthenticatedCall(ctx context.Context, realmID string, op Operation) error {
	cred, err := m.creds.Get(ctx, realmID)
	if err != nil {
		return err
	}

	accessToken := cred.AccessToken
	if cred.AccessExpired(m.now()) {
		accessToken, err = m.refresh(ctx, realmID)
		if err != nil {
			return err
		}
	}

	return op(ctx, accessToken)
}

// Caller is implemented by Manager and by test doubles standing in for it.
type Caller interface {
	WithAuthenticatedCall(ctx context.Context, realmID string, op Operation) error
}

// Call is WithAuthenticatedCall for operations that produce a value.
func Call[T any](ctx context.Context, m Caller, realmID string, op func(ctx context.Context, accessToken string) (T, error)) (T, error) {
	var result T
	err := m.WithAuthenticatedCall(ctx, realmID, func(ctx context.Context, accessToken string) error {
		var opErr error
		result, opErr = op(ctx, accessToken)
		return opErr
	})
	return result, err
}

func (m *Manager) refresh(ctx context.Context, realmID string) (string, error) {
	// The flight is shared, so it must outlive the caller that started it.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := m.flights.Do(realmID, func() (interface{}, error) {
		// A flight that finished just before this one may already have refreshed.
		cred, err := m.creds.Get(flightCtx, realmID)
		if err != nil {
			return "", err
		}
		if !cred.AccessExpired(m.now()) {
			return cred.AccessToken, nil
		}
		return m.exchangeRefreshToken(flightCtx, cred)
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.log.Debug("joined in-flight token refresh", zap.String("realm_id", realmID))
	}
	return v.(string), nil
}

func (m *Manager) exchangeRefreshToken(ctx context.Context, cred *store.AccessCredential) (string, error) {
	realmID := cred.RealmID
	m.log.Info("access token expired, refreshing",
		zap.String("realm_id", realmID),
		zap.Time("access_expires_at", cred.AccessExpiresAt))

	// Without an access token the source always goes to the token endpoint.
	stale := &oauth2.Token{RefreshToken: cred.RefreshToken}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	fresh, err := m.oauth.TokenSource(tokenCtx, stale).Token()
	if err != nil {
		m.log.Error("refresh token exchange failed", zap.String("realm_id", realmID), zap.Error(err))
		return "", &apperr.RefreshFailed{RealmID: realmID, Err: err}
	}

	updated := FromOAuthToken(realmID, fresh, m.now())
	if updated.RefreshToken == "" {
		updated.RefreshToken = cred.RefreshToken
	}
	if updated.RefreshExpiresAt.IsZero() {
		updated.RefreshExpiresAt = cred.RefreshExpiresAt
	}
	if err := m.creds.Save(ctx, updated); err != nil {
		return "", &apperr.RefreshFailed{RealmID: realmID, Err: err}
	}

	m.log.Info("refreshed access token",
		zap.String("realm_id", realmID),
		zap.String("access_token", logging.MaskToken(updated.AccessToken)),
		zap.Time("access_expires_at", updated.AccessExpiresAt))
	return updated.AccessToken, nil
}

// FromOAuthToken converts a token endpoint response into a credential row.
// The refresh expiry comes from the x_refresh_token_expires_in extra and is
// zero when the response does not carry it.
func FromOAuthToken(realmID string, tok *oauth2.Token, now time.Time) *store.AccessCredential {
	cred := &store.AccessCredential{
		RealmID:         realmID,
		AccessToken:     tok.AccessToken,
		RefreshToken:    tok.RefreshToken,
		AccessExpiresAt: tok.Expiry,
	}
	if cred.AccessExpiresAt.IsZero() {
		cred.AccessExpiresAt = now.Add(time.Hour)
	}
	if secs, ok := extraSeconds(tok.Extra("x_refresh_token_expires_in")); ok {
		cred.RefreshExpiresAt = now.Add(time.Duration(secs) * time.Second)
	}
	return cred
}

func extraSeconds(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
