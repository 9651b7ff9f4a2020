// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package token

import (
	"context"
	"sync"
	"time"

	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/keycloak"
	"github.com/openchami/realmgate/pkg/logging"
	"github.com/openchami/realmgate/pkg/metrics"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"
)

// DefaultSafetyMargin is subtracted from expires_in so a cached admin token
// is never presented right as the provider expires it.
const DefaultSafetyMargin = 60 * time.Second

const refreshKey = "admin-token"

// AdminToken is the privileged service account token used for admin calls.
type AdminToken struct {
	Value     string
	ExpiresAt time.Time
}

// String redacts the token value.
func (t AdminToken) String() string {
	return "AdminToken{Value: <redacted>, ExpiresAt: " + t.ExpiresAt.Format(time.RFC3339) + "}"
}

// PasswordGranter performs the resource owner password grant.
type PasswordGranter interface {
	PasswordGrant(ctx context.Context, creds keycloak.PasswordCredentials) (*keycloak.TokenResponse, error)
}

// AdminTokenCacheConfig identifies the service account.
type AdminTokenCacheConfig struct {
	Realm    string
	ClientID string
	Username string
	Password string

	// SafetyMargin defaults to DefaultSafetyMargin when zero.
	SafetyMargin time.Duration
}

// CacheOption customises an AdminTokenCache.
type CacheOption func(*AdminTokenCache)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.PassiveClock) CacheOption {
	return func(a *AdminTokenCache) { a.clock = c }
}

// WithMetrics records hit, refresh and error counts.
func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(a *AdminTokenCache) { a.metrics = m }
}

// AdminTokenCache holds at most one admin token and refreshes it on demand.
//
// A cached token is served while now < ExpiresAt. Concurrent misses share a
// single in-flight password grant. The refresh runs detached from any one
// caller's cancellation, so a caller that gives up neither aborts the shared
// refresh nor clears the previously cached token. Failures are never cached.
type AdminTokenCache struct {
	idp     PasswordGranter
	creds   keycloak.PasswordCredentials
	margin  time.Duration
	clock   clock.PassiveClock
	metrics *metrics.Metrics

	mu    sync.RWMutex
	token *AdminToken

	group singleflight.Group
}

// NewAdminTokenCache creates an empty cache.
func NewAdminTokenCache(idp PasswordGranter, cfg AdminTokenCacheConfig, opts ...CacheOption) (*AdminTokenCache, error) {
	if idp == nil {
		return nil, errors.NewInvalidConfig("identity provider client is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.NewInvalidConfig("admin username and password are required")
	}
	if cfg.Realm == "" {
		cfg.Realm = "master"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "admin-cli"
	}
	if cfg.SafetyMargin == 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	if cfg.SafetyMargin < 0 {
		return nil, errors.NewInvalidConfig("safety margin must not be negative")
	}

	c := &AdminTokenCache{
		idp: idp,
		creds: keycloak.PasswordCredentials{
			Realm:    cfg.Realm,
			ClientID: cfg.ClientID,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		margin: cfg.SafetyMargin,
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetAdminToken returns the cached token, refreshing it first when it is
// absent or expired.
func (c *AdminTokenCache) GetAdminToken(ctx context.Context) (AdminToken, error) {
	if tok, ok := c.cached(); ok {
		c.metrics.AdminToken(metrics.AdminTokenHit)
		return tok, nil
	}

	// The refresh keeps ctx's values for logging but not its cancellation.
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		// Another flight may have finished between the check above and here.
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		return c.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return AdminToken{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return AdminToken{}, res.Err
		}
		return res.Val.(AdminToken), nil
	}
}

// Token implements keycloak.TokenSource.
func (c *AdminTokenCache) Token(ctx context.Context) (string, error) {
	tok, err := c.GetAdminToken(ctx)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// Invalidate drops the cached token so the next call refreshes.
func (c *AdminTokenCache) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

// InvalidateToken drops the cached token only if it is value. A caller that
// was rejected with a token from before a refresh leaves the newer one cached.
func (c *AdminTokenCache) InvalidateToken(value string) {
	c.mu.Lock()
	if c.token != nil && c.token.Value == value {
		c.token = nil
	}
	c.mu.Unlock()
}

func (c *AdminTokenCache) cached() (AdminToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil || !c.clock.Now().Before(c.token.ExpiresAt) {
		return AdminToken{}, false
	}
	return *c.token, true
}

func (c *AdminTokenCache) refresh(ctx context.Context) (AdminToken, error) {
	logger := logging.NewStructuredLoggerFromContext(ctx, "admin-token").
		WithField("realm", c.creds.Realm).
		WithField("client_id", c.creds.ClientID)

	issuedAt := c.clock.Now()
	resp, err := c.idp.PasswordGrant(ctx, c.creds)
	if err != nil {
		c.metrics.AdminToken(metrics.AdminTokenError)
		unavailable := errors.Wrap(err, errors.ErrCodeAuthTokenUnavailable, "admin token unavailable")
		if upstream, ok := errors.As(err); ok {
			unavailable.WithUpstream(upstream.UpstreamStatus, upstream.UpstreamBody)
		}
		logger.WithError(unavailable).Error("admin token refresh failed")
		return AdminToken{}, unavailable
	}
	if resp.AccessToken == "" {
		c.metrics.AdminToken(metrics.AdminTokenError)
		logger.Error("admin token response carried no access_token")
		return AdminToken{}, errors.New(errors.ErrCodeAuthTokenUnavailable, "admin token response carried no access_token")
	}

	lifetime := time.Duration(resp.ExpiresIn)*time.Second - c.margin
	if lifetime <= 0 {
		logger.WithField("expires_in", resp.ExpiresIn).Warn("admin token lifetime does not exceed the safety margin; it will not be reused")
	}
	tok := AdminToken{Value: resp.AccessToken, ExpiresAt: issuedAt.Add(lifetime)}

	c.mu.Lock()
	c.token = &tok
	c.mu.Unlock()

	c.metrics.AdminToken(metrics.AdminTokenRefresh)
	logger.WithField("expires_at", tok.ExpiresAt).Debug("admin token refreshed")
	return tok, nil
}
