package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/logging"
)

// TokenSource supplies the bearer token for admin REST calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// invalidator is implemented by token sources that cache. Only the named
// token is dropped so a rejection of an older token leaves a newer one alone.
type invalidator interface {
	InvalidateToken(value string)
}

// AdminClient performs admin REST calls against one realm. Every call goes
// through do, which attaches a fresh admin token, encodes the body and maps
// the response status onto a coded error.
type AdminClient struct {
	idp       *Client
	realm     string
	tokens    TokenSource
	clientIDs *expirable.LRU[string, string]
}

// NewAdminClient creates an admin client for realm. Client UUID lookups are
// cached for clientCacheTTL.
func NewAdminClient(idp *Client, realm string, tokens TokenSource, clientCacheTTL time.Duration) *AdminClient {
	if clientCacheTTL <= 0 {
		clientCacheTTL = 10 * time.Minute
	}
	return &AdminClient{
		idp:       idp,
		realm:     realm,
		tokens:    tokens,
		clientIDs: expirable.NewLRU[string, string](64, nil, clientCacheTTL),
	}
}

// Realm returns the realm the admin client manages.
func (a *AdminClient) Realm() string { return a.realm }

// adminRequest describes one admin REST call.
type adminRequest struct {
	method string
	// path is relative to /admin/realms/{realm} and must already be escaped.
	path  string
	query url.Values
	body  interface{}
	// out, when non-nil, receives the decoded JSON response.
	out interface{}
}

// adminResponse carries what callers sometimes need beyond the decoded body.
type adminResponse struct {
	status   int
	location string
	raw      json.RawMessage
}

func (a *AdminClient) do(ctx context.Context, r adminRequest) (*adminResponse, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := a.idp.AdminURL(a.realm) + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to encode admin request")
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger := logging.FromContext(ctx, "keycloak-admin")
	logger.Debug().Str("method", r.method).Str("path", r.path).Msg("admin request")

	resp, err := a.idp.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "admin request failed").
			WithDetails("path", r.path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "failed to read admin response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := errors.ErrCodeUpstream
		switch resp.StatusCode {
		case http.StatusNotFound:
			code = errors.ErrCodeNotFound
		case http.StatusConflict:
			code = errors.ErrCodeConflict
		case http.StatusBadRequest:
			code = errors.ErrCodeInvalidInput
		case http.StatusUnauthorized:
			// The cached admin token was revoked or the realm key rotated.
			if inv, ok := a.tokens.(invalidator); ok {
				inv.InvalidateToken(token)
			}
		}
		logger.Warn().Str("method", r.method).Str("path", r.path).Int("upstream_status", resp.StatusCode).Msg("admin request rejected")
		return nil, errors.Newf(code, "%s %s returned status %d", r.method, r.path, resp.StatusCode).
			WithUpstream(resp.StatusCode, string(raw))
	}

	if r.out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, r.out); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeUpstream, "failed to decode admin response")
		}
	}

	return &adminResponse{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		raw:      json.RawMessage(raw),
	}, nil
}

// lastPathSegment returns the id Keycloak appends to a created resource's
// Location header.
func lastPathSegment(location string) string {
	location = strings.TrimRight(location, "/")
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}

func pathf(format string, segments ...string) string {
	escaped := make([]interface{}, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return fmt.Sprintf(format, escaped...)
}
