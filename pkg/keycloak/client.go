// Package keycloak talks to a Keycloak compatible identity provider: the
// OpenID Connect token endpoint (password and UMA ticket grants), discovery
// and JWKS locations, and the admin REST API.
package keycloak

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openchami/realmgate/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	// GrantTypeUMATicket is the UMA 2.0 grant used to obtain an RPT.
	GrantTypeUMATicket = "urn:ietf:params:oauth:grant-type:uma-ticket"

	// maxResponseBodySize bounds how much of an identity provider response is read.
	maxResponseBodySize = 1 << 20

	defaultTimeout = 10 * time.Second
)

// Client holds the coordinates of one realm on the identity provider and the
// confidential client the gateway authenticates as.
type Client struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new Keycloak client
func NewClient(baseURL, realm, clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Realm returns the realm this client protects.
func (c *Client) Realm() string { return c.realm }

// ClientID returns the confidential client id the gateway acts as.
func (c *Client) ClientID() string { return c.clientID }

// HTTPClient returns the HTTP client used for every identity provider call.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// String omits the client secret.
func (c *Client) String() string {
	return fmt.Sprintf("keycloak.Client{baseURL: %s, realm: %s, clientID: %s}", c.baseURL, c.realm, c.clientID)
}

// IssuerURL is the value Keycloak places in the iss claim for the realm.
func (c *Client) IssuerURL() string {
	return fmt.Sprintf("%s/realms/%s", c.baseURL, url.PathEscape(c.realm))
}

// TokenURL returns the token endpoint of realm.
func (c *Client) TokenURL(realm string) string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, url.PathEscape(realm))
}

// JWKSURL returns the signing key set location of the protected realm.
func (c *Client) JWKSURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", c.baseURL, url.PathEscape(c.realm))
}

// DiscoveryURL returns the OpenID configuration document location.
func (c *Client) DiscoveryURL() string {
	return fmt.Sprintf("%s/realms/%s/.well-known/openid-configuration", c.baseURL, url.PathEscape(c.realm))
}

// AdminURL returns the admin REST base for realm.
func (c *Client) AdminURL(realm string) string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, url.PathEscape(realm))
}

// ProviderMetadata is the subset of the discovery document the gateway uses.
type ProviderMetadata struct {
	Issuer                string   `json:"issuer"`
	TokenEndpoint         string   `json:"token_endpoint"`
	JWKSURI               string   `json:"jwks_uri"`
	IntrospectionEndpoint string   `json:"introspection_endpoint,omitempty"`
	GrantTypesSupported   []string `json:"grant_types_supported,omitempty"`
}

// GetProviderMetadata fetches the realm's OpenID configuration.
func (c *Client) GetProviderMetadata(ctx context.Context) (*ProviderMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DiscoveryURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "failed to fetch provider metadata")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "failed to read provider metadata")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrCodeUpstream, "provider metadata returned status %d", resp.StatusCode).
			WithUpstream(resp.StatusCode, string(body))
	}

	var metadata ProviderMetadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "failed to decode provider metadata")
	}
	if metadata.Issuer == "" {
		return nil, errors.New(errors.ErrCodeUpstream, "provider metadata missing required field: issuer")
	}
	if metadata.JWKSURI == "" {
		return nil, errors.New(errors.ErrCodeUpstream, "provider metadata missing required field: jwks_uri")
	}
	return &metadata, nil
}

// TokenResponse is a successful token endpoint response.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

// String redacts the tokens.
func (r TokenResponse) String() string {
	return fmt.Sprintf("TokenResponse{AccessToken: <redacted>, TokenType: %s, ExpiresIn: %d}", r.TokenType, r.ExpiresIn)
}

// PasswordCredentials identifies a resource owner password grant.
type PasswordCredentials struct {
	Realm        string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// String omits the password and client secret.
func (p PasswordCredentials) String() string {
	return fmt.Sprintf("PasswordCredentials{Realm: %s, ClientID: %s, Username: %s}", p.Realm, p.ClientID, p.Username)
}

// PasswordGrant performs a resource owner password credentials grant. A non
// 2xx answer yields an UPSTREAM_ERROR carrying the status and body.
func (c *Client) PasswordGrant(ctx context.Context, creds PasswordCredentials) (*TokenResponse, error) {
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.TokenURL(creds.Realm),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	tok, err := cfg.PasswordCredentialsToken(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), creds.Username, creds.Password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if stderrors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, errors.Newf(errors.ErrCodeUpstream, "password grant returned status %d", retrieveErr.Response.StatusCode).
				WithUpstream(retrieveErr.Response.StatusCode, string(retrieveErr.Body)).
				WithDetails("oauth_error", retrieveErr.ErrorCode)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "password grant failed")
	}

	return &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
		RefreshToken: tok.RefreshToken,
	}, nil
}

// Login performs a password grant for an end user of the protected realm
// using the gateway client's own credentials.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	return c.PasswordGrant(ctx, PasswordCredentials{
		Realm:        c.realm,
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Username:     username,
		Password:     password,
	})
}

// UMATicketGrant exchanges subjectToken for a requesting party token whose
// authorization claim lists the permissions granted to the subject on the
// gateway client's resource server.
func (c *Client) UMATicketGrant(ctx context.Context, subjectToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", GrantTypeUMATicket)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("audience", c.clientID)
	form.Set("subject_token", subjectToken)

	return c.postForm(ctx, c.TokenURL(c.realm), form)
}

// postForm sends a form encoded token request and decodes the response.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "failed to read token response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gwErr := errors.Newf(errors.ErrCodeUpstream, "token endpoint returned status %d", resp.StatusCode).
			WithUpstream(resp.StatusCode, string(body))
		if oauthErr := parseOAuthError(body); oauthErr != "" {
			gwErr.WithDetails("oauth_error", oauthErr)
		}
		return nil, gwErr
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "failed to decode token response").
			WithUpstream(resp.StatusCode, string(body))
	}
	return &tokenResp, nil
}

// parseOAuthError extracts the RFC 6749 error code from a token endpoint body.
func parseOAuthError(body []byte) string {
	var oauthErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &oauthErr); err != nil {
		return ""
	}
	return oauthErr.Error
}
