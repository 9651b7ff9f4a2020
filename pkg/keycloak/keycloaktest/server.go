// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package keycloaktest provides an in-process stand-in for a Keycloak realm:
// a signing key published as JWKS, a discovery document, a token endpoint
// with pluggable grant handlers, and a hook for admin REST handlers.
package keycloaktest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// GrantHandler answers a token endpoint request with a status and a JSON body.
type GrantHandler func(realm string, form url.Values) (int, interface{})

// Server is a fake identity provider backed by httptest.
type Server struct {
	*httptest.Server

	Realm    string
	ClientID string

	key  *rsa.PrivateKey
	kid  string
	jwks []byte

	mu       sync.Mutex
	grants   map[string]GrantHandler
	calls    map[string]int
	lastForm map[string]url.Values
	admin    http.Handler
}

// NewServer starts a fake realm and registers its shutdown with t.
func NewServer(t testing.TB, realm, clientID string) *Server {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate signing key: %v", err)
	}

	s := &Server{
		Realm:    realm,
		ClientID: clientID,
		key:      key,
		kid:      "test-key-1",
		grants:   map[string]GrantHandler{},
		calls:    map[string]int{},
		lastForm: map[string]url.Values{},
	}
	s.jwks = s.buildJWKS(t)

	r := chi.NewRouter()
	r.Get("/realms/{realm}/protocol/openid-connect/certs", s.handleJWKS)
	r.Get("/realms/{realm}/.well-known/openid-configuration", s.handleDiscovery)
	r.Post("/realms/{realm}/protocol/openid-connect/token", s.handleToken)
	r.HandleFunc("/admin/realms/{realm}/*", s.handleAdmin)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)

	s.OnGrant("password", s.defaultPasswordGrant)
	s.OnGrant("urn:ietf:params:oauth:grant-type:uma-ticket", s.defaultUMAGrant)
	return s
}

func (s *Server) buildJWKS(t testing.TB) []byte {
	t.Helper()

	pub, err := jwk.Import(&s.key.PublicKey)
	if err != nil {
		t.Fatalf("failed to import public key: %v", err)
	}
	if err := pub.Set(jwk.KeyIDKey, s.kid); err != nil {
		t.Fatalf("failed to set kid: %v", err)
	}
	if err := pub.Set(jwk.KeyUsageKey, "sig"); err != nil {
		t.Fatalf("failed to set key usage: %v", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("failed to add key: %v", err)
	}
	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("failed to marshal jwks: %v", err)
	}
	return data
}

// Issuer returns the iss value tokens from the protected realm carry.
func (s *Server) Issuer() string {
	return fmt.Sprintf("%s/realms/%s", s.URL, s.Realm)
}

// JWKSURL returns the realm's certificate endpoint.
func (s *Server) JWKSURL() string {
	return s.Issuer() + "/protocol/openid-connect/certs"
}

// SignToken signs claims with the realm key. iss, aud, iat and exp are
// filled in when absent.
func (s *Server) SignToken(claims jwt.MapClaims) string {
	now := time.Now()
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = s.Issuer()
	}
	if _, ok := claims["aud"]; !ok {
		claims["aud"] = s.ClientID
	}
	if _, ok := claims["iat"]; !ok {
		claims["iat"] = now.Unix()
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = now.Add(5 * time.Minute).Unix()
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	signed, err := tok.SignedString(s.key)
	if err != nil {
		panic(fmt.Sprintf("keycloaktest: failed to sign token: %v", err))
	}
	return signed
}

// SignTokenWithKey signs claims with a key the realm does not publish.
func SignTokenWithKey(key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	if err != nil {
		panic(fmt.Sprintf("keycloaktest: failed to sign token: %v", err))
	}
	return signed
}

// OnGrant replaces the handler for grantType.
func (s *Server) OnGrant(grantType string, h GrantHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantType] = h
}

// HandleAdmin installs h for /admin/realms/... requests. h sees the full path.
func (s *Server) HandleAdmin(h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admin = h
}

// Calls returns how many token requests used grantType.
func (s *Server) Calls(grantType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[grantType]
}

// LastForm returns the most recent form posted with grantType.
func (s *Server) LastForm(grantType string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastForm[grantType]
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.jwks)
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	base := fmt.Sprintf("%s/realms/%s", s.URL, realm)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                base,
		"token_endpoint":        base + "/protocol/openid-connect/token",
		"jwks_uri":              base + "/protocol/openid-connect/certs",
		"grant_types_supported": []string{"password", "urn:ietf:params:oauth:grant-type:uma-ticket"},
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	grantType := r.PostForm.Get("grant_type")

	s.mu.Lock()
	s.calls[grantType]++
	s.lastForm[grantType] = r.PostForm
	h := s.grants[grantType]
	s.mu.Unlock()

	if h == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	status, body := h(chi.URLParam(r, "realm"), r.PostForm)
	writeJSON(w, status, body)
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	h := s.admin
	s.mu.Unlock()

	if h == nil {
		http.NotFound(w, r)
		return
	}
	h.ServeHTTP(w, r)
}

func (s *Server) defaultPasswordGrant(realm string, form url.Values) (int, interface{}) {
	return http.StatusOK, map[string]interface{}{
		"access_token": s.SignToken(jwt.MapClaims{
			"sub":                form.Get("username"),
			"preferred_username": form.Get("username"),
		}),
		"token_type": "Bearer",
		"expires_in": 300,
	}
}

func (s *Server) defaultUMAGrant(realm string, form url.Values) (int, interface{}) {
	return http.StatusOK, map[string]interface{}{
		"access_token": s.SignToken(jwt.MapClaims{
			"sub":           "rpt-subject",
			"authorization": map[string]interface{}{"permissions": []interface{}{}},
		}),
		"token_type": "Bearer",
		"expires_in": 300,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
