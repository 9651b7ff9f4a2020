// Package jwt validates tokens issued by the identity provider against its
// published JWKS.
package jwt

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/openchami/realmgate/pkg/errors"
)

const registrationTimeout = 5 * time.Second

// ValidatorConfig configures a Validator.
type ValidatorConfig struct {
	// Issuer must match the iss claim exactly.
	Issuer string
	// Audience, when set, must appear in the aud claim.
	Audience string
	// JWKSURL is the identity provider's certificate endpoint.
	JWKSURL string
	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration

	HTTPClient *http.Client
}

// Validator verifies signature, issuer, audience and expiry of bearer
// tokens. Keys are fetched lazily and refreshed in the background by the
// jwx cache.
type Validator struct {
	issuer  string
	jwksURL string
	parser  *jwt.Parser
	cache   *jwk.Cache

	regMu      sync.Mutex
	registered bool
}

// NewValidator creates a validator. ctx bounds the lifetime of the JWKS
// refresh goroutines.
func NewValidator(ctx context.Context, cfg ValidatorConfig) (*Validator, error) {
	if cfg.Issuer == "" {
		return nil, errors.NewInvalidConfig("token validator requires an issuer")
	}
	if cfg.JWKSURL == "" {
		return nil, errors.NewInvalidConfig("token validator requires a JWKS URL")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	cache, err := jwk.NewCache(ctx, httprc.NewClient(httprc.WithHTTPClient(hc)))
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(GetFIPSApprovedAlgorithms()),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Validator{
		issuer:  cfg.Issuer,
		jwksURL: cfg.JWKSURL,
		parser:  jwt.NewParser(opts...),
		cache:   cache,
	}, nil
}

// Issuer returns the expected issuer.
func (v *Validator) Issuer() string { return v.issuer }

// JWKSURL returns the JWKS URL used by the validator.
func (v *Validator) JWKSURL() string { return v.jwksURL }

// Validate parses raw and returns its claims. Every failure is reported as
// INVALID_TOKEN; the cause is kept for logs only.
func (v *Validator) Validate(ctx context.Context, raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.keyFor(ctx, t)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidToken, invalidReason(err))
	}
	if !token.Valid {
		return nil, errors.NewInvalidToken("token is invalid")
	}
	return claims, nil
}

func (v *Validator) ensureRegistered(ctx context.Context) error {
	v.regMu.Lock()
	defer v.regMu.Unlock()

	if v.registered {
		return nil
	}

	regCtx, cancel := context.WithTimeout(ctx, registrationTimeout)
	defer cancel()
	if err := v.cache.Register(regCtx, v.jwksURL); err != nil {
		// Left unregistered so the next request retries.
		return fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	v.registered = true
	return nil
}

func (v *Validator) keyFor(ctx context.Context, t *jwt.Token) (interface{}, error) {
	if err := ValidateAlgorithm(t.Method.Alg()); err != nil {
		return nil, err
	}
	kid, ok := t.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, stderrors.New("token header missing kid")
	}

	if err := v.ensureRegistered(ctx); err != nil {
		return nil, err
	}
	set, err := v.cache.Lookup(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup JWKS: %w", err)
	}
	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
	}

	var rawKey interface{}
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}
	return rawKey, nil
}

func invalidReason(err error) string {
	switch {
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return "token is expired"
	case stderrors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "token issuer mismatch"
	case stderrors.Is(err, jwt.ErrTokenInvalidAudience):
		return "token audience mismatch"
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature is invalid"
	case stderrors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	case stderrors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "token is missing a required claim"
	default:
		return "token validation failed"
	}
}
