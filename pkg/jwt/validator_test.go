package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/keycloak/keycloaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T, idp *keycloaktest.Server, audience string) *Validator {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	v, err := NewValidator(ctx, ValidatorConfig{
		Issuer:   idp.Issuer(),
		Audience: audience,
		JWKSURL:  idp.JWKSURL(),
	})
	require.NoError(t, err)
	return v
}

func TestValidatorAcceptsRealmToken(t *testing.T) {
	idp := keycloaktest.NewServer(t, "qrswitch", "gateway")
	v := newValidator(t, idp, "gateway")

	raw := idp.SignToken(jwt.MapClaims{
		"sub":          "user-1",
		"realm_access": map[string]interface{}{"roles": []string{"admin"}},
	})

	claims, err := v.Validate(context.Background(), raw)
	require.NoError(t, err)
	sub, _ := claims.GetSubject()
	assert.Equal(t, "user-1", sub)
	assert.Contains(t, claims, "realm_access")
}

func TestValidatorRejects(t *testing.T) {
	idp := keycloaktest.NewServer(t, "qrswitch", "gateway")
	v := newValidator(t, idp, "gateway")

	foreignKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
	}{
		{"expired", idp.SignToken(jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Minute).Unix()})},
		{"wrong issuer", idp.SignToken(jwt.MapClaims{"sub": "u", "iss": "https://elsewhere/realms/qrswitch"})},
		{"wrong audience", idp.SignToken(jwt.MapClaims{"sub": "u", "aud": "other-client"})},
		{"missing exp", idp.SignToken(jwt.MapClaims{"sub": "u", "exp": nil})},
		{"unknown key", keycloaktest.SignTokenWithKey(foreignKey, "rogue", jwt.MapClaims{
			"sub": "u", "iss": idp.Issuer(), "aud": "gateway", "exp": time.Now().Add(time.Minute).Unix(),
		})},
		{"forged with published kid", keycloaktest.SignTokenWithKey(foreignKey, "test-key-1", jwt.MapClaims{
			"sub": "u", "iss": idp.Issuer(), "aud": "gateway", "exp": time.Now().Add(time.Minute).Unix(),
		})},
		{"malformed", "not-a-jwt"},
		{"unsigned", unsigned(t, idp.Issuer())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tt.raw)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidToken, errors.GetErrorCode(err))
		})
	}
}

func TestValidatorAudienceOptional(t *testing.T) {
	idp := keycloaktest.NewServer(t, "qrswitch", "gateway")
	v := newValidator(t, idp, "")

	_, err := v.Validate(context.Background(), idp.SignToken(jwt.MapClaims{"sub": "u", "aud": "account"}))
	assert.NoError(t, err)
}

func TestValidatorRetriesRegistration(t *testing.T) {
	idp := keycloaktest.NewServer(t, "qrswitch", "gateway")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := NewValidator(ctx, ValidatorConfig{Issuer: idp.Issuer(), JWKSURL: "http://127.0.0.1:1/certs"})
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), idp.SignToken(jwt.MapClaims{"sub": "u"}))
	require.Error(t, err)
	assert.False(t, v.registered)
}

func TestNewValidatorConfig(t *testing.T) {
	_, err := NewValidator(context.Background(), ValidatorConfig{JWKSURL: "http://x"})
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.GetErrorCode(err))

	_, err = NewValidator(context.Background(), ValidatorConfig{Issuer: "http://x"})
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.GetErrorCode(err))
}

func TestValidateAlgorithm(t *testing.T) {
	assert.NoError(t, ValidateAlgorithm("RS256"))
	assert.NoError(t, ValidateAlgorithm("ES384"))
	assert.Error(t, ValidateAlgorithm("HS256"))
	assert.Error(t, ValidateAlgorithm("none"))

	algs := GetFIPSApprovedAlgorithms()
	assert.Len(t, algs, 9)
	assert.Equal(t, "ES256", algs[0])
}

func unsigned(t *testing.T, issuer string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u", "iss": issuer, "aud": "gateway", "exp": time.Now().Add(time.Minute).Unix(),
	})
	raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return raw
}
