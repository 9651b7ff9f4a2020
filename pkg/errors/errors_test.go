package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(ErrCodeAuthTokenUnavailable, "token endpoint returned 401").WithUpstream(http.StatusUnauthorized, `{"error":"invalid_grant"}`)
	wrapped := fmt.Errorf("admin call: %w", err)

	assert.True(t, Is(wrapped, ErrAuthTokenUnavailable))
	assert.False(t, Is(wrapped, ErrAuthExchangeFailed))

	gwErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, gwErr.UpstreamStatus)
	assert.Equal(t, `{"error":"invalid_grant"}`, gwErr.UpstreamBody)
	assert.Equal(t, http.StatusServiceUnavailable, GetHTTPStatus(wrapped))
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeClaimParseSkipped, http.StatusUnauthorized},
		{ErrCodeAuthExchangeFailed, http.StatusBadGateway},
		{ErrCodeAuthExchangeEmpty, http.StatusBadGateway},
		{ErrCodeAuthTokenUnavailable, http.StatusServiceUnavailable},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, New(tt.code, "x").HTTPStatus)
		})
	}

	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(fmt.Errorf("plain")))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(fmt.Errorf("plain")))
}

func TestWriteHTTPDoesNotLeakOnForbidden(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, New(ErrCodeForbidden, "missing permission DeleteUser"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "DeleteUser")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"error": "forbidden"}, body)
}

func TestWriteHTTPIncludesCodeForUpstreamErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, New(ErrCodeAuthTokenUnavailable, "admin token unavailable"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), string(ErrCodeAuthTokenUnavailable))
}

func TestErrorString(t *testing.T) {
	err := Wrap(fmt.Errorf("dial tcp: refused"), ErrCodeAuthExchangeFailed, "uma ticket grant failed").WithUpstream(502, "")
	assert.Equal(t, "[AUTH_EXCHANGE_FAILED] uma ticket grant failed (upstream status 502): dial tcp: refused", err.Error())
}
