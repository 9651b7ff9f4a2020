// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package middleware authenticates inbound bearer tokens and attaches the
// augmented Identity to the request context.
package middleware

import (
	"context"
	"net/http"

	"github.com/openchami/realmgate/pkg/claims"
	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/logging"
)

// Options contains options for the authentication middleware
type Options struct {
	// AllowEmptyToken lets requests without an Authorization header through
	// with no Identity attached. Guards downstream still reject them.
	AllowEmptyToken bool
}

// Authenticator validates bearer tokens and augments their claims.
type Authenticator struct {
	validator claims.TokenValidator
	augmentor *claims.Augmentor
	opts      Options
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(v claims.TokenValidator, a *claims.Augmentor, opts Options) *Authenticator {
	return &Authenticator{validator: v, augmentor: a, opts: opts}
}

// Authenticate validates raw and returns the caller's Identity.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*claims.Identity, error) {
	c, err := a.validator.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	return a.augmentor.Augment(ctx, raw, c)
}

// Middleware rejects requests whose bearer token fails validation with a
// uniform 401. On success the Identity is available through GetIdentity.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.NewStructuredLoggerFromContext(r.Context(), "auth")

		if r.Header.Get("Authorization") == "" && a.opts.AllowEmptyToken {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := BearerToken(r)
		if err != nil {
			logger.WithError(err).Debug("rejected request")
			errors.WriteHTTP(w, err)
			return
		}

		id, err := a.Authenticate(r.Context(), raw)
		if err != nil {
			logger.WithError(err).Info("authentication failed")
			errors.WriteHTTP(w, asAuthError(err))
			return
		}

		ctx := claims.NewContext(r.Context(), id)
		ctx = logging.WithSubject(ctx, id.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// asAuthError maps an authentication failure to the response the caller
// sees. Claim and token problems become 401; a failed upstream exchange
// keeps its own status so operators can tell an outage from a bad token.
func asAuthError(err error) error {
	switch errors.GetErrorCode(err) {
	case errors.ErrCodeAuthExchangeFailed, errors.ErrCodeAuthExchangeEmpty:
		return err
	default:
		return errors.Wrap(err, errors.ErrCodeUnauthorized, "authentication failed")
	}
}

// GetIdentity retrieves the authenticated Identity from the request context
func GetIdentity(ctx context.Context) (*claims.Identity, bool) {
	return claims.FromContext(ctx)
}
