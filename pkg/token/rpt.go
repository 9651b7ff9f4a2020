// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package token

import (
	"context"

	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/keycloak"
	"github.com/openchami/realmgate/pkg/logging"
	"github.com/openchami/realmgate/pkg/metrics"
)

// RPT is a requesting party token. It is produced per exchange and never
// cached.
type RPT struct {
	Value string
}

// String redacts the token value.
func (r RPT) String() string { return "RPT{<redacted>}" }

// UMAGranter performs the UMA ticket grant.
type UMAGranter interface {
	UMATicketGrant(ctx context.Context, subjectToken string) (*keycloak.TokenResponse, error)
}

// RPTExchanger turns an end user access token into an RPT. It holds no
// mutable state.
type RPTExchanger struct {
	idp     UMAGranter
	metrics *metrics.Metrics
}

// NewRPTExchanger creates an exchanger. m may be nil.
func NewRPTExchanger(idp UMAGranter, m *metrics.Metrics) *RPTExchanger {
	return &RPTExchanger{idp: idp, metrics: m}
}

// Exchange performs one UMA ticket grant for accessToken.
//
// A transport failure or non 2xx answer returns AUTH_EXCHANGE_FAILED with the
// upstream status and body. A 2xx answer without access_token returns
// AUTH_EXCHANGE_EMPTY.
func (e *RPTExchanger) Exchange(ctx context.Context, accessToken string) (RPT, error) {
	if accessToken == "" {
		return RPT{}, errors.NewInvalidInput("access token is required")
	}

	logger := logging.NewStructuredLoggerFromContext(ctx, "rpt-exchange")

	resp, err := e.idp.UMATicketGrant(ctx, accessToken)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RPT{}, ctxErr
		}
		e.metrics.RPTExchange(metrics.ExchangeFailed)
		failed := errors.Wrap(err, errors.ErrCodeAuthExchangeFailed, "token exchange failed")
		if upstream, ok := errors.As(err); ok {
			failed.WithUpstream(upstream.UpstreamStatus, upstream.UpstreamBody)
		}
		logger.WithError(failed).Warn("rpt exchange failed")
		return RPT{}, failed
	}

	if resp.AccessToken == "" {
		e.metrics.RPTExchange(metrics.ExchangeEmpty)
		logger.Warn("rpt exchange returned no access_token")
		return RPT{}, errors.New(errors.ErrCodeAuthExchangeEmpty, "token exchange returned no token")
	}

	e.metrics.RPTExchange(metrics.ExchangeOK)
	return RPT{Value: resp.AccessToken}, nil
}
