// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"context"
	"time"

	"github.com/openchami/realmgate/pkg/claims"
	"github.com/openchami/realmgate/pkg/logging"
)

// PolicyLogger provides structured logging for policy decisions
type PolicyLogger struct{}

// NewPolicyLogger creates a new policy logger
func NewPolicyLogger() *PolicyLogger {
	return &PolicyLogger{}
}

// LogDecision logs an authorization decision. Allows are logged at debug,
// denials at info. The caller's full role and permission sets are never
// logged.
func (pl *PolicyLogger) LogDecision(ctx context.Context, operation string, id *claims.Identity, d Decision, duration time.Duration) {
	logger := logging.FromContext(ctx, "policy")
	event := logger.Debug()
	if !d.Allowed {
		event = logger.Info()
	}

	if id != nil {
		event.Str("username", id.Username)
	}
	event.
		Str("operation", operation).
		Str("kind", string(d.Requirement.Kind)).
		Str("requirement", d.Requirement.Name).
		Bool("allowed", d.Allowed).
		Dur("evaluation_duration", duration).
		Msg("policy decision evaluated")
}

// LogRegistryLoaded logs the registry the gateway starts with.
func (pl *PolicyLogger) LogRegistryLoaded(source string, r *Registry, err error) {
	logger := logging.GetLogger("policy")
	if err != nil {
		logger.Error().Err(err).Str("source", source).Msg("policy registry failed to load")
		return
	}
	logger.Info().
		Str("source", source).
		Int("operations", r.Len()).
		Msg("policy registry loaded")
}

// LogValidation logs registry validation results
func (pl *PolicyLogger) LogValidation(source string, result *ValidationResult) {
	logger := logging.GetLogger("policy")
	for _, w := range result.Warnings {
		logger.Warn().Str("source", source).Msg(w)
	}
	event := logger.Debug()
	if !result.IsValid() {
		event = logger.Error().Err(result.Err())
	}
	event.
		Str("source", source).
		Bool("valid", result.IsValid()).
		Msg("policy registry validated")
}
