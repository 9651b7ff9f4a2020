// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/openchami/realmgate/pkg/claims"
	"github.com/openchami/realmgate/pkg/metrics"
)

// Kind selects which set of an Identity a Requirement is checked against.
type Kind string

const (
	// KindPermission requires a scope from authorization.permissions.
	KindPermission Kind = "permission"
	// KindRole requires a realm role from realm_access.roles.
	KindRole Kind = "role"
)

func (k Kind) valid() bool {
	return k == KindPermission || k == KindRole
}

// Requirement is what an operation demands of the caller.
type Requirement struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
}

func (r Requirement) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Name)
}

// Decision is the outcome of evaluating one Requirement.
type Decision struct {
	Allowed     bool
	Requirement Requirement
}

// Evaluate checks id against req by exact, case sensitive membership.
// Permissions and roles are independent: holding a role never satisfies a
// permission requirement, or the reverse.
func Evaluate(id *claims.Identity, req Requirement) Decision {
	d := Decision{Requirement: req}
	if id == nil {
		return d
	}
	switch req.Kind {
	case KindPermission:
		d.Allowed = id.HasPermission(req.Name)
	case KindRole:
		d.Allowed = id.HasRole(req.Name)
	}
	return d
}

// Engine authorizes operations against a Registry.
type Engine struct {
	registry *Registry
	metrics  *metrics.Metrics
	logger   *PolicyLogger
}

// NewEngine creates an engine over a built registry.
func NewEngine(registry *Registry, m *metrics.Metrics) *Engine {
	if registry == nil {
		registry = NewRegistryBuilder().Build()
	}
	return &Engine{
		registry: registry,
		metrics:  m,
		logger:   NewPolicyLogger(),
	}
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Authorize evaluates the requirement registered for method and route
// pattern. Operations with no registered requirement are allowed and
// reported with registered set to false.
func (e *Engine) Authorize(ctx context.Context, id *claims.Identity, method, pattern string) (decision Decision, registered bool) {
	req, ok := e.registry.Lookup(method, pattern)
	if !ok {
		return Decision{Allowed: true}, false
	}

	start := time.Now()
	decision = Evaluate(id, req)
	e.metrics.Decision(string(req.Kind), decision.Allowed)
	e.logger.LogDecision(ctx, OperationID(method, pattern), id, decision, time.Since(start))
	return decision, true
}
