// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/openchami/realmgate/pkg/errors"
)

// OperationID names an operation by HTTP method and chi route pattern,
// e.g. "POST /api/users/{userID}/reset-password".
func OperationID(method, pattern string) string {
	return strings.ToUpper(method) + " " + pattern
}

// Entry is one row of the registry.
type Entry struct {
	Method      string      `json:"method"`
	Pattern     string      `json:"route"`
	Requirement Requirement `json:"requirement"`
}

// Operation returns the entry's operation id.
func (e Entry) Operation() string { return OperationID(e.Method, e.Pattern) }

// RegistryBuilder collects requirements before the registry is frozen.
// Registering the same operation twice replaces the earlier requirement.
type RegistryBuilder struct {
	entries map[string]Entry
}

// NewRegistryBuilder returns an empty builder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{entries: make(map[string]Entry)}
}

// Permission requires the named permission for the operation.
func (b *RegistryBuilder) Permission(method, pattern, name string) *RegistryBuilder {
	return b.add(method, pattern, Requirement{Kind: KindPermission, Name: name})
}

// Role requires the named realm role for the operation.
func (b *RegistryBuilder) Role(method, pattern, name string) *RegistryBuilder {
	return b.add(method, pattern, Requirement{Kind: KindRole, Name: name})
}

// Require registers an arbitrary requirement.
func (b *RegistryBuilder) Require(method, pattern string, req Requirement) *RegistryBuilder {
	return b.add(method, pattern, req)
}

func (b *RegistryBuilder) add(method, pattern string, req Requirement) *RegistryBuilder {
	e := Entry{Method: strings.ToUpper(method), Pattern: pattern, Requirement: req}
	b.entries[e.Operation()] = e
	return b
}

// Validate reports malformed entries without building.
func (b *RegistryBuilder) Validate() *ValidationResult {
	result := NewValidationResult()
	for _, e := range b.sorted() {
		validateEntry(result, e)
	}
	return result
}

// BuildValidated validates the entries and builds the registry.
func (b *RegistryBuilder) BuildValidated() (*Registry, error) {
	if result := b.Validate(); !result.IsValid() {
		return nil, errors.Wrap(result.Err(), errors.ErrCodeInvalidConfig, "invalid policy registry")
	}
	return b.Build(), nil
}

// Build freezes the entries. Later changes to the builder do not affect the
// returned registry.
func (b *RegistryBuilder) Build() *Registry {
	entries := make(map[string]Requirement, len(b.entries))
	for op, e := range b.entries {
		entries[op] = e.Requirement
	}
	return &Registry{entries: entries, ordered: b.sorted()}
}

func (b *RegistryBuilder) sorted() []Entry {
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Registry maps operations to requirements. It is read only and safe for
// concurrent use.
type Registry struct {
	entries map[string]Requirement
	ordered []Entry
}

// Lookup returns the requirement registered for the operation.
func (r *Registry) Lookup(method, pattern string) (Requirement, bool) {
	req, ok := r.entries[OperationID(method, pattern)]
	return req, ok
}

// Requirements returns a copy of every entry, ordered by route then method.
func (r *Registry) Requirements() []Entry {
	out := make([]Entry, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of registered operations.
func (r *Registry) Len() int { return len(r.entries) }

// CheckRoutes walks routes and returns an error naming every registered
// operation that no route serves. Such an entry usually means a typo in the
// registry, which would otherwise leave the intended route unguarded.
func (r *Registry) CheckRoutes(routes chi.Routes) error {
	served := make(map[string]bool)
	err := chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		served[OperationID(method, route)] = true
		return nil
	})
	if err != nil {
		return err
	}

	var missing []string
	for _, e := range r.ordered {
		if !served[e.Operation()] {
			missing = append(missing, e.Operation())
		}
	}
	if len(missing) > 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "policy registry names unrouted operations").
			WithDetails("operations", missing)
	}
	return nil
}
