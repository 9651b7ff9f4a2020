// Package claims turns a validated bearer token into an Identity carrying the
// realm roles and resource permissions the token grants.
package claims

import (
	"context"
	"sort"

	"github.com/golang-jwt/jwt/v5"
)

// Set is an unordered collection of names.
type Set map[string]struct{}

// NewSet returns a set holding names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports exact, case sensitive membership.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Add inserts names.
func (s Set) Add(names ...string) {
	for _, n := range names {
		s[n] = struct{}{}
	}
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Identity is the augmented view of a validated token. Roles and
// Permissions are only ever populated from validated token claims.
type Identity struct {
	Subject     string
	Username    string
	Claims      jwt.MapClaims
	Roles       Set
	Permissions Set
}

// HasRole reports whether the identity holds the realm role.
func (i *Identity) HasRole(name string) bool {
	return i != nil && i.Roles.Has(name)
}

// HasPermission reports whether the identity was granted the permission.
func (i *Identity) HasPermission(name string) bool {
	return i != nil && i.Permissions.Has(name)
}

type identityKey struct{}

// NewContext returns ctx carrying id.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by NewContext.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
