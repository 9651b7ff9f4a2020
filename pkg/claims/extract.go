package claims

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openchami/realmgate/pkg/errors"
)

// Claim paths, used in logs and metrics.
const (
	RealmRolesClaim  = "realm_access.roles"
	PermissionsClaim = "authorization.permissions"
)

// ExtractRoles returns the strings found at realm_access.roles.
//
// An absent claim yields no roles and no error. A claim of the wrong shape,
// or non string entries, yield a CLAIM_PARSE_SKIPPED error alongside
// whatever well formed roles were found.
func ExtractRoles(c jwt.MapClaims) ([]string, error) {
	raw, ok := c["realm_access"]
	if !ok || raw == nil {
		return nil, nil
	}
	access, ok := raw.(map[string]interface{})
	if !ok {
		return nil, malformed(RealmRolesClaim, "realm_access is %T, not an object", raw)
	}

	rawRoles, ok := access["roles"]
	if !ok || rawRoles == nil {
		return nil, nil
	}
	return stringList(RealmRolesClaim, rawRoles)
}

// ExtractPermissions returns the union of the scopes listed under each entry
// of authorization.permissions. Absence and malformation are handled as in
// ExtractRoles. An entry without scopes contributes nothing.
func ExtractPermissions(c jwt.MapClaims) ([]string, error) {
	raw, ok := c["authorization"]
	if !ok || raw == nil {
		return nil, nil
	}
	authz, ok := raw.(map[string]interface{})
	if !ok {
		return nil, malformed(PermissionsClaim, "authorization is %T, not an object", raw)
	}

	rawPerms, ok := authz["permissions"]
	if !ok || rawPerms == nil {
		return nil, nil
	}
	perms, ok := rawPerms.([]interface{})
	if !ok {
		return nil, malformed(PermissionsClaim, "permissions is %T, not an array", rawPerms)
	}

	var (
		out      []string
		firstErr error
	)
	for i, entry := range perms {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			if firstErr == nil {
				firstErr = malformed(PermissionsClaim, "permission %d is %T, not an object", i, entry)
			}
			continue
		}
		rawScopes, ok := obj["scopes"]
		if !ok || rawScopes == nil {
			continue
		}
		scopes, err := stringList(PermissionsClaim, rawScopes)
		out = append(out, scopes...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return out, firstErr
}

func stringList(claim string, raw interface{}) ([]string, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, malformed(claim, "expected an array, got %T", raw)
	}

	out := make([]string, 0, len(items))
	var firstErr error
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			if firstErr == nil {
				firstErr = malformed(claim, "entry %d is %T, not a string", i, item)
			}
			continue
		}
		out = append(out, s)
	}
	return out, firstErr
}

func malformed(claim, format string, args ...interface{}) error {
	return errors.New(errors.ErrCodeClaimParseSkipped, fmt.Sprintf(format, args...)).
		WithDetails("claim", claim)
}
