package keycloak

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/logging"
)

// Scope is an authorization scope on a client's resource server.
type Scope struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	IconURI     string `json:"iconUri,omitempty"`
}

// Resource is a protected resource on a client's resource server.
type Resource struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName,omitempty"`
	Type        string   `json:"type,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}

// RolePolicy grants access to holders of any of the listed realm roles.
type RolePolicy struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// ScopePermission ties scopes to the policies that grant them.
type ScopePermission struct {
	Name     string   `json:"name"`
	Scopes   []string `json:"scopes"`
	Policies []string `json:"policies"`
}

type namedRef struct {
	Name string `json:"name"`
}

type roleRef struct {
	ID       string `json:"id"`
	Required bool   `json:"required"`
}

// ClientUUID resolves a client id (as shown in the admin console) to the
// internal id used in authz paths. Results are cached.
func (a *AdminClient) ClientUUID(ctx context.Context, clientID string) (string, error) {
	if id, ok := a.clientIDs.Get(clientID); ok {
		return id, nil
	}

	query := url.Values{}
	query.Set("clientId", clientID)

	var clients []struct {
		ID       string `json:"id"`
		ClientID string `json:"clientId"`
	}
	if _, err := a.do(ctx, adminRequest{method: http.MethodGet, path: "/clients", query: query, out: &clients}); err != nil {
		return "", err
	}
	if len(clients) == 0 {
		return "", errors.Newf(errors.ErrCodeNotFound, "client %q not found in realm %q", clientID, a.realm)
	}

	a.clientIDs.Add(clientID, clients[0].ID)
	return clients[0].ID, nil
}

func (a *AdminClient) createOnResourceServer(ctx context.Context, clientID, kind string, payload interface{}) (json.RawMessage, error) {
	uuid, err := a.ClientUUID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	resp, err := a.do(ctx, adminRequest{
		method: http.MethodPost,
		path:   pathf("/clients/%s/authz/resource-server/", uuid) + kind,
		body:   payload,
	})
	if err != nil {
		return nil, err
	}
	return resp.raw, nil
}

// CreateScope creates an authorization scope.
func (a *AdminClient) CreateScope(ctx context.Context, clientID string, scope Scope) (json.RawMessage, error) {
	if scope.Name == "" {
		return nil, errors.NewInvalidInput("scope name is required")
	}
	return a.createOnResourceServer(ctx, clientID, "scope", scope)
}

// CreateResource creates a protected resource carrying the named scopes.
func (a *AdminClient) CreateResource(ctx context.Context, clientID string, resource Resource) (json.RawMessage, error) {
	if resource.Name == "" {
		return nil, errors.NewInvalidInput("resource name is required")
	}

	scopes := make([]namedRef, 0, len(resource.Scopes))
	for _, s := range resource.Scopes {
		scopes = append(scopes, namedRef{Name: s})
	}
	payload := struct {
		Name        string     `json:"name"`
		DisplayName string     `json:"displayName,omitempty"`
		Type        string     `json:"type,omitempty"`
		Scopes      []namedRef `json:"scopes,omitempty"`
	}{resource.Name, resource.DisplayName, resource.Type, scopes}

	return a.createOnResourceServer(ctx, clientID, "resource", payload)
}

// CreateRolePolicy creates a role policy. Role names that do not resolve are
// skipped with a warning.
func (a *AdminClient) CreateRolePolicy(ctx context.Context, clientID string, policy RolePolicy) (json.RawMessage, error) {
	if policy.Name == "" {
		return nil, errors.NewInvalidInput("policy name is required")
	}

	logger := logging.FromContext(ctx, "keycloak-admin")
	roles := make([]roleRef, 0, len(policy.Roles))
	for _, name := range policy.Roles {
		role, err := a.GetRole(ctx, name)
		if err != nil {
			if errors.GetErrorCode(err) == errors.ErrCodeNotFound {
				logger.Warn().Str("role", name).Str("policy", policy.Name).Msg("skipping unknown role in policy")
				continue
			}
			return nil, err
		}
		roles = append(roles, roleRef{ID: role.ID})
	}

	payload := struct {
		Name             string    `json:"name"`
		Type             string    `json:"type"`
		Logic            string    `json:"logic"`
		DecisionStrategy string    `json:"decisionStrategy"`
		Roles            []roleRef `json:"roles"`
	}{policy.Name, "role", "POSITIVE", "UNANIMOUS", roles}

	return a.createOnResourceServer(ctx, clientID, "policy/role", payload)
}

// CreateScopePermission creates a scope based permission.
func (a *AdminClient) CreateScopePermission(ctx context.Context, clientID string, perm ScopePermission) (json.RawMessage, error) {
	if perm.Name == "" {
		return nil, errors.NewInvalidInput("permission name is required")
	}

	payload := struct {
		Name     string   `json:"name"`
		Type     string   `json:"type"`
		Scopes   []string `json:"scopes"`
		Policies []string `json:"policies"`
	}{perm.Name, "scope", perm.Scopes, perm.Policies}

	return a.createOnResourceServer(ctx, clientID, "permission/scope", payload)
}
