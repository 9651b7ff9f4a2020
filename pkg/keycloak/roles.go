package keycloak

import (
	"context"
	"net/http"

	"github.com/openchami/realmgate/pkg/errors"
)

// Role is a realm role.
type Role struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Composite   bool   `json:"composite"`
	ClientRole  bool   `json:"clientRole"`
	ContainerID string `json:"containerId,omitempty"`
}

// RoleResult reports the outcome of one role in a batch create.
type RoleResult struct {
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// CreateRole creates a realm role. An empty description defaults to
// "Role <name>".
func (a *AdminClient) CreateRole(ctx context.Context, name, description string) error {
	if name == "" {
		return errors.NewInvalidInput("role name is required")
	}
	if description == "" {
		description = "Role " + name
	}
	_, err := a.do(ctx, adminRequest{
		method: http.MethodPost,
		path:   "/roles",
		body:   Role{Name: name, Description: description},
	})
	return err
}

// CreateRoles creates each role in turn and reports per-role results. A
// failure does not stop the remaining roles.
func (a *AdminClient) CreateRoles(ctx context.Context, names []string) []RoleResult {
	results := make([]RoleResult, 0, len(names))
	for _, name := range names {
		result := RoleResult{Name: name}
		if err := a.CreateRole(ctx, name, ""); err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// UpdateRole replaces the role description.
func (a *AdminClient) UpdateRole(ctx context.Context, name, description string) error {
	if description == "" {
		description = "Updated role " + name
	}
	_, err := a.do(ctx, adminRequest{
		method: http.MethodPut,
		path:   pathf("/roles/%s", name),
		body:   Role{Name: name, Description: description},
	})
	return err
}

// DeleteRole removes the realm role.
func (a *AdminClient) DeleteRole(ctx context.Context, name string) error {
	_, err := a.do(ctx, adminRequest{method: http.MethodDelete, path: pathf("/roles/%s", name)})
	return err
}

// ListRoles returns every realm role.
func (a *AdminClient) ListRoles(ctx context.Context) ([]Role, error) {
	roles := []Role{}
	if _, err := a.do(ctx, adminRequest{method: http.MethodGet, path: "/roles", out: &roles}); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches one realm role by name.
func (a *AdminClient) GetRole(ctx context.Context, name string) (*Role, error) {
	var role Role
	if _, err := a.do(ctx, adminRequest{method: http.MethodGet, path: pathf("/roles/%s", name), out: &role}); err != nil {
		return nil, err
	}
	return &role, nil
}

// AssignRealmRole maps the named realm role onto the user.
func (a *AdminClient) AssignRealmRole(ctx context.Context, userID, roleName string) error {
	if userID == "" || roleName == "" {
		return errors.NewInvalidInput("user id and role name are required")
	}
	role, err := a.GetRole(ctx, roleName)
	if err != nil {
		return err
	}
	_, err = a.do(ctx, adminRequest{
		method: http.MethodPost,
		path:   pathf("/users/%s/role-mappings/realm", userID),
		body:   []Role{{ID: role.ID, Name: role.Name}},
	})
	return err
}

// UserRealmRoles returns the realm roles mapped directly onto the user with
// the given username.
func (a *AdminClient) UserRealmRoles(ctx context.Context, username string) ([]Role, error) {
	user, err := a.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	roles := []Role{}
	if _, err := a.do(ctx, adminRequest{
		method: http.MethodGet,
		path:   pathf("/users/%s/role-mappings/realm", user.ID),
		out:    &roles,
	}); err != nil {
		return nil, err
	}
	return roles, nil
}
