package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/keycloak"
)

// RoleRequest creates or updates a realm role.
type RoleRequest struct {
	RoleName    string `json:"roleName"`
	Description string `json:"description"`
}

// AssignRoleRequest grants a realm role to a user.
type AssignRoleRequest struct {
	UserID   string `json:"userId"`
	RoleName string `json:"roleName"`
}

// CreateRolesRequest names the roles of a batch create.
type CreateRolesRequest struct {
	Roles []string `json:"roles"`
}

// UserRolesResponse lists a user's realm role names.
type UserRolesResponse struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// CreateRoleHandler creates one realm role.
func (s *Service) CreateRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "create role", err)
		return
	}
	if req.RoleName == "" {
		writeFailure(w, r, "create role", errors.NewInvalidInput("roleName is required"))
		return
	}
	if err := s.admin.CreateRole(r.Context(), req.RoleName, req.Description); err != nil {
		writeFailure(w, r, "create role", err)
		return
	}
	writeResult(w, http.StatusCreated, map[string]string{"name": req.RoleName})
}

// CreateRolesHandler creates every named role and reports each outcome. One
// failure does not stop the rest.
func (s *Service) CreateRolesHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "create roles", err)
		return
	}
	if len(req.Roles) == 0 {
		writeFailure(w, r, "create roles", errors.NewInvalidInput("No roles provided"))
		return
	}
	writeResult(w, http.StatusOK, s.admin.CreateRoles(r.Context(), req.Roles))
}

// UpdateRoleHandler changes a role's description.
func (s *Service) UpdateRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "update role", err)
		return
	}
	if err := s.admin.UpdateRole(r.Context(), chi.URLParam(r, "roleName"), req.Description); err != nil {
		writeFailure(w, r, "update role", err)
		return
	}
	writeResult(w, http.StatusOK, nil)
}

// DeleteRoleHandler removes a realm role.
func (s *Service) DeleteRoleHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteRole(r.Context(), chi.URLParam(r, "roleName")); err != nil {
		writeFailure(w, r, "delete role", err)
		return
	}
	writeResult(w, http.StatusOK, nil)
}

// ListRolesHandler lists the realm roles.
func (s *Service) ListRolesHandler(w http.ResponseWriter, r *http.Request) {
	roles, err := s.admin.ListRoles(r.Context())
	if err != nil {
		writeFailure(w, r, "list roles", err)
		return
	}
	if roles == nil {
		roles = []keycloak.Role{}
	}
	writeResult(w, http.StatusOK, roles)
}

// AssignRoleHandler grants a realm role to a user.
func (s *Service) AssignRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req AssignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "assign role", err)
		return
	}
	if req.UserID == "" || req.RoleName == "" {
		writeFailure(w, r, "assign role", errors.NewInvalidInput("userId and roleName are required"))
		return
	}
	if err := s.admin.AssignRealmRole(r.Context(), req.UserID, req.RoleName); err != nil {
		writeFailure(w, r, "assign role", err)
		return
	}
	writeResult(w, http.StatusOK, nil)
}

// RolesForUserHandler lists the realm roles mapped to a user.
func (s *Service) RolesForUserHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	roles, err := s.admin.UserRealmRoles(r.Context(), username)
	if err != nil {
		writeFailure(w, r, "get user roles", err)
		return
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	writeResult(w, http.StatusOK, UserRolesResponse{Username: username, Roles: names})
}
