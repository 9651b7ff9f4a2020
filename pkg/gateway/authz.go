package gateway

import (
	"net/http"

	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/keycloak"
)

// The authz endpoints manage the resource server of the gateway client and
// return the identity provider's representation of what was created.

// CreateScopeHandler creates an authorization scope.
func (s *Service) CreateScopeHandler(w http.ResponseWriter, r *http.Request) {
	var req keycloak.Scope
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "create scope", err)
		return
	}
	if req.Name == "" {
		writeFailure(w, r, "create scope", errors.NewInvalidInput("name is required"))
		return
	}
	raw, err := s.admin.CreateScope(r.Context(), s.resourceClientID, req)
	if err != nil {
		writeFailure(w, r, "create scope", err)
		return
	}
	writeResult(w, http.StatusCreated, raw)
}

// CreateResourceHandler creates a protected resource.
func (s *Service) CreateResourceHandler(w http.ResponseWriter, r *http.Request) {
	var req keycloak.Resource
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "create resource", err)
		return
	}
	if req.Name == "" {
		writeFailure(w, r, "create resource", errors.NewInvalidInput("name is required"))
		return
	}
	raw, err := s.admin.CreateResource(r.Context(), s.resourceClientID, req)
	if err != nil {
		writeFailure(w, r, "create resource", err)
		return
	}
	writeResult(w, http.StatusCreated, raw)
}

// CreatePolicyHandler creates a role policy.
func (s *Service) CreatePolicyHandler(w http.ResponseWriter, r *http.Request) {
	var req keycloak.RolePolicy
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "create policy", err)
		return
	}
	if req.Name == "" || len(req.Roles) == 0 {
		writeFailure(w, r, "create policy", errors.NewInvalidInput("name and roles are required"))
		return
	}
	raw, err := s.admin.CreateRolePolicy(r.Context(), s.resourceClientID, req)
	if err != nil {
		writeFailure(w, r, "create policy", err)
		return
	}
	writeResult(w, http.StatusCreated, raw)
}

// CreatePermissionHandler creates a scope permission.
func (s *Service) CreatePermissionHandler(w http.ResponseWriter, r *http.Request) {
	var req keycloak.ScopePermission
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "create permission", err)
		return
	}
	if req.Name == "" || len(req.Scopes) == 0 || len(req.Policies) == 0 {
		writeFailure(w, r, "create permission", errors.NewInvalidInput("name, scopes and policies are required"))
		return
	}
	raw, err := s.admin.CreateScopePermission(r.Context(), s.resourceClientID, req)
	if err != nil {
		writeFailure(w, r, "create permission", err)
		return
	}
	writeResult(w, http.StatusCreated, raw)
}
