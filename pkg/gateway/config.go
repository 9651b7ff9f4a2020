package gateway

import (
	"net/http"

	"github.com/openchami/realmgate/pkg/policy"
)

// Permission names granted through the resource server of the gateway client.
const (
	PermCreateUser        = "CreateUser"
	PermUpdateUser        = "UpdateUser"
	PermDeleteUser        = "DeleteUser"
	PermGetAllUsers       = "GetAllUsers"
	PermGetUserByUsername = "GetUserByUsername"
	PermResetPassword     = "ResetPassword"

	PermCreateRole      = "CreateRole"
	PermUpdateRole      = "UpdateRole"
	PermDeleteRole      = "DeleteRole"
	PermGetAllRoles     = "GetAllRoles"
	PermAssignRole      = "AssignRole"
	PermGetRolesForUser = "GetRolesForUser"

	PermCreateScope      = "CreateScope"
	PermCreateResource   = "CreateResource"
	PermCreatePolicy     = "CreatePolicy"
	PermCreatePermission = "CreatePermission"
)

// Route patterns served by the gateway.
const (
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
	RouteLogin   = "/api/auth/login"
	RouteMe      = "/api/me"

	RouteUsers          = "/api/users"
	RouteUser           = "/api/users/{userID}"
	RouteUserByUsername = "/api/users/by-username/{username}"
	RouteResetPassword  = "/api/users/{userID}/reset-password"
	RouteRoles          = "/api/roles"
	RouteRolesBatch     = "/api/roles/batch"
	RouteRole           = "/api/roles/{roleName}"
	RouteAssignRole     = "/api/roles/assign"
	RouteRolesForUser   = "/api/roles/users/{username}"
	RouteAuthzScope     = "/api/authz/scope"
	RouteAuthzResource  = "/api/authz/resource"
	RouteAuthzPolicy    = "/api/authz/policy"
	RouteAuthzPerm      = "/api/authz/permission"
)

// DefaultRegistry returns the built-in requirement table. A policy file can
// overlay or replace it.
func DefaultRegistry() *policy.RegistryBuilder {
	return policy.NewRegistryBuilder().
		Permission(http.MethodPost, RouteUsers, PermCreateUser).
		Permission(http.MethodPut, RouteUser, PermUpdateUser).
		Permission(http.MethodDelete, RouteUser, PermDeleteUser).
		Permission(http.MethodGet, RouteUsers, PermGetAllUsers).
		Permission(http.MethodGet, RouteUserByUsername, PermGetUserByUsername).
		Permission(http.MethodPost, RouteResetPassword, PermResetPassword).
		Permission(http.MethodPost, RouteRoles, PermCreateRole).
		Permission(http.MethodPost, RouteRolesBatch, PermCreateRole).
		Permission(http.MethodPut, RouteRole, PermUpdateRole).
		Permission(http.MethodDelete, RouteRole, PermDeleteRole).
		Permission(http.MethodGet, RouteRoles, PermGetAllRoles).
		Permission(http.MethodPost, RouteAssignRole, PermAssignRole).
		Permission(http.MethodGet, RouteRolesForUser, PermGetRolesForUser).
		Permission(http.MethodPost, RouteAuthzScope, PermCreateScope).
		Permission(http.MethodPost, RouteAuthzResource, PermCreateResource).
		Permission(http.MethodPost, RouteAuthzPolicy, PermCreatePolicy).
		Permission(http.MethodPost, RouteAuthzPerm, PermCreatePermission)
}
