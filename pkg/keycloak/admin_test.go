package keycloak_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/keycloak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) { return string(s), nil }

type failingTokens struct{ err error }

func (f failingTokens) Token(context.Context) (string, error) { return "", f.err }

// recordedRequest captures one admin call seen by the fake realm.
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

type adminRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func (a *adminRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	a.mu.Lock()
	a.requests = append(a.requests, recordedRequest{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization"), string(body)})
	h, ok := a.routes[r.Method+" "+r.URL.Path]
	a.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (a *adminRecorder) last() recordedRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[len(a.requests)-1]
}

func (a *adminRecorder) count(method, path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, r := range a.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func respond(status int, body interface{}) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}
}

func newAdmin(t *testing.T, routes map[string]func(http.ResponseWriter, *http.Request)) (*keycloak.AdminClient, *adminRecorder) {
	t.Helper()
	idp, client := newTestClient(t)
	rec := &adminRecorder{routes: routes}
	idp.HandleAdmin(rec)
	return keycloak.NewAdminClient(client, "qrswitch", staticTokens("admin-token"), time.Minute), rec
}

func TestCreateUser(t *testing.T) {
	admin, rec := newAdmin(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /admin/realms/qrswitch/users": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", "http://idp/admin/realms/qrswitch/users/3f1c")
			w.WriteHeader(http.StatusCreated)
		},
	})

	id, err := admin.CreateUser(context.Background(), keycloak.CreateUserRequest{
		Username: "alice", Email: "alice@example.org", Password: "pw", FirstName: "Alice", LastName: "Liddell",
	})
	require.NoError(t, err)
	assert.Equal(t, "3f1c", id)

	last := rec.last()
	assert.Equal(t, "Bearer admin-token", last.Auth)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(last.Body), &payload))
	assert.Equal(t, "alice", payload["username"])
	assert.Equal(t, true, payload["enabled"])
	assert.Equal(t, true, payload["emailVerified"])
	creds := payload["credentials"].([]interface{})
	require.Len(t, creds, 1)
	assert.Equal(t, map[string]interface{}{"type": "password", "value": "pw", "temporary": false}, creds[0])
}

func TestCreateUserValidation(t *testing.T) {
	admin, rec := newAdmin(t, nil)

	_, err := admin.CreateUser(context.Background(), keycloak.CreateUserRequest{Username: "bob"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
	assert.Empty(t, rec.requests)
}

func TestUpdateUserSendsOnlySetFields(t *testing.T) {
	admin, rec := newAdmin(t, map[string]func(http.ResponseWriter, *http.Request){
		"PUT /admin/realms/qrswitch/users/u1": respond(http.StatusNoContent, nil),
	})

	enabled := false
	require.NoError(t, admin.UpdateUser(context.Background(), "u1", keycloak.UpdateUserRequest{Enabled: &enabled}))
	assert.JSONEq(t, `{"enabled":false}`, rec.last().Body)
}

func TestListAndLookupUsers(t *testing.T) {
	admin, rec := newAdmin(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /admin/realms/qrswitch/users": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("username") == "ghost" {
				respond(http.StatusOK, []interface{}{})(w, r)
				return
			}
			respond(http.StatusOK, []keycloak.User{{ID: "u1", Username: "alice", Enabled: true}})(w, r)
		},
		"GET /admin/realms/qrswitch/users/count": respond(http.StatusOK, 42),
	})
	ctx := context.Background()

	users, err := admin.ListUsers(ctx, 40, 20)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "first=40&max=20", rec.last().Query)

	count, err := admin.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, count)

	user, err := admin.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "exact=true&username=alice", rec.last().Query)

	_, err = admin.GetUserByUsername(ctx, "ghost")
	assert.Equal(t, errors.ErrCodeNotFound, errors.GetErrorCode(err))
}

func TestResetPassword(t *testing.T) {
	admin, rec := newAdmin(t, map[string]func(http.ResponseWriter, *http.Request){
		"PUT /admin/realms/qrswitch/users/u1/reset-password": respond(http.StatusNoContent, nil),
	})

	require.NoError(t, admin.ResetPassword(context.Background(), "u1", "n3w"))
	assert.JSONEq(t, `{"type":"password","value":"n3w","temporary":false}`, rec.last().Body)
}

func TestAdminErrorMapping(t *testing.T) {
	admin, _ := newAdmin(t, map[string]func(http.ResponseWriter, *http.Request){
		"DELETE /admin/realms/qrswitch/users/missing": respond(http.StatusNotFound, map[string]string{"error": "User not found"}),
		"POST /admin/realms/qrswitch/roles":           respond(http.StatusConflict, map[string]string{"errorMessage": "Role with name ops already exists"}),
		"DELETE /admin/realms/qrswitch/roles/broken":  respond(http.StatusInternalServerError, nil),
	})
	ctx := context.Background()

	err := admin.DeleteUser(ctx, "missing")
	assert.Equal(t, errors.ErrCodeNotFound, errors.GetErrorCode(err))

	err = admin.CreateRole(ctx, "ops", "")
	gwErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeConflict, gwErr.Code)
	assert.Equal(t, http.StatusConflict, gwErr.UpstreamStatus)
	assert.Contains(t, gwErr.UpstreamBody, "already exists")

	err = admin.DeleteRole(ctx, "broken")
	assert.Equal(t, errors.ErrCodeUpstream, errors.GetErrorCode(err))
}

func TestAdminTokenFailureStopsCall(t *testing.T) {
	idp, client := newTestClient(t)
	rec := &adminRecorder{}
	idp.HandleAdmin(rec)

	admin := keycloak.NewAdminClient(client, "qrswitch", failingTokens{err: errors.ErrAuthTokenUnavailable}, time.Minute)
	_, err := admin.ListRoles(context.Background())
	assert.ErrorIs(t, err, errors.ErrAuthTokenUnavailable)
	assert.Empty(t, rec.requests)
}

func TestRoles(t *testing.T) {
	admin, rec := newAdmin(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /admin/realms/qrswitch/roles":                        respond(http.StatusCreated, nil),
		"PUT /admin/realms/qrswitch/roles/ops":                     respond(http.StatusNoContent, nil),
		"GET /admin/realms/qrswitch/roles":                         respond(http.StatusOK, []keycloak.Role{{ID: "r1", Name: "ops"}}),
		"GET /admin/realms/qrswitch/roles/ops":                     respond(http.StatusOK, keycloak.Role{ID: "r1", Name: "ops"}),
		"POST /admin/realms/qrswitch/users/u1/role-mappings/realm": respond(http.StatusNoContent, nil),
		"GET /admin/realms/qrswitch/users":                         respond(http.StatusOK, []keycloak.User{{ID: "u1", Username: "alice"}}),
		"GET /admin/realms/qrswitch/users/u1/role-mappings/realm":  respond(http.StatusOK, []keycloak.Role{{ID: "r1", Name: "ops"}}),
	})
	ctx := context.Background()

	require.NoError(t, admin.CreateRole(ctx, "ops", ""))
	assert.JSONEq(t, `{"name":"ops","description":"Role ops","composite":false,"clientRole":false}`, rec.last().Body)

	require.NoError(t, admin.UpdateRole(ctx, "ops", ""))
	assert.Contains(t, rec.last().Body, "Updated role ops")

	roles, err := admin.ListRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ops", roles[0].Name)

	require.NoError(t, admin.AssignRealmRole(ctx, "u1", "ops"))
	assert.JSONEq(t, `[{"id":"r1","name":"ops","composite":false,"clientRole":false}]`, rec.last().Body)

	userRoles, err := admin.UserRealmRoles(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, userRoles, 1)
	assert.Equal(t, "r1", userRoles[0].ID)
}

func TestCreateRolesReportsEach(t *testing.T) {
	admin, _ := newAdmin(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /admin/realms/qrswitch/roles": func(w http.ResponseWriter, r *http.Request) {
			var role keycloak.Role
			_ = json.NewDecoder(r.Body).Decode(&role)
			if role.Name == "dup" {
				respond(http.StatusConflict, nil)(w, r)
				return
			}
			w.WriteHeader(http.StatusCreated)
		},
	})

	results := admin.CreateRoles(context.Background(), []string{"a", "dup", "b"})
	require.Len(t, results, 3)
	assert.Empty(t, results[0].Error)
	assert.NotEmpty(t, results[1].Error)
	assert.Empty(t, results[2].Error)
}

func TestAuthzResourceServer(t *testing.T) {
	admin, rec := newAdmin(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /admin/realms/qrswitch/clients":                                                respond(http.StatusOK, []map[string]string{{"id": "c-uuid", "clientId": "gateway"}}),
		"POST /admin/realms/qrswitch/clients/c-uuid/authz/resource-server/scope":            respond(http.StatusCreated, map[string]string{"id": "s1", "name": "users:read"}),
		"POST /admin/realms/qrswitch/clients/c-uuid/authz/resource-server/resource":         respond(http.StatusCreated, map[string]string{"_id": "res1"}),
		"GET /admin/realms/qrswitch/roles/ops":                                              respond(http.StatusOK, keycloak.Role{ID: "r1", Name: "ops"}),
		"POST /admin/realms/qrswitch/clients/c-uuid/authz/resource-server/policy/role":      respond(http.StatusCreated, map[string]string{"id": "p1"}),
		"POST /admin/realms/qrswitch/clients/c-uuid/authz/resource-server/permission/scope": respond(http.StatusCreated, map[string]string{"id": "perm1"}),
	})
	ctx := context.Background()

	raw, err := admin.CreateScope(ctx, "gateway", keycloak.Scope{Name: "users:read"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"s1","name":"users:read"}`, string(raw))

	_, err = admin.CreateResource(ctx, "gateway", keycloak.Resource{Name: "users", Scopes: []string{"users:read", "users:write"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"users","scopes":[{"name":"users:read"},{"name":"users:write"}]}`, rec.last().Body)

	_, err = admin.CreateRolePolicy(ctx, "gateway", keycloak.RolePolicy{Name: "ops-only", Roles: []string{"ops", "ghost"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ops-only","type":"role","logic":"POSITIVE","decisionStrategy":"UNANIMOUS","roles":[{"id":"r1","required":false}]}`, rec.last().Body)

	_, err = admin.CreateScopePermission(ctx, "gateway", keycloak.ScopePermission{Name: "read-users", Scopes: []string{"users:read"}, Policies: []string{"ops-only"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"read-users","type":"scope","scopes":["users:read"],"policies":["ops-only"]}`, rec.last().Body)

	assert.Equal(t, 1, rec.count(http.MethodGet, "/admin/realms/qrswitch/clients"), "client uuid lookup should be cached")
}

func TestClientUUIDNotFound(t *testing.T) {
	admin, _ := newAdmin(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /admin/realms/qrswitch/clients": respond(http.StatusOK, []interface{}{}),
	})

	_, err := admin.CreateScope(context.Background(), "nope", keycloak.Scope{Name: "x"})
	assert.Equal(t, errors.ErrCodeNotFound, errors.GetErrorCode(err))
}

type invalidatingTokens struct {
	staticTokens
	invalidated []string
}

func (i *invalidatingTokens) InvalidateToken(value string) {
	i.invalidated = append(i.invalidated, value)
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	idp, client := newTestClient(t)
	idp.HandleAdmin(&adminRecorder{routes: map[string]func(http.ResponseWriter, *http.Request){
		"GET /admin/realms/qrswitch/roles": respond(http.StatusUnauthorized, map[string]string{"error": "HTTP 401 Unauthorized"}),
	}})

	tokens := &invalidatingTokens{staticTokens: "stale"}
	admin := keycloak.NewAdminClient(client, "qrswitch", tokens, time.Minute)

	_, err := admin.ListRoles(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUpstream, errors.GetErrorCode(err))
	assert.Equal(t, []string{"stale"}, tokens.invalidated)
}
