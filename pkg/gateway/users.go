package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/keycloak"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ResetPasswordRequest carries the new permanent password.
type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

// CreateUserHandler creates an enabled user with a permanent password.
func (s *Service) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req keycloak.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "create user", err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeFailure(w, r, "create user", errors.NewInvalidInput("username and password are required"))
		return
	}

	id, err := s.admin.CreateUser(r.Context(), req)
	if err != nil {
		writeFailure(w, r, "create user", err)
		return
	}
	writeResult(w, http.StatusCreated, map[string]string{"id": id})
}

// UpdateUserHandler applies a partial update to a user.
func (s *Service) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req keycloak.UpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "update user", err)
		return
	}
	if err := s.admin.UpdateUser(r.Context(), chi.URLParam(r, "userID"), req); err != nil {
		writeFailure(w, r, "update user", err)
		return
	}
	writeResult(w, http.StatusOK, nil)
}

// DeleteUserHandler removes a user.
func (s *Service) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeFailure(w, r, "delete user", err)
		return
	}
	writeResult(w, http.StatusOK, nil)
}

// ListUsersHandler lists one page of users. page is zero based.
func (s *Service) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil || page < 0 {
		writeFailure(w, r, "list users", errors.NewInvalidInput("page must be a non-negative integer"))
		return
	}
	size, err := queryInt(r, "size", defaultPageSize)
	if err != nil || size < 1 || size > maxPageSize {
		writeFailure(w, r, "list users", errors.Newf(errors.ErrCodeInvalidInput, "size must be between 1 and %d", maxPageSize))
		return
	}
	first := page * size

	users, err := s.admin.ListUsers(r.Context(), first, size)
	if err != nil {
		writeFailure(w, r, "list users", err)
		return
	}
	total, err := s.admin.CountUsers(r.Context())
	if err != nil {
		writeFailure(w, r, "count users", err)
		return
	}
	if users == nil {
		users = []keycloak.User{}
	}

	writeJSON(w, http.StatusOK, Result{
		Success:    true,
		Status:     http.StatusOK,
		Data:       users,
		Pagination: &Pagination{Page: page, Size: size, First: first, Total: total},
	})
}

// GetUserByUsernameHandler looks a user up by exact username.
func (s *Service) GetUserByUsernameHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.admin.GetUserByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeFailure(w, r, "get user", err)
		return
	}
	writeResult(w, http.StatusOK, user)
}

// ResetPasswordHandler replaces a user's password.
func (s *Service) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, "reset password", err)
		return
	}
	if req.NewPassword == "" {
		writeFailure(w, r, "reset password", errors.NewInvalidInput("newPassword is required"))
		return
	}
	if err := s.admin.ResetPassword(r.Context(), chi.URLParam(r, "userID"), req.NewPassword); err != nil {
		writeFailure(w, r, "reset password", err)
		return
	}
	writeResult(w, http.StatusOK, nil)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
