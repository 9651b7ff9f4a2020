package keycloak

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/openchami/realmgate/pkg/errors"
)

// User is a realm user as returned by the admin API.
type User struct {
	ID               string   `json:"id,omitempty"`
	Username         string   `json:"username"`
	Email            string   `json:"email,omitempty"`
	FirstName        string   `json:"firstName,omitempty"`
	LastName         string   `json:"lastName,omitempty"`
	Enabled          bool     `json:"enabled"`
	EmailVerified    bool     `json:"emailVerified,omitempty"`
	CreatedTimestamp int64    `json:"createdTimestamp,omitempty"`
	RequiredActions  []string `json:"requiredActions,omitempty"`
}

// CreateUserRequest describes a new, enabled user with a permanent password.
type CreateUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// UpdateUserRequest is a partial update; nil fields are left unchanged.
type UpdateUserRequest struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`
}

type credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type userRepresentation struct {
	User
	Credentials []credential `json:"credentials,omitempty"`
}

// CreateUser creates the user and returns the id assigned by the provider.
func (a *AdminClient) CreateUser(ctx context.Context, req CreateUserRequest) (string, error) {
	if req.Username == "" || req.Password == "" {
		return "", errors.NewInvalidInput("username and password are required")
	}

	payload := userRepresentation{
		User: User{
			Username:      req.Username,
			Email:         req.Email,
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			Enabled:       true,
			EmailVerified: true,
		},
		Credentials: []credential{{Type: "password", Value: req.Password}},
	}

	resp, err := a.do(ctx, adminRequest{method: http.MethodPost, path: "/users", body: payload})
	if err != nil {
		return "", err
	}
	return lastPathSegment(resp.location), nil
}

// UpdateUser applies a partial update to the user.
func (a *AdminClient) UpdateUser(ctx context.Context, userID string, req UpdateUserRequest) error {
	_, err := a.do(ctx, adminRequest{method: http.MethodPut, path: pathf("/users/%s", userID), body: req})
	return err
}

// DeleteUser removes the user.
func (a *AdminClient) DeleteUser(ctx context.Context, userID string) error {
	_, err := a.do(ctx, adminRequest{method: http.MethodDelete, path: pathf("/users/%s", userID)})
	return err
}

// ListUsers returns up to max users starting at offset first.
func (a *AdminClient) ListUsers(ctx context.Context, first, max int) ([]User, error) {
	query := url.Values{}
	query.Set("first", strconv.Itoa(first))
	query.Set("max", strconv.Itoa(max))

	users := []User{}
	if _, err := a.do(ctx, adminRequest{method: http.MethodGet, path: "/users", query: query, out: &users}); err != nil {
		return nil, err
	}
	return users, nil
}

// CountUsers returns the number of users in the realm.
func (a *AdminClient) CountUsers(ctx context.Context) (int, error) {
	var count int
	if _, err := a.do(ctx, adminRequest{method: http.MethodGet, path: "/users/count", out: &count}); err != nil {
		return 0, err
	}
	return count, nil
}

// GetUserByUsername looks the user up by exact username.
func (a *AdminClient) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := url.Values{}
	query.Set("username", username)
	query.Set("exact", "true")

	users := []User{}
	if _, err := a.do(ctx, adminRequest{method: http.MethodGet, path: "/users", query: query, out: &users}); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, errors.Newf(errors.ErrCodeNotFound, "user %q not found", username)
	}
	return &users[0], nil
}

// ResetPassword sets a new permanent password for the user.
func (a *AdminClient) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if newPassword == "" {
		return errors.NewInvalidInput("new password is required")
	}
	_, err := a.do(ctx, adminRequest{
		method: http.MethodPut,
		path:   pathf("/users/%s/reset-password", userID),
		body:   credential{Type: "password", Value: newPassword},
	})
	return err
}
