// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package gateway serves the realmgate HTTP API: end user login, the
// caller's own identity, and the permission-guarded admin operations that
// proxy to the identity provider's admin REST API.
package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/openchami/realmgate/middleware"
	"github.com/openchami/realmgate/pkg/claims"
	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/keycloak"
	"github.com/openchami/realmgate/pkg/logging"
	"github.com/openchami/realmgate/pkg/metrics"
	"github.com/openchami/realmgate/pkg/policy"
)

const shutdownTimeout = 10 * time.Second

// LoginProvider performs the end user password grant.
type LoginProvider interface {
	Login(ctx context.Context, username, password string) (*keycloak.TokenResponse, error)
}

// Admin is the subset of the identity provider admin API the gateway proxies.
// *keycloak.AdminClient implements it.
type Admin interface {
	CreateUser(ctx context.Context, req keycloak.CreateUserRequest) (string, error)
	UpdateUser(ctx context.Context, userID string, req keycloak.UpdateUserRequest) error
	DeleteUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context, first, max int) ([]keycloak.User, error)
	CountUsers(ctx context.Context) (int, error)
	GetUserByUsername(ctx context.Context, username string) (*keycloak.User, error)
	ResetPassword(ctx context.Context, userID, newPassword string) error

	CreateRole(ctx context.Context, name, description string) error
	CreateRoles(ctx context.Context, names []string) []keycloak.RoleResult
	UpdateRole(ctx context.Context, name, description string) error
	DeleteRole(ctx context.Context, name string) error
	ListRoles(ctx context.Context) ([]keycloak.Role, error)
	AssignRealmRole(ctx context.Context, userID, roleName string) error
	UserRealmRoles(ctx context.Context, username string) ([]keycloak.Role, error)

	CreateScope(ctx context.Context, clientID string, scope keycloak.Scope) (json.RawMessage, error)
	CreateResource(ctx context.Context, clientID string, resource keycloak.Resource) (json.RawMessage, error)
	CreateRolePolicy(ctx context.Context, clientID string, p keycloak.RolePolicy) (json.RawMessage, error)
	CreateScopePermission(ctx context.Context, clientID string, p keycloak.ScopePermission) (json.RawMessage, error)
}

// Config wires the gateway's collaborators.
type Config struct {
	IdP           LoginProvider
	Exchanger     claims.RPTExchanger
	Admin         Admin
	Authenticator *middleware.Authenticator
	Engine        *policy.Engine
	Metrics       *metrics.Metrics

	// ResourceClientID is the client whose resource server the authz
	// endpoints manage.
	ResourceClientID string
}

// Service is the gateway HTTP service.
type Service struct {
	idp              LoginProvider
	exchanger        claims.RPTExchanger
	admin            Admin
	auth             *middleware.Authenticator
	engine           *policy.Engine
	metrics          *metrics.Metrics
	resourceClientID string
	router           chi.Router
}

// NewService builds the router and checks the policy registry against it.
// A registry entry that names an unrouted operation is a configuration error.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.IdP == nil:
		return nil, errors.NewInvalidConfig("identity provider is required")
	case cfg.Exchanger == nil:
		return nil, errors.NewInvalidConfig("RPT exchanger is required")
	case cfg.Admin == nil:
		return nil, errors.NewInvalidConfig("admin client is required")
	case cfg.Authenticator == nil:
		return nil, errors.NewInvalidConfig("authenticator is required")
	case cfg.Engine == nil:
		return nil, errors.NewInvalidConfig("policy engine is required")
	}

	s := &Service{
		idp:              cfg.IdP,
		exchanger:        cfg.Exchanger,
		admin:            cfg.Admin,
		auth:             cfg.Authenticator,
		engine:           cfg.Engine,
		metrics:          cfg.Metrics,
		resourceClientID: cfg.ResourceClientID,
	}
	s.router = s.routes()

	if err := s.engine.Registry().CheckRoutes(s.router); err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler { return s.router }

// Routes returns the gateway route table without any collaborators wired,
// for checking a requirement registry offline.
func Routes() chi.Routes {
	s := &Service{
		auth:   middleware.NewAuthenticator(nil, nil, middleware.Options{}),
		engine: policy.NewEngine(nil, nil),
	}
	return s.routes()
}

func (s *Service) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(chimw.Recoverer)

	r.Get(RouteHealth, s.HealthHandler)
	r.Handle(RouteMetrics, s.metrics.Handler())
	r.Post(RouteLogin, s.LoginHandler)

	// Guard runs after routing so it sees the matched pattern.
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Use(s.engine.Guard)

		r.Get(RouteMe, s.MeHandler)

		r.Post(RouteUsers, s.CreateUserHandler)
		r.Get(RouteUsers, s.ListUsersHandler)
		r.Put(RouteUser, s.UpdateUserHandler)
		r.Delete(RouteUser, s.DeleteUserHandler)
		r.Get(RouteUserByUsername, s.GetUserByUsernameHandler)
		r.Post(RouteResetPassword, s.ResetPasswordHandler)

		r.Post(RouteRoles, s.CreateRoleHandler)
		r.Post(RouteRolesBatch, s.CreateRolesHandler)
		r.Get(RouteRoles, s.ListRolesHandler)
		r.Put(RouteRole, s.UpdateRoleHandler)
		r.Delete(RouteRole, s.DeleteRoleHandler)
		r.Post(RouteAssignRole, s.AssignRoleHandler)
		r.Get(RouteRolesForUser, s.RolesForUserHandler)

		r.Post(RouteAuthzScope, s.CreateScopeHandler)
		r.Post(RouteAuthzResource, s.CreateResourceHandler)
		r.Post(RouteAuthzPolicy, s.CreatePolicyHandler)
		r.Post(RouteAuthzPerm, s.CreatePermissionHandler)
	})

	return r
}

// HealthHandler reports liveness.
func (s *Service) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Service) Start(ctx context.Context, addr string) error {
	logger := logging.GetLogger("gateway")
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("starting realmgate")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
