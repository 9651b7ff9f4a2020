package gateway

import (
	"net/http"

	"github.com/openchami/realmgate/middleware"
	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/logging"
)

// LoginRequest carries end user credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse returns the access token together with the RPT obtained for
// it.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	RPTToken    string `json:"rpt_token"`
}

// MeResponse describes the authenticated caller.
type MeResponse struct {
	Subject     string   `json:"sub"`
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// LoginHandler performs the password grant and the RPT exchange. Every
// failure after input validation answers with the same 401 body so callers
// cannot tell a bad password from an exchange problem.
func (s *Service) LoginHandler(w http.ResponseWriter, r *http.Request) {
	logger := logging.NewStructuredLoggerFromContext(r.Context(), "login")

	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		errors.WriteHTTP(w, errors.NewInvalidInput("username and password are required"))
		return
	}
	logger = logger.WithField("username", req.Username)

	tok, err := s.idp.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		logger.WithError(err).Info("login failed")
		errors.WriteHTTP(w, errors.NewUnauthorized("login failed"))
		return
	}

	rpt, err := s.exchanger.Exchange(r.Context(), tok.AccessToken)
	if err != nil {
		logger.WithError(err).Info("rpt exchange after login failed")
		errors.WriteHTTP(w, errors.NewUnauthorized("login failed"))
		return
	}

	logger.Debug("login succeeded")
	writeJSON(w, http.StatusOK, LoginResponse{AccessToken: tok.AccessToken, RPTToken: rpt.Value})
}

// MeHandler returns the caller's augmented identity.
func (s *Service) MeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		errors.WriteHTTP(w, errors.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{
		Subject:     id.Subject,
		Username:    id.Username,
		Roles:       id.Roles.Sorted(),
		Permissions: id.Permissions.Sorted(),
	})
}
