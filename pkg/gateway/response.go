package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/logging"
)

// maxRequestBodySize bounds JSON request bodies.
const maxRequestBodySize = 1 << 20

// Result is the envelope every admin endpoint answers with.
type Result struct {
	Success    bool        `json:"success"`
	Status     int         `json:"status"`
	Error      string      `json:"error,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes the window of a paged listing.
type Pagination struct {
	Page  int `json:"page"`
	Size  int `json:"size"`
	First int `json:"first"`
	Total int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeResult(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, Result{Success: true, Status: status, Data: data})
}

// writeFailure renders err inside the envelope. Unauthorized and forbidden
// outcomes keep the uniform bodies of errors.WriteHTTP; upstream bodies are
// logged, never returned.
func writeFailure(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := errors.GetHTTPStatus(err)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		errors.WriteHTTP(w, err)
		return
	}

	logger := logging.NewStructuredLoggerFromContext(r.Context(), "gateway")
	if status >= http.StatusInternalServerError {
		logger.WithError(err).Warn(operation + " failed")
	} else {
		logger.WithError(err).Debug(operation + " rejected")
	}

	message := http.StatusText(status)
	if gwErr, ok := errors.As(err); ok && gwErr.Code != errors.ErrCodeInternal {
		message = gwErr.Message
	}
	writeJSON(w, status, Result{Success: false, Status: status, Error: message})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body")
	}
	return nil
}
