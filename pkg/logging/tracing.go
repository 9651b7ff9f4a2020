package logging

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestIDHeader is read from inbound requests and echoed on responses.
const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the context key for request ID
type RequestIDKey struct{}

// SubjectKey is the context key for the authenticated subject
type SubjectKey struct{}

type subjectSlotKey struct{}

// subjectSlot lets Middleware see a subject recorded by an inner handler on
// a derived context.
type subjectSlot struct {
	mu      sync.Mutex
	subject string
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey{}, requestID)
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey{}).(string); ok {
		return requestID
	}
	return ""
}

// WithSubject records the authenticated subject for log correlation. Inside
// Middleware the subject also lands on the request line.
func WithSubject(ctx context.Context, subject string) context.Context {
	if slot, ok := ctx.Value(subjectSlotKey{}).(*subjectSlot); ok {
		slot.mu.Lock()
		slot.subject = subject
		slot.mu.Unlock()
	}
	return context.WithValue(ctx, SubjectKey{}, subject)
}

// GetSubject extracts the authenticated subject from the context
func GetSubject(ctx context.Context) string {
	if subject, ok := ctx.Value(SubjectKey{}).(string); ok {
		return subject
	}
	return ""
}

// FromContext returns the global logger enriched with the request id and
// subject found in ctx and tagged with component.
func FromContext(ctx context.Context, component string) zerolog.Logger {
	logger := log.Logger.With().Str("component", component)
	if requestID := GetRequestID(ctx); requestID != "" {
		logger = logger.Str("request_id", requestID)
	}
	if subject := GetSubject(ctx); subject != "" {
		logger = logger.Str("subject", subject)
	}
	return logger.Logger()
}

// Middleware assigns every request an id, taken from X-Request-ID when the
// caller supplies one, and logs the completed request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		slot := &subjectSlot{}
		ctx := context.WithValue(WithRequestID(r.Context(), requestID), subjectSlotKey{}, slot)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(ctx)
		next.ServeHTTP(ww, r)

		slot.mu.Lock()
		subject := slot.subject
		slot.mu.Unlock()
		if subject != "" {
			ctx = context.WithValue(ctx, SubjectKey{}, subject)
		}

		logger := FromContext(ctx, "http")
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
