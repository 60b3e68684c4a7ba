package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/offers-backend/api/responses"
	"github.com/angelmondragon/offers-backend/api/validators"
	"github.com/angelmondragon/offers-backend/pkg/logger"
)

const (
	requestIDHeader     = responses.RequestIDHeader
	correlationIDHeader = "X-Correlation-Id"
	maxRequestIDLen     = 128
)

// RequestID propagates the caller's request or correlation id, or mints one,
// so a publish can be traced across the saga logs.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := incomingRequestID(r)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func incomingRequestID(r *http.Request) string {
	for _, header := range []string{requestIDHeader, correlationIDHeader} {
		if id := validators.SanitizeString(r.Header.Get(header), maxRequestIDLen); id != "" {
			return id
		}
	}
	return ""
}
