package middleware

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/offers-backend/api/responses"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope. A panic inside a
// publish leaves the offer in PROD_PEND for an operator to inspect.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				ctx := r.Context()
				if logg != nil {
					fields := map[string]any{
						"panic":  fmt.Sprint(rec),
						"method": r.Method,
						"path":   r.URL.Path,
					}
					if rctx := chi.RouteContext(ctx); rctx != nil {
						fields["route"] = rctx.RoutePattern()
					}
					ctx = logg.WithFields(ctx, fields)
					logg.Error(ctx, "request panicked", err)
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected server error"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
