// Package auth provides integrator API-key authentication for the RFQ API.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"

	apperrors "github.com/rfqlabs/rfq-relayer/pkg/app/errors"
	apphttp "github.com/rfqlabs/rfq-relayer/pkg/app/http"
	"github.com/rfqlabs/rfq-relayer/pkg/config"
)

// APIKeyHeader carries the integrator API key on quote and submit requests
const APIKeyHeader = "0x-api-key"

type contextKey string

const contextKeyIntegratorID contextKey = "integrator_id"

// IntegratorID returns the authenticated integrator ID from the context
func IntegratorID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeyIntegratorID).(string)
	return id, ok
}

// Middleware authenticates requests against the configured integrator keys
// and stores the integrator ID in the request context.
func Middleware(integrators []config.Integrator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "missing API key"))
				return
			}

			for _, integrator := range integrators {
				if subtle.ConstantTimeCompare([]byte(integrator.APIKey), []byte(key)) == 1 {
					ctx := context.WithValue(r.Context(), contextKeyIntegratorID, integrator.ID)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "invalid API key"))
		})
	}
}
