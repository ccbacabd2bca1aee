package core

import (
	"context"
	"net/http"
	"time"

	"billingsync/internal/types"
)

const defaultRequestTimeout = 15 * time.Second

// Header values masked in request logs.
var redactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Stripe-Signature",
	"X-Admin-Key",
}

// MountRoutes registers the middleware chain, the domain routes and the
// health check. Must be called once, after RouteRegistrars is populated.
//
// Middleware order:
//  1. Recoverer catches panics from everything below.
//  2. ContextTimeout bounds handler work.
//  3. RequestID feeds the logger and downstream messages.
//  4. RequestLogger.
//  5. Metrics.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, redactedHeaders))
	s.router.Use(s.MetricsMiddleware)

	for _, register := range s.RouteRegistrars {
		register(s.router)
	}

	s.router.Get("/health", s.HandleHealth)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundRoute, "route not found", nil))
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusMethodNotAllowed, APIErrorResponse{
			Error: ErrorDetail{
				Code:      "method_not_allowed",
				Message:   "method not allowed",
				RequestID: types.GetRequestID(r.Context()),
			},
		})
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
