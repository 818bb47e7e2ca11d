package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"image-processor/internal/logging"
)

type contextKey string

const userIDContextKey contextKey = "user_id"

// LoggingMiddleware logs request start/completion with duration, following
// the teacher's middleware.LoggingMiddleware shape.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		logging.Logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request started")

		next.ServeHTTP(w, r)

		logging.Logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

// RecoveryMiddleware turns a panic in a handler into a 500 instead of
// crashing the process, following the teacher's middleware.RecoveryMiddleware.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.Logger.Error().Interface("panic", err).Msg("panic recovered")
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// UserIDMiddleware reads x-user-id if present; otherwise assigns a random
// identifier, per §6. The header is read, not authenticated.
func UserIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("x-user-id")
		if userID == "" {
			userID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDContextKey).(string)
	return id
}
