package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, corsOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(RecoveryMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(UserIDMiddleware)
	r.Use(corsMiddleware(corsOrigin))
	r.Use(chimw.RequestID)

	r.Get("/health", Health)

	r.Route("/v1/images", func(r chi.Router) {
		r.Post("/", h.UploadImage)
		r.Get("/{id}", h.GetImage)
		r.Delete("/{id}", h.DeleteImage)
		r.Post("/{id}/rotate", h.Rotate)
		r.Post("/{id}/flip", h.Flip)
		r.Post("/{id}/resize", h.Resize)
		r.Post("/{id}/compress", h.Compress)
		r.Post("/{id}/undo", h.Undo)
		r.Get("/{id}/history", h.History)
	})

	return r
}

func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-user-id")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
