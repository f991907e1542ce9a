package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vidsmith/vidsmith/internal/api"
)

// newRouter configures the application router with all routes and
// middleware.
func newRouter(handler *api.GenerationHandler, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generations", handler.CreateGeneration)
		r.Get("/generations/{chatID}", handler.ListGenerating)
		r.Post("/chats/{chatID}/reconcile", handler.ReconcileChat)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
