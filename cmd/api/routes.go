package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"bookservice/internal/book"
	"bookservice/internal/config"
	"bookservice/internal/httpx"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readyTimeout = 500 * time.Millisecond

// newRouter wires the middleware chain, the ops endpoints and the /books API.
// ctx bounds the rate limiter's cleanup loop.
func newRouter(ctx context.Context, cfg config.Config, log *slog.Logger, repo book.Repository) http.Handler {
	bookHandler := book.NewHTTPHandler(book.NewService(repo, log), log, cfg.Addr)
	rateLimiter := httpx.NewRateLimitMiddleware(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(httpx.RequestIDMiddleware)
	r.Use(httpx.AccessLogMiddleware(log))
	r.Use(httpx.MetricsMiddleware)
	r.Use(httpx.RecoveryMiddleware(log))
	r.Use(httpx.SecurityHeadersMiddleware(cfg.EnableHSTS))
	r.Use(httpx.CORSMiddleware(cfg.CORSAllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.Text(w, http.StatusOK, "ok")
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := repo.Ping(pingCtx); err != nil {
			log.WarnContext(r.Context(), "readiness check failed", "error", err)
			httpx.JSONError(w, r, http.StatusServiceUnavailable, "db not ready")
			return
		}
		httpx.Text(w, http.StatusOK, "ready")
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(rateLimiter.Middleware)
		r.Use(httpx.RequestSizeLimitMiddleware(cfg.MaxBodyBytes))
		r.Mount("/books", bookHandler.Routes())
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSONError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSONError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
