// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/auth"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/middleware"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
)

// Router binds the handler to routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	authn         auth.Authenticator
}

// NewRouter creates a router. mw may be nil for the defaults.
func NewRouter(handler *Handler, authn auth.Authenticator, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw, authn: authn}
}

// Setup builds the chi route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, models.ErrCodeNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, models.ErrCodeBadRequest, "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
	})

	r.Route("/api/v1/accounts", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(auth.Middleware(router.authn))

		r.Get("/", router.handler.ListAccounts)
		r.Post("/", router.handler.CreateAccount)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", router.handler.GetAccount)
			r.Delete("/", router.handler.DeleteAccount)
			r.Post("/restart", router.handler.RestartAccount)
			r.Post("/commands", router.handler.SendCommand)
		})
	})

	r.With(router.chiMiddleware.RateLimit(), auth.Middleware(router.authn)).Get("/ws", router.handler.WebSocket)

	return r
}
