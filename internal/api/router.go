/**
 * @description
 * This file sets up the HTTP router for the bank-linking-service using chi.
 * It wires the middleware chain and maps routes to their handlers.
 *
 * Bank reference data is public; everything under /accounts requires an
 * authenticated customer and is subject to rate limiting when a limiter is
 * configured.
 */
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/arthapay/bank-linking-service/internal/config"
	"github.com/arthapay/bank-linking-service/pkg/middleware"
)

// NewRouter creates and configures the main router for the service.
// limiter may be nil, in which case no rate limiting is applied.
func NewRouter(cfg *config.Config, accounts *AccountHandler, banks *BankHandler, limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/banks", banks.ListBanks)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg))

		r.Route("/accounts", func(r chi.Router) {
			// Only the mutating routes are rate limited; reads stay cheap.
			limited := r.With(middleware.RateLimit(limiter))
			limited.Post("/", accounts.CreateAccount)
			limited.Patch("/", accounts.UpdateAccount)
			limited.Put("/", accounts.UpdateAccount)
			r.Get("/", accounts.GetAccount)

			// The active account is the only addressable resource.
			r.Get("/{id}", accounts.RejectAccountByID)
			r.Patch("/{id}", accounts.RejectAccountByID)
			r.Put("/{id}", accounts.RejectAccountByID)
			r.Delete("/{id}", accounts.RejectAccountByID)
		})
	})

	return r
}
