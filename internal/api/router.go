/**
 * @description
 * This file sets up the HTTP router for the payment service using the chi
 * library. It defines the public endpoints (registration, login, health,
 * metrics) and the authenticated endpoint group for order and account
 * operations.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: The HTTP router.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Rouple12138/Web-service-CW2/internal/app"
	"github.com/Rouple12138/Web-service-CW2/internal/metrics"
)

// NewRouter creates and configures the service's HTTP router.
func NewRouter(service *app.Service, jwtSecret string, corsAllowedOrigins string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := strings.Split(corsAllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := NewPaymentHandlers(service)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/payment", func(r chi.Router) {
		// Public endpoints.
		r.Post("/register", h.RegisterHandler)
		r.Post("/login", h.LoginHandler)

		// Endpoints below require a valid session token.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret))

			r.Post("/orders", h.CreateOrderHandler)
			r.Get("/orders", h.ListOrdersHandler)
			r.Post("/orders/pay", h.PayOrderHandler)
			r.Post("/orders/refund", h.RefundOrderHandler)

			r.Get("/accounts/{accountID}/balance", h.GetBalanceHandler)
			r.Post("/accounts/{accountID}/deposit", h.DepositHandler)
		})
	})

	return r
}
