/**
 * @description
 * This file sets up the HTTP router for the payments-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS policy for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PaymentRoutes creates and returns a new router for the payments service.
func PaymentRoutes(h *PaymentHandlers, wh *WebhookHandler, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Gateway callbacks authenticate with an HMAC signature, not a JWT.
	r.Post("/payments/webhook", wh.HandleGatewayWebhook)

	// Tenant-facing endpoints require a valid JWT.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/payments/intents", h.CreatePaymentIntentHandler)
		r.Post("/payments/intents/{intentID}/cancel", h.CancelPaymentIntentHandler)
	})

	// Service-to-service endpoints are guarded by the shared internal key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/payments/intents/{intentID}/reconcile", h.ReconcilePaymentIntentHandler)
		r.Get("/payments/tenants/{tenantID}", h.TenantPaymentHistoryHandler)

		r.Post("/owner-payments", h.ComputeOwnerPaymentHandler)

		r.Post("/payout-periods", h.CreatePayoutPeriodHandler)
		r.Get("/payout-periods/{periodID}/owners-status", h.OwnersPayoutStatusHandler)
		r.Post("/payouts", h.CreateOwnerPayoutHandler)
		r.Post("/payouts/{payoutID}/process", h.ProcessOwnerPayoutHandler)
		r.Post("/payouts/{payoutID}/retry", h.RetryOwnerPayoutHandler)

		r.Get("/settings/payouts", h.GetPayoutSettingsHandler)
		r.Put("/settings/payouts", h.UpdatePayoutSettingsHandler)
	})

	return r
}
