package rest

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/pocket-settlement/internal/payee"
	"github.com/frahmantamala/pocket-settlement/internal/payment"
	"github.com/frahmantamala/pocket-settlement/internal/payout"
	"github.com/frahmantamala/pocket-settlement/internal/transport/middleware"
	"github.com/frahmantamala/pocket-settlement/internal/transport/swagger"
)

type Handlers struct {
	Payment *payment.Handler
	Webhook *payment.WebhookHandler
	Payout  *payout.Handler
	Payee   *payee.Handler
	Queue   QueueDepth
}

type RouterConfig struct {
	AllowedOrigins string
	OpenAPIPath    string
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, handlers Handlers, config RouterConfig, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db, handlers.Queue)

	// Apply global middleware
	router.Use(middleware.CORS(config.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve the OpenAPI document at root (outside API prefix)
	router.Get("/openapi.yml", swagger.SpecHandler(config.OpenAPIPath))
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// processor callbacks for payments and payouts share one endpoint
		if handlers.Webhook != nil {
			r.Post("/payment/callback", handlers.Webhook.HandleCallback)
		}

		if handlers.Payment != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/", handlers.Payment.CreatePayment)
				pr.Get("/{idempotency_key}", handlers.Payment.GetPayment)
			})
		}

		if handlers.Payout != nil {
			r.Route("/payouts", func(pr chi.Router) {
				pr.Post("/", handlers.Payout.CreatePayout)
				pr.Get("/{id}", handlers.Payout.GetPayout)
				pr.Post("/{id}/card", handlers.Payout.SendToCard)
				pr.Post("/{id}/page", handlers.Payout.StartPagePayout)
				pr.Post("/{id}/sbp", handlers.Payout.SendSBP)
			})
		}

		if handlers.Payee != nil {
			r.Get("/payees/{id}/balance", handlers.Payee.GetBalance)
		}
	})
}
