package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phrazzld/companion-api/internal/api"
	apiMiddleware "github.com/phrazzld/companion-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	webhookHandler := api.NewWebhookHandler(app.webhookService, app.logger)
	companionHandler := api.NewCompanionHandler(app.companionService, app.jwtService, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		// Dashboard webhooks (server-to-server)
		r.Post("/webhook", webhookHandler.HandleDashboardWebhook)
		r.Post("/webhook/eta-range", webhookHandler.HandleEtaRangeWebhook)

		r.Route("/companion/{linkId}", func(r chi.Router) {
			// Public link endpoints
			r.Get("/", companionHandler.GetCompanionInfo)
			r.Get("/status", companionHandler.GetLinkStatus)
			r.Post("/auth", companionHandler.Authenticate)

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Authenticate)
				r.Get("/care-team-eta", companionHandler.GetCareTeamEta)

				r.Post("/tasks/identification", companionHandler.MarkIdentificationUploaded)
				r.Post("/tasks/insurance/{priority}", companionHandler.ApplyInsuranceImageUploaded)
				r.Post("/tasks/pharmacy", companionHandler.MarkPharmacySet)
				r.Post("/tasks/pcp/answer", companionHandler.ApplySocialHistoryAnswer)
				r.Post("/tasks/pcp/provider", companionHandler.MarkPrimaryCareProviderSet)
				r.Post("/tasks/medication-consent", companionHandler.MarkMedicationConsentApplied)
				r.Post("/tasks/consents/{definitionId}", companionHandler.ApplyConsentCompleted)
			})
		})
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
