package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cratebox/cratebox-backend/api/controllers"
	"github.com/cratebox/cratebox-backend/api/middleware"
	"github.com/cratebox/cratebox-backend/internal/boxes"
	"github.com/cratebox/cratebox-backend/internal/cycles"
	"github.com/cratebox/cratebox-backend/internal/pricing"
	subsvc "github.com/cratebox/cratebox-backend/internal/subscriptions"
	"github.com/cratebox/cratebox-backend/pkg/auth/session"
	"github.com/cratebox/cratebox-backend/pkg/config"
	"github.com/cratebox/cratebox-backend/pkg/enums"
	"github.com/cratebox/cratebox-backend/pkg/logger"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Sessions      session.AccessSessionChecker
	HealthDeps    map[string]controllers.Pinger
	Subscriptions subsvc.Service
	Pricing       pricing.Service
	Cycles        cycles.Service
	Boxes         boxes.Repository
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.HealthDeps))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/boxes", controllers.BoxList(deps.Boxes, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

			r.Route("/subscriptions/{subscriptionId}", func(r chi.Router) {
				r.Get("/", controllers.SubscriptionDetail(deps.Subscriptions, logg))
				r.Get("/history", controllers.SubscriptionHistory(deps.Subscriptions, logg))
				r.Post("/pause", controllers.SubscriptionPause(deps.Subscriptions, logg))
				r.Post("/resume", controllers.SubscriptionResume(deps.Subscriptions, logg))
				r.Post("/cancel", controllers.SubscriptionCancel(deps.Subscriptions, logg))
				r.Put("/preferences", controllers.SubscriptionUpdatePreferences(deps.Subscriptions, logg))
				r.Put("/address", controllers.SubscriptionUpdateAddress(deps.Subscriptions, logg))
				r.Put("/frequency", controllers.SubscriptionUpdateFrequency(deps.Subscriptions, logg))
			})

			r.Get("/pricing/quote", controllers.PricingQuote(deps.Pricing, logg))
			r.Route("/promos/{code}", func(r chi.Router) {
				r.Get("/", controllers.PromoValidate(deps.Pricing, logg))
				r.Post("/redeem", controllers.PromoRedeem(deps.Pricing, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.RequireRole(enums.ActorRoleAdmin, logg))

		r.Route("/cycles", func(r chi.Router) {
			r.Post("/", controllers.CycleCreate(deps.Cycles, logg))
			r.Get("/", controllers.CycleList(deps.Cycles, logg))
			r.Get("/{cycleId}", controllers.CycleDetail(deps.Cycles, logg))
			r.Post("/{cycleId}/run", controllers.CycleRun(deps.Cycles, logg))
		})
		r.Route("/subscriptions/{subscriptionId}", func(r chi.Router) {
			r.Post("/expire", controllers.SubscriptionExpire(deps.Subscriptions, logg))
		})
	})

	return r
}
