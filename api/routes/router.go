package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/offers-backend/api/controllers"
	"github.com/angelmondragon/offers-backend/api/middleware"
	"github.com/angelmondragon/offers-backend/internal/publish"
	"github.com/angelmondragon/offers-backend/pkg/config"
	"github.com/angelmondragon/offers-backend/pkg/logger"
)

// NewRouter mounts the probes, the metrics scrape and the two publish
// endpoints.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	gatherer prometheus.Gatherer,
	readiness map[string]controllers.Pinger,
	publishService publish.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}

	// Publishing is a GET with side effects; keep proxies from caching it.
	r.Group(func(r chi.Router) {
		r.Use(chimw.NoCache)
		r.Get("/offers/{offerId}/publish", controllers.PublishOffer(publishService, logg))
		r.Get("/campaign/{campaignId}/publish", controllers.PublishCampaign(publishService, logg))
	})

	return r
}
