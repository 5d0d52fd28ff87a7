package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fieldsync/api/controllers"
	"github.com/angelmondragon/fieldsync/api/middleware"
	"github.com/angelmondragon/fieldsync/internal/backend"
	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"github.com/angelmondragon/fieldsync/pkg/redis"
)

// NewRouter mounts the reference backend. redisPinger and loginCounter are
// nil when the backend runs without redis; login throttling is then off.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisPinger controllers.Pinger,
	loginCounter redis.Counter,
	svc backend.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Backend.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{"redis": redisPinger}))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.LoginRateLimit(middleware.LoginRateLimitPolicy{
			Window:   cfg.Backend.LoginWindow,
			IPLimit:  cfg.Backend.LoginIPLimit,
			RepLimit: cfg.Backend.LoginRepLimit,
		}, loginCounter, logg)).Post("/auth/login", controllers.AuthLogin(svc, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Get("/reps/{repId}/clients", controllers.RepClients(svc, logg))
			r.Get("/products", controllers.Products(svc, logg))
			r.Get("/payment-tables", controllers.PaymentTables(svc, logg))
			r.Post("/orders/batch", controllers.OrderBatch(svc, logg))
		})
	})

	return r
}
