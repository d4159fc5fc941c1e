package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maplecart/inventory-backend/api/controllers"
	"github.com/maplecart/inventory-backend/api/middleware"
	"github.com/maplecart/inventory-backend/internal/allocation"
	"github.com/maplecart/inventory-backend/internal/channelmap"
	"github.com/maplecart/inventory-backend/internal/query"
	"github.com/maplecart/inventory-backend/pkg/config"
	"github.com/maplecart/inventory-backend/pkg/enums"
	"github.com/maplecart/inventory-backend/pkg/logger"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Allocation   allocation.Service
	Query        query.Service
	ChannelMaps  channelmap.Service
	HealthChecks map[string]controllers.Pinger
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
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.HealthChecks))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", controllers.ListInventory(deps.Query, logg))
			r.Get("/{variantID}", controllers.GetVariantInventory(deps.Query, logg))
			r.Get("/{variantID}/ledger", controllers.GetVariantLedger(deps.Allocation, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, enums.ActorRoleAdmin, enums.ActorRoleOps))
				r.Post("/", controllers.InitializeVariant(deps.Allocation, logg))
				r.Delete("/{variantID}", controllers.ArchiveVariant(deps.Allocation, logg))
				r.Post("/{variantID}/adjust", controllers.AdjustStock(deps.Allocation, logg))
				r.Post("/{variantID}/channel-buffer", controllers.SetChannelBuffer(deps.Allocation, logg))
			})
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, enums.ActorRoleService, enums.ActorRoleAdmin))
			r.Post("/", controllers.ReserveStock(deps.Allocation, logg))
			r.Post("/release", controllers.ReleaseReservation(deps.Allocation, logg))
			r.Post("/fulfill", controllers.FulfillOrder(deps.Allocation, logg))
		})

		r.Route("/imports", func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, enums.ActorRoleService, enums.ActorRoleAdmin, enums.ActorRoleOps))
			r.Post("/orders", controllers.ImportExternalOrder(deps.Allocation, logg))
		})

		r.Route("/channel-mappings", func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, enums.ActorRoleAdmin, enums.ActorRoleOps))
			r.Post("/", controllers.CreateChannelMapping(deps.ChannelMaps, logg))
			r.Get("/", controllers.ListChannelMappings(deps.ChannelMaps, logg))
			r.Delete("/{mappingID}", controllers.DeleteChannelMapping(deps.ChannelMaps, logg))
		})
	})

	return r
}
