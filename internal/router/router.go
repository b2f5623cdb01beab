package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mmazune/chefcloud/internal/collab"
	"github.com/mmazune/chefcloud/internal/config"
	"github.com/mmazune/chefcloud/internal/handler"
	"github.com/mmazune/chefcloud/internal/lifecycle"
	mw "github.com/mmazune/chefcloud/internal/middleware"
	"github.com/mmazune/chefcloud/internal/service"
	"github.com/mmazune/chefcloud/internal/store"
	"github.com/mmazune/chefcloud/internal/ws"
)

// Deps carries the wiring the router needs beyond config: the shared pool and
// queries, the WebSocket hub, monetary policy, and the lifecycle collaborators.
type Deps struct {
	Queries    *store.Queries
	Pool       *pgxpool.Pool
	Hub        *ws.Hub
	Pricing    service.Pricing
	MachineCfg lifecycle.Config
	Kitchen    collab.KitchenNotifier
	Inventory  collab.InventoryHook
	Ledger     collab.LedgerHook
}

// New creates a Chi router with all application routes wired up.
// Applies authentication, venue scoping, and role-based middleware as needed.
func New(cfg *config.Config, deps Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "Idempotency-Replayed"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(deps.Queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/venues/{vid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(deps.Hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Venue-scoped routes
		r.Route("/venues/{vid}", func(r chi.Router) {
			r.Use(mw.RequireVenue)

			// Orders: composition via the service, transitions via the machine.
			newServiceStore := func(db store.DBTX) service.Store {
				return store.New(db)
			}
			orderService := service.NewOrderService(deps.Pool, newServiceStore, deps.Pricing)

			newMachineStore := func(db store.DBTX) lifecycle.Store {
				return store.New(db)
			}
			machine := lifecycle.NewMachine(deps.Pool, deps.Pool, newMachineStore, deps.MachineCfg,
				deps.Kitchen, deps.Inventory, deps.Ledger)

			orderHandler := handler.NewOrderHandler(orderService, machine, deps.Queries, cfg.JWTSecret)
			r.Route("/orders", orderHandler.RegisterRoutes)

			// Audit trail, staff management and reports (managers and owners only)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole("MANAGER", "OWNER"))

				auditHandler := handler.NewAuditHandler(deps.Queries)
				r.Route("/audit", auditHandler.RegisterRoutes)

				staffHandler := handler.NewStaffHandler(deps.Queries)
				r.Route("/staff", staffHandler.RegisterRoutes)

				reportsHandler := handler.NewReportsHandler(deps.Queries)
				r.Route("/reports", reportsHandler.RegisterRoutes)
			})
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
