// internal/wire/wire.go
package wire

import (
	"net/http"

	"parcel-share/internal/adaptor"
	"parcel-share/internal/data/repository"
	"parcel-share/internal/usecase"
	"parcel-share/pkg/middleware"
	"parcel-share/pkg/realtime"
	"parcel-share/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App menyimpan semua dependencies
type App struct {
	Router  *chi.Mux
	Service *usecase.Service
}

// Wiring menginisialisasi semua dependencies
func Wiring(deps usecase.Deps, hub *realtime.Hub) *App {
	// Initialize services dan handlers
	service := usecase.NewService(deps)
	handler := adaptor.NewHandler(service, hub, deps.Log)

	// Setup router
	router := setupRouter(handler, deps.Store.Repo(), deps.Config, deps.Log)

	return &App{
		Router:  router,
		Service: service,
	}
}

// setupRouter konfigurasi Chi router
func setupRouter(
	handler *adaptor.Handler,
	repo *repository.Repository,
	config *utils.Config,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS(config.App.AllowedOrigins))
	r.Use(middleware.Metrics)

	auth := middleware.AuthSession(repo, config.Auth.JWTSecret, logger)

	// Apply routes
	wireAuth(r, handler.Auth, auth)
	wireUser(r, handler.User, handler.Realtime, auth)
	wireTrip(r, handler.Trip, auth)
	wireBooking(r, handler.Booking, auth)
	wireAdmin(r, handler.Booking, handler.Admin, auth, logger)
	wireWebhook(r, handler.Webhook)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
