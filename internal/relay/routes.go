package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"

	"watchalong/internal/platform/logger"
	"watchalong/internal/platform/metrics"
)

// RouterConfig holds what the relay router needs beyond the hubs.
type RouterConfig struct {
	Log            *slog.Logger
	Metrics        *metrics.Metrics
	LoginRateLimit int
}

// NewRouter mounts the viewer websocket, the listing websocket and the
// operational endpoints.
func NewRouter(r *Relay, hub *Hub, listing *Listing, cfg RouterConfig) http.Handler {
	if cfg.LoginRateLimit <= 0 {
		cfg.LoginRateLimit = 60
	}

	router := chi.NewRouter()
	router.Use(logger.RequestLogger(cfg.Log))
	router.Use(metrics.RequestMiddleware(cfg.Metrics))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		router.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			cfg.Metrics.Handler(func() {
				cfg.Metrics.SetOrigins(r.registry.Count())
				cfg.Metrics.SetViewers(r.registry.ViewerCount())
			}).ServeHTTP(w, req)
		})
	}
	router.Get("/servers", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(r.registry.List()); err != nil {
			cfg.Log.Error("encode server list", slog.Any("error", err))
		}
	})
	router.Get("/list", listing.ServeHTTP)
	router.With(httprate.LimitByIP(cfg.LoginRateLimit, time.Minute)).Get("/ws", hub.ServeHTTP)

	return router
}
