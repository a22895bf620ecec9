package origin

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"watchalong/internal/platform/logger"
	"watchalong/internal/platform/metrics"
)

// RouterConfig holds the ambient dependencies of the origin router.
type RouterConfig struct {
	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// NewRouter mounts delivery, the relay link and the operational endpoints.
func NewRouter(s *Server, cfg RouterConfig) http.Handler {
	router := chi.NewRouter()
	router.Use(logger.RequestLogger(cfg.Log))
	router.Use(metrics.RequestMiddleware(cfg.Metrics))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Range"},
		ExposedHeaders: []string{"Accept-Ranges", "Content-Length", "Content-Range"},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		router.Get("/metrics", cfg.Metrics.Handler(nil).ServeHTTP)
	}
	router.Get("/link", s.links.ServeHTTP)

	for _, cat := range []Category{CategoryMedia, CategoryDownload, CategorySubtitle} {
		h := s.delivery.Category(cat)
		router.Get("/"+string(cat)+"/*", h)
		router.Head("/"+string(cat)+"/*", h)
	}
	router.Get("/image", s.delivery.Image)
	router.Head("/image", s.delivery.Image)

	return router
}
