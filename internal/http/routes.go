package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/blog-ueditor/export-api/internal/service"
)

// RouterServices holds all the services and settings needed by the router.
type RouterServices struct {
	Exports *service.ExportService

	// MaxBodyBytes caps the create-export request body. Slightly above the
	// HTML limit so the JSON envelope fits.
	MaxBodyBytes int64

	CORSOrigin string
	Version    string
	Logger     *slog.Logger
}

// NewRouter creates and configures the export API router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	exportHandlers := &ExportHandlers{
		Svc:          services.Exports,
		Logger:       logger,
		MaxBodyBytes: services.MaxBodyBytes,
	}
	proxyHandlers := &ProxyHandlers{Svc: services.Exports, Logger: logger}
	healthHandlers := &HealthHandlers{Version: services.Version, StartedAt: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/exports", exportHandlers.CreateExport)
	mux.HandleFunc("GET /api/v1/exports/{id}", exportHandlers.GetExport)
	mux.HandleFunc("GET /api/v1/exports/{id}/archive", exportHandlers.DownloadArchive)
	mux.HandleFunc("GET /api/v1/exports/{id}/manifest", exportHandlers.GetManifest)
	mux.HandleFunc("GET /api/v1/exports/{id}/document", exportHandlers.GetDocument)
	mux.HandleFunc("POST /api/v1/exports/{id}/retry-images", exportHandlers.RetryImages)
	mux.HandleFunc("POST /api/v1/exports/{id}/retry-image", exportHandlers.RetryImage)
	mux.HandleFunc("POST /api/v1/exports/{id}/cancel", exportHandlers.CancelExport)
	mux.HandleFunc("DELETE /api/v1/exports/{id}", exportHandlers.DeleteExport)

	mux.HandleFunc("GET /api/v1/proxy-image", proxyHandlers.ProxyImage)

	mux.HandleFunc("GET /api/v1/health", healthHandlers.Health)
	mux.HandleFunc("GET /healthz", healthzHandler)
	mux.HandleFunc("HEAD /healthz", healthzHandler)

	var handler http.Handler = mux
	handler = CORS(services.CORSOrigin)(handler)
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
