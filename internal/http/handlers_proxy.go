package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/blog-ueditor/export-api/internal/fetch"
	"github.com/blog-ueditor/export-api/internal/service"
)

// ProxyHandlers serves images through the backend for editor previews of
// hosts that block cross-origin or hotlinked requests.
type ProxyHandlers struct {
	Svc    *service.ExportService
	Logger *slog.Logger
}

// ProxyImage fetches the image named by the url query parameter and relays
// body and content type.
func (h *ProxyHandlers) ProxyImage(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")

	result, err := h.Svc.ProxyFetch(r.Context(), rawURL)
	if err != nil {
		var fetchErr *fetch.Error
		if errors.As(err, &fetchErr) {
			WriteProblem(w, problemForFetchError(fetchErr))
			return
		}
		RenderError(w, h.Logger, err)
		return
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}

func problemForFetchError(err *fetch.Error) Problem {
	switch err.Kind {
	case fetch.KindDisallowedScheme:
		return Problem{Status: http.StatusUnprocessableEntity, Detail: err.Error(), Field: "url"}
	case fetch.KindTimeout:
		return Problem{Status: http.StatusGatewayTimeout, Detail: "upstream image fetch timed out"}
	case fetch.KindTooLarge:
		return Problem{Status: http.StatusRequestEntityTooLarge, Detail: err.Error()}
	default:
		return Problem{Status: http.StatusBadGateway, Detail: "upstream image fetch failed: " + err.Error()}
	}
}
