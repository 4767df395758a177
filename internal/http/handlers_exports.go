// Package httpx provides the HTTP surface of the export API.
package httpx

import (
	"log/slog"
	"net/http"

	"github.com/blog-ueditor/export-api/internal/domain/model"
	"github.com/blog-ueditor/export-api/internal/service"
)

// ExportHandlers provides HTTP handlers for export lifecycle operations.
type ExportHandlers struct {
	Svc          *service.ExportService
	Logger       *slog.Logger
	MaxBodyBytes int64
}

// CreateExport admits a new export job. Replayed submissions carrying a
// known Idempotency-Key return the original job instead of a new one.
func (h *ExportHandlers) CreateExport(w http.ResponseWriter, r *http.Request) {
	if h.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	}

	var req model.CreateExportRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	desc, created, err := h.Svc.Create(r.Context(), &req, idemKey)
	if err != nil {
		RenderError(w, h.Logger, err)
		return
	}

	w.Header().Set("Location", desc.Links.Self)
	if created {
		WriteJSON(w, http.StatusAccepted, desc)
		return
	}
	WriteJSON(w, http.StatusOK, desc)
}

// GetExport returns the status descriptor for an export.
func (h *ExportHandlers) GetExport(w http.ResponseWriter, r *http.Request) {
	desc, err := h.Svc.GetExport(r.Context(), r.PathValue("id"))
	if err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, desc)
}

// GetManifest returns the manifest snapshot for an export.
func (h *ExportHandlers) GetManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.Svc.GetManifest(r.Context(), r.PathValue("id"))
	if err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, manifest)
}

// GetDocument returns the processed offline HTML document.
func (h *ExportHandlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Svc.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// DownloadArchive streams the export zip.
func (h *ExportHandlers) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path, err := h.Svc.GetArchivePath(r.Context(), id)
	if err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.zip"`)
	http.ServeFile(w, r, path)
}

// RetryImages re-fetches all failed images of a finished export.
func (h *ExportHandlers) RetryImages(w http.ResponseWriter, r *http.Request) {
	desc, err := h.Svc.RetryFailedImages(r.Context(), r.PathValue("id"))
	if err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, desc)
}

// RetryImage re-fetches one failed image identified by its origin URL.
func (h *ExportHandlers) RetryImage(w http.ResponseWriter, r *http.Request) {
	var req model.RetryImageRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	desc, err := h.Svc.RetryImage(r.Context(), r.PathValue("id"), req.URL)
	if err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, desc)
}

// CancelExport aborts an in-flight export.
func (h *ExportHandlers) CancelExport(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Cancel(r.Context(), r.PathValue("id")); err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteExport removes an export and its artifacts. Idempotent.
func (h *ExportHandlers) DeleteExport(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
