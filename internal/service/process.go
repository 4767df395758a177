package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blog-ueditor/export-api/internal/archive"
	"github.com/blog-ueditor/export-api/internal/domain/model"
	"github.com/blog-ueditor/export-api/internal/fetch"
	"github.com/blog-ueditor/export-api/internal/htmldoc"
	"github.com/blog-ueditor/export-api/internal/observability/metrics"
)

// errPassStale signals that the job left the processing state while a pass
// was running, typically through cancel or delete. The pass result is
// discarded without touching the record.
var errPassStale = errors.New("pass superseded")

// startPass launches the asynchronous fetch pass for a job. The pass context
// descends from the service context so shutdown drains all passes.
func (s *ExportService) startPass(id string) {
	ctx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
		}()
		s.runPass(ctx, id)
	}()
}

// runPass executes one fetch pass: mark processing, fan out over pending
// resources through the limiter, then finalize the document and archive.
func (s *ExportService) runPass(ctx context.Context, id string) {
	start := time.Now()

	var snapshot *model.ExportJob
	err := s.store.Mutate(ctx, id, func(job *model.ExportJob) error {
		if job.Status != model.StatusQueued && job.Status != model.StatusProcessing {
			return errPassStale
		}
		job.Status = model.StatusProcessing
		snapshot = job.Clone()
		return nil
	})
	if err != nil {
		return
	}

	jobDir := s.jobDir(id)
	imagesDir := filepath.Join(jobDir, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		s.failJob(ctx, id, fmt.Sprintf("failed to create workspace: %v", err))
		return
	}

	// A retry pass starts from a cleaned workspace; restore the images
	// preserved in the previous archive so the rebuild keeps them.
	if _, statErr := os.Stat(s.archivePath(id)); statErr == nil {
		if err := archive.ExtractImages(s.archivePath(id), jobDir); err != nil {
			s.failJob(ctx, id, fmt.Sprintf("failed to restore preserved images: %v", err))
			return
		}
	}

	width := filenameWidth(len(snapshot.Resources))
	gate := s.limiter.ForJob()
	g, gctx := errgroup.WithContext(ctx)

	for i := range snapshot.Resources {
		if snapshot.Resources[i].Status != model.ResourcePending {
			continue
		}
		idx := i
		url := snapshot.Resources[i].URL

		g.Go(func() error {
			if !s.markDownloading(gctx, id, url) {
				return nil
			}

			if htmldoc.IsDataImage(url) {
				s.processDataImage(gctx, id, url, idx, width, imagesDir)
				return nil
			}

			if err := gate.Acquire(gctx); err != nil {
				return nil
			}
			defer gate.Release()
			s.processRemoteImage(gctx, id, url, idx, width, imagesDir)
			return nil
		})
	}
	_ = g.Wait()

	s.finalize(ctx, id, jobDir, start)
}

// markDownloading transitions one resource to downloading. Returns false if
// the pass has been superseded and the fetch should be skipped.
func (s *ExportService) markDownloading(ctx context.Context, id, url string) bool {
	err := s.store.Mutate(ctx, id, func(job *model.ExportJob) error {
		if job.Status != model.StatusProcessing {
			return errPassStale
		}
		res := job.ResourceByURL(url)
		if res == nil || res.Status != model.ResourcePending {
			return errPassStale
		}
		res.Status = model.ResourceDownloading
		return nil
	})
	return err == nil
}

// processDataImage decodes an inline base64 image and persists it. No
// network and no limiter slot involved.
func (s *ExportService) processDataImage(ctx context.Context, id, url string, idx, width int, imagesDir string) {
	body, mediaType, err := htmldoc.DecodeDataImage(url)
	if err != nil {
		s.recordFailure(ctx, id, url, "invalid base64 image data")
		metrics.EmitFetchOutcome(s.sink, metrics.ResultError, "data_decode", 1)
		return
	}

	ext := htmldoc.FileExtension("", mediaType)
	name := sequenceName(idx, width, ext)
	if err := os.WriteFile(filepath.Join(imagesDir, name), body, 0o644); err != nil {
		s.recordFailure(ctx, id, url, "failed to persist image")
		return
	}

	s.recordSuccess(ctx, id, url, name, int64(len(body)))
	metrics.EmitFetchOutcome(s.sink, metrics.ResultSuccess, "data_image", 1)
}

// processRemoteImage downloads one remote resource and records the outcome.
func (s *ExportService) processRemoteImage(ctx context.Context, id, url string, idx, width int, imagesDir string) {
	result, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			// Canceled pass, discard the outcome.
			return
		}
		msg := err.Error()
		attempts := 1
		var fetchErr *fetch.Error
		if errors.As(err, &fetchErr) {
			attempts = fetchErr.Attempts
			metrics.EmitFetchOutcome(s.sink, metrics.ResultError, string(fetchErr.Kind), attempts)
		}
		s.logger.Debug("image download failed", "export_id", id, "url", url, "attempts", attempts, "error", msg)
		s.recordFailure(ctx, id, url, msg)
		return
	}

	ext := htmldoc.FileExtension(url, result.ContentType)
	name := sequenceName(idx, width, ext)
	if err := os.WriteFile(filepath.Join(imagesDir, name), result.Body, 0o644); err != nil {
		s.recordFailure(ctx, id, url, "failed to persist image")
		return
	}

	s.recordSuccess(ctx, id, url, name, int64(len(result.Body)))
	metrics.EmitFetchOutcome(s.sink, metrics.ResultSuccess, "", result.Attempts)
}

// recordSuccess marks a resource downloaded. Results arriving after the pass
// was superseded are dropped.
func (s *ExportService) recordSuccess(ctx context.Context, id, url, filename string, size int64) {
	_ = s.store.Mutate(ctx, id, func(job *model.ExportJob) error {
		if job.Status != model.StatusProcessing {
			return errPassStale
		}
		res := job.ResourceByURL(url)
		if res == nil || res.Status != model.ResourceDownloading {
			return errPassStale
		}
		res.Status = model.ResourceDownloaded
		res.Filename = &filename
		res.Size = &size
		res.Error = nil
		job.Progress.Done++
		job.RecomputeStats()
		return nil
	})
}

// recordFailure marks a resource failed with a client-facing reason.
func (s *ExportService) recordFailure(ctx context.Context, id, url, reason string) {
	_ = s.store.Mutate(ctx, id, func(job *model.ExportJob) error {
		if job.Status != model.StatusProcessing {
			return errPassStale
		}
		res := job.ResourceByURL(url)
		if res == nil || res.Status != model.ResourceDownloading {
			return errPassStale
		}
		res.Status = model.ResourceFailed
		res.Error = &reason
		job.Progress.Done++
		job.RecomputeStats()
		return nil
	})
}

// finalize rewrites the document, writes the manifest, and packages the
// archive. A pass that lost its processing status cleans up and leaves the
// record alone.
func (s *ExportService) finalize(ctx context.Context, id, jobDir string, start time.Time) {
	job, err := s.store.Get(ctx, id)
	if err != nil || job.Status != model.StatusProcessing {
		_ = os.RemoveAll(jobDir)
		return
	}

	mapping := make(map[string]string)
	var images []string
	for i := range job.Resources {
		res := &job.Resources[i]
		switch res.Status {
		case model.ResourceDownloaded:
			if res.Filename != nil {
				mapping[res.URL] = "images/" + *res.Filename
				images = append(images, *res.Filename)
			}
		case model.ResourceFailed:
			if job.Options.FailedImages == model.FailedImagesRemove {
				mapping[res.URL] = ""
			}
		}
	}

	job.RecomputeStats()
	doc := htmldoc.WrapDocument(htmldoc.RewriteURLs(job.HTML, mapping))

	buildErr := func() error {
		if err := os.WriteFile(filepath.Join(jobDir, "index.html"), []byte(doc), 0o644); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		manifest, err := json.MarshalIndent(job.BuildManifest(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		if err := os.WriteFile(filepath.Join(jobDir, "manifest.json"), manifest, 0o644); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		return archive.Build(jobDir, s.archivePath(id), images)
	}()
	if buildErr != nil {
		s.logger.Error("export packaging failed", "export_id", id, "error", buildErr)
		s.failJob(ctx, id, "failed to package export archive")
		_ = os.RemoveAll(jobDir)
		metrics.EmitExportLifecycle(s.sink, metrics.ExportMetric{
			Transition: "completed",
			Result:     metrics.ResultError,
			Duration:   time.Since(start),
			Err:        buildErr,
		})
		return
	}

	archivePath := s.archivePath(id)
	err = s.store.Mutate(ctx, id, func(j *model.ExportJob) error {
		if j.Status != model.StatusProcessing {
			return errPassStale
		}
		j.Status = model.StatusCompleted
		j.ProcessedHTML = doc
		j.ArchivePath = archivePath
		j.Progress.Done = j.Progress.Total
		j.RecomputeStats()
		return nil
	})
	_ = os.RemoveAll(jobDir)
	if err != nil {
		// Canceled or deleted during packaging; drop the fresh archive.
		_ = os.Remove(archivePath)
		return
	}

	s.logger.Info("export completed",
		"export_id", id,
		"downloaded", job.Stats.ImagesDownloaded,
		"failed", job.Stats.ImagesFailed,
		"duration", time.Since(start),
	)
	metrics.EmitExportLifecycle(s.sink, metrics.ExportMetric{
		Transition: "completed",
		Result:     metrics.ResultSuccess,
		Duration:   time.Since(start),
	})
}

// failJob moves a processing job to failed with a client-facing reason.
func (s *ExportService) failJob(ctx context.Context, id, reason string) {
	_ = s.store.Mutate(ctx, id, func(job *model.ExportJob) error {
		if job.Status != model.StatusProcessing {
			return errPassStale
		}
		job.Status = model.StatusFailed
		job.Error = &reason
		return nil
	})
}

// sequenceName builds the zero-padded positional filename for a resource.
func sequenceName(idx, width int, ext string) string {
	return fmt.Sprintf("%0*d%s", width, idx+1, ext)
}

// filenameWidth pads to at least two digits so small exports still sort.
func filenameWidth(total int) int {
	width := len(strconv.Itoa(total))
	if width < 2 {
		width = 2
	}
	return width
}
