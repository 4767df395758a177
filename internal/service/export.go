// Package service implements the export job engine: admission, the
// asynchronous fetch pass, retries, cancellation, and expiry sweeping.
package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blog-ueditor/export-api/config"
	"github.com/blog-ueditor/export-api/internal/domain/model"
	apperrors "github.com/blog-ueditor/export-api/internal/errors"
	"github.com/blog-ueditor/export-api/internal/fetch"
	"github.com/blog-ueditor/export-api/internal/htmldoc"
	"github.com/blog-ueditor/export-api/internal/observability/metrics"
	"github.com/blog-ueditor/export-api/internal/observability/statsd"
	"github.com/blog-ueditor/export-api/internal/store"
)

// ExportService owns the export lifecycle. All job state flows through the
// store; the service adds the filesystem side (job dirs, archives) and the
// background fetch passes.
type ExportService struct {
	cfg     config.ExportConfig
	baseURL string

	store   store.Store
	idem    store.IdempotencyIndex
	fetcher fetch.Fetcher
	limiter *fetch.Limiter
	sink    statsd.Sink
	logger  *slog.Logger

	baseCtx  context.Context
	baseStop context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewExportService creates the export engine. baseURL is used for the links
// block in job responses; sink may be nil when metrics are disabled.
func NewExportService(
	cfg config.ExportConfig,
	baseURL string,
	st store.Store,
	idem store.IdempotencyIndex,
	fetcher fetch.Fetcher,
	sink statsd.Sink,
	logger *slog.Logger,
) *ExportService {
	baseCtx, baseStop := context.WithCancel(context.Background())
	return &ExportService{
		cfg:      cfg,
		baseURL:  strings.TrimRight(baseURL, "/"),
		store:    st,
		idem:     idem,
		fetcher:  fetcher,
		limiter:  fetch.NewLimiter(cfg.PerJobConcurrency, cfg.GlobalConcurrency),
		sink:     sink,
		logger:   logger.With("component", "export_service"),
		baseCtx:  baseCtx,
		baseStop: baseStop,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Close cancels all in-flight passes and waits for them to drain.
func (s *ExportService) Close() {
	s.baseStop()
	s.wg.Wait()
}

// Create admits a new export. When idemKey matches a live prior submission
// the original job is returned and created is false.
func (s *ExportService) Create(ctx context.Context, req *model.CreateExportRequest, idemKey string) (*model.ExportDescriptor, bool, error) {
	if int64(len(req.HTML)) > s.cfg.MaxHTMLBytes {
		return nil, false, apperrors.TooLargef("html content exceeds maximum size of %d bytes", s.cfg.MaxHTMLBytes)
	}
	if err := req.Validate(0); err != nil {
		return nil, false, apperrors.ValidationField("html", err.Error())
	}

	if idemKey != "" {
		if desc, ok := s.lookupIdempotent(ctx, idemKey); ok {
			return desc, false, nil
		}
	}

	opts := req.ResolvedOptions()
	now := time.Now().UTC()
	job := &model.ExportJob{
		ID:             model.NewExportID(),
		Status:         model.StatusQueued,
		Mode:           req.Mode,
		Options:        opts,
		IdempotencyKey: idemKey,
		HTML:           req.HTML,
		Resources:      s.buildResources(req.HTML, opts),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.JobTTL),
	}
	job.Links = s.links(job.ID)
	job.RecomputeStats()
	job.Progress = model.Progress{Total: countPending(job.Resources)}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create export job")
	}
	if idemKey != "" {
		if err := s.idem.Put(ctx, idemKey, job.ID, s.cfg.JobTTL); err != nil {
			s.logger.Warn("failed to record idempotency key", "export_id", job.ID, "error", err)
		}
	}

	s.logger.Info("export admitted",
		"export_id", job.ID,
		"images", len(job.Resources),
		"download_images", opts.DownloadImages,
	)
	metrics.EmitExportLifecycle(s.sink, metrics.ExportMetric{
		Transition: "admitted",
		Result:     metrics.ResultSuccess,
	})

	s.startPass(job.ID)

	desc := job.Describe()
	return &desc, true, nil
}

// lookupIdempotent resolves an idempotency key to a live job. Keys pointing
// at deleted or swept jobs are forgotten so the submission is admitted fresh.
func (s *ExportService) lookupIdempotent(ctx context.Context, key string) (*model.ExportDescriptor, bool) {
	jobID, ok, err := s.idem.Lookup(ctx, key)
	if err != nil {
		s.logger.Warn("idempotency lookup failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	job, err := s.store.Get(ctx, jobID)
	if err != nil || job.Expired(time.Now().UTC()) {
		_ = s.idem.Forget(ctx, key)
		return nil, false
	}
	desc := job.Describe()
	return &desc, true
}

// buildResources extracts the referenced images from the document. Inline
// base64 data images sort first so the image cap prefers content already in
// hand over remote fetches.
func (s *ExportService) buildResources(html string, opts model.ExportOptions) []model.Resource {
	urls := htmldoc.ExtractDataImages(html)
	urls = append(urls, htmldoc.ExtractRemoteURLs(html)...)

	resources := make([]model.Resource, 0, len(urls))
	for i, u := range urls {
		status := model.ResourcePending
		if !opts.DownloadImages || i >= s.cfg.MaxImages {
			status = model.ResourceSkipped
		}
		resources = append(resources, model.Resource{URL: u, Status: status})
	}
	return resources
}

// GetExport returns the status descriptor for an export.
func (s *ExportService) GetExport(ctx context.Context, id string) (*model.ExportDescriptor, error) {
	job, err := s.getLive(ctx, id)
	if err != nil {
		return nil, err
	}
	desc := job.Describe()
	return &desc, nil
}

// GetManifest returns the manifest snapshot for an export.
func (s *ExportService) GetManifest(ctx context.Context, id string) (*model.Manifest, error) {
	job, err := s.getLive(ctx, id)
	if err != nil {
		return nil, err
	}
	m := job.BuildManifest()
	return &m, nil
}

// GetDocument returns the processed offline HTML document. Only available
// once the export completed.
func (s *ExportService) GetDocument(ctx context.Context, id string) (string, error) {
	job, err := s.getLive(ctx, id)
	if err != nil {
		return "", err
	}
	switch job.Status {
	case model.StatusQueued, model.StatusProcessing:
		return "", apperrors.Conflict("export is still processing")
	case model.StatusFailed:
		return "", apperrors.Conflict("export did not complete")
	}
	if job.ProcessedHTML == "" {
		return "", apperrors.Internal("processed document is missing")
	}
	return job.ProcessedHTML, nil
}

// GetArchivePath returns the on-disk archive path for a completed export.
func (s *ExportService) GetArchivePath(ctx context.Context, id string) (string, error) {
	job, err := s.getLive(ctx, id)
	if err != nil {
		return "", err
	}
	switch job.Status {
	case model.StatusQueued, model.StatusProcessing:
		return "", apperrors.Conflict("export is still processing")
	case model.StatusFailed:
		return "", apperrors.Conflict("export did not complete")
	}
	if job.ArchivePath == "" {
		return "", apperrors.Internal("archive path is missing")
	}
	if _, err := os.Stat(job.ArchivePath); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "archive file is missing")
	}
	return job.ArchivePath, nil
}

// RetryFailedImages re-fetches every failed resource still under the retry
// ceiling. Only legal once the export reached completed or failed.
func (s *ExportService) RetryFailedImages(ctx context.Context, id string) (*model.ExportDescriptor, error) {
	return s.retry(ctx, id, "")
}

// RetryImage re-fetches one failed resource by its origin URL.
func (s *ExportService) RetryImage(ctx context.Context, id, url string) (*model.ExportDescriptor, error) {
	if strings.TrimSpace(url) == "" {
		return nil, apperrors.ValidationField("url", "url is required and cannot be empty")
	}
	return s.retry(ctx, id, url)
}

// retry resets the selected failed resources to pending and starts a new
// fetch pass. url narrows the selection to one resource; empty selects all.
func (s *ExportService) retry(ctx context.Context, id, url string) (*model.ExportDescriptor, error) {
	now := time.Now().UTC()
	var retried int
	err := s.store.Mutate(ctx, id, func(job *model.ExportJob) error {
		if job.Expired(now) {
			return apperrors.Gonef("export %s has expired", id)
		}
		if job.Status == model.StatusQueued || job.Status == model.StatusProcessing {
			return apperrors.Conflict("export is still processing")
		}

		if url != "" {
			res := job.ResourceByURL(url)
			if res == nil {
				return apperrors.NotFoundf("image %q is not part of this export", url)
			}
			if res.Status != model.ResourceFailed {
				return apperrors.Conflictf("image is %s, only failed images can be retried", res.Status)
			}
			if res.RetryCount >= s.cfg.MaxManualRetries {
				return apperrors.Conflictf("image exceeded the retry limit of %d", s.cfg.MaxManualRetries)
			}
			resetForRetry(res)
			retried = 1
		} else {
			for i := range job.Resources {
				res := &job.Resources[i]
				if res.Status == model.ResourceFailed && res.RetryCount < s.cfg.MaxManualRetries {
					resetForRetry(res)
					retried++
				}
			}
			if retried == 0 {
				return apperrors.Conflict("no failed images eligible for retry")
			}
		}

		job.Status = model.StatusProcessing
		job.Error = nil
		job.Progress = model.Progress{Total: retried}
		job.RecomputeStats()
		return nil
	})
	if err != nil {
		return nil, s.mapStoreErr(err, id)
	}

	s.logger.Info("export retry", "export_id", id, "images", retried)
	metrics.EmitExportLifecycle(s.sink, metrics.ExportMetric{
		Transition: "retry",
		Result:     metrics.ResultSuccess,
	})
	s.startPass(id)

	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreErr(err, id)
	}
	desc := job.Describe()
	return &desc, nil
}

func resetForRetry(res *model.Resource) {
	res.Status = model.ResourcePending
	res.Error = nil
	res.Filename = nil
	res.Size = nil
	res.RetryCount++
}

// Cancel aborts an in-flight export. Late fetch results for the canceled
// pass are discarded.
func (s *ExportService) Cancel(ctx context.Context, id string) error {
	now := time.Now().UTC()
	err := s.store.Mutate(ctx, id, func(job *model.ExportJob) error {
		if job.Expired(now) {
			return apperrors.Gonef("export %s has expired", id)
		}
		if job.Status != model.StatusQueued && job.Status != model.StatusProcessing {
			return apperrors.Conflictf("export is %s, only a processing export can be canceled", job.Status)
		}
		job.Status = model.StatusFailed
		msg := "export canceled"
		job.Error = &msg
		return nil
	})
	if err != nil {
		return s.mapStoreErr(err, id)
	}

	s.cancelPass(id)
	s.logger.Info("export canceled", "export_id", id)
	metrics.EmitExportLifecycle(s.sink, metrics.ExportMetric{
		Transition: "canceled",
		Result:     metrics.ResultSuccess,
	})
	return nil
}

// Delete removes an export, its archive and workspace. Deleting an absent
// export is not an error.
func (s *ExportService) Delete(ctx context.Context, id string) error {
	s.cancelPass(id)

	job, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load export job")
	}

	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to delete export job")
	}
	if job.IdempotencyKey != "" {
		if err := s.idem.Forget(ctx, job.IdempotencyKey); err != nil {
			s.logger.Warn("failed to forget idempotency key", "export_id", id, "error", err)
		}
	}
	s.removeArtifacts(id)

	s.logger.Info("export deleted", "export_id", id)
	return nil
}

// ProxyFetch downloads one image on behalf of the editor frontend, reusing
// the fetcher's headers, size cap and classification.
func (s *ExportService) ProxyFetch(ctx context.Context, rawURL string) (*fetch.Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, apperrors.ValidationField("url", "url is required and cannot be empty")
	}
	return s.fetcher.Fetch(ctx, rawURL)
}

// SweepExpired removes every job past its expiry along with its artifacts
// and idempotency key. Returns the number of jobs removed.
func (s *ExportService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.store.ListExpired(ctx, now)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list expired jobs")
	}

	removed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		s.cancelPass(id)

		job, err := s.store.Get(ctx, id)
		if err != nil {
			// Already gone, nothing left to clean.
			continue
		}
		if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to delete expired job", "export_id", id, "error", err)
			continue
		}
		if job.IdempotencyKey != "" {
			_ = s.idem.Forget(ctx, job.IdempotencyKey)
		}
		s.removeArtifacts(id)
		removed++
	}
	return removed, nil
}

// getLive loads a job and pre-empts expiry: a job past its TTL reads as gone
// even before the sweeper collects it.
func (s *ExportService) getLive(ctx context.Context, id string) (*model.ExportJob, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreErr(err, id)
	}
	if job.Expired(time.Now().UTC()) {
		return nil, apperrors.Gonef("export %s has expired", id)
	}
	return job, nil
}

func (s *ExportService) mapStoreErr(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFoundf("export %s not found", id)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInternal, "export store operation failed")
}

// cancelPass cancels the job's active fetch pass, if any.
func (s *ExportService) cancelPass(id string) {
	s.mu.Lock()
	cancel := s.cancels[id]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *ExportService) jobDir(id string) string {
	return filepath.Join(s.cfg.DataDir, id)
}

func (s *ExportService) archivePath(id string) string {
	return filepath.Join(s.cfg.DataDir, id+".zip")
}

// removeArtifacts deletes the job workspace and archive, best effort.
func (s *ExportService) removeArtifacts(id string) {
	if err := os.RemoveAll(s.jobDir(id)); err != nil {
		s.logger.Warn("failed to remove job dir", "export_id", id, "error", err)
	}
	if err := os.Remove(s.archivePath(id)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove archive", "export_id", id, "error", err)
	}
}

func (s *ExportService) links(id string) model.Links {
	base := s.baseURL + "/api/v1/exports/" + id
	return model.Links{
		Self:     base,
		Archive:  base + "/archive",
		Manifest: base + "/manifest",
	}
}

func countPending(resources []model.Resource) int {
	n := 0
	for i := range resources {
		if resources[i].Status == model.ResourcePending {
			n++
		}
	}
	return n
}
