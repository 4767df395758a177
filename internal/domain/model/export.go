// Package model defines the core data types for the export job engine.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CleanMode tags an export with the sanitization mode the document went
// through before submission. The engine treats it as opaque.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type CleanMode string

// ExportStatus represents the current status of an export job.
type ExportStatus string

// ResourceStatus represents the download state of a single referenced resource.
type ResourceStatus string

// FailedImagePolicy controls how failed resources are rewritten in the
// exported document.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type FailedImagePolicy string

const (
	// CleanModeSafe is the conservative sanitization mode.
	CleanModeSafe CleanMode = "safe"
	// CleanModeAggressive is the strict sanitization mode.
	CleanModeAggressive CleanMode = "aggressive"

	// StatusQueued indicates an export was admitted but processing has not started.
	StatusQueued ExportStatus = "queued"
	// StatusProcessing indicates resource fetches or packaging are in flight.
	StatusProcessing ExportStatus = "processing"
	// StatusCompleted indicates the archive is built and downloadable.
	StatusCompleted ExportStatus = "completed"
	// StatusFailed indicates packaging failed or the job was cancelled.
	StatusFailed ExportStatus = "failed"
	// StatusExpired indicates the job passed its expiry timestamp.
	StatusExpired ExportStatus = "expired"

	// ResourcePending indicates a resource has not been attempted yet.
	ResourcePending ResourceStatus = "pending"
	// ResourceDownloading indicates a fetch is in flight.
	ResourceDownloading ResourceStatus = "downloading"
	// ResourceDownloaded indicates the resource was fetched and persisted.
	ResourceDownloaded ResourceStatus = "downloaded"
	// ResourceFailed indicates the fetch failed; the error field says why.
	ResourceFailed ResourceStatus = "failed"
	// ResourceSkipped indicates the resource was deliberately not attempted
	// (download_images disabled or the per-export image cap was reached).
	ResourceSkipped ResourceStatus = "skipped"

	// FailedImagesKeepRemote leaves the original remote URL in the document.
	FailedImagesKeepRemote FailedImagePolicy = "keep_remote"
	// FailedImagesRemove strips the failed reference from the document.
	FailedImagesRemove FailedImagePolicy = "remove"
)

// Valid returns true if the CleanMode is valid.
func (m CleanMode) Valid() bool {
	return m == CleanModeSafe || m == CleanModeAggressive
}

// UnmarshalText implements encoding.TextUnmarshaler for CleanMode.
func (m *CleanMode) UnmarshalText(text []byte) error {
	v := CleanMode(strings.ToLower(strings.TrimSpace(string(text))))
	if v == "" {
		*m = CleanModeSafe
		return nil
	}
	if !v.Valid() {
		return fmt.Errorf("invalid clean mode: %q", v)
	}
	*m = v
	return nil
}

// Valid returns true if the FailedImagePolicy is valid.
func (p FailedImagePolicy) Valid() bool {
	return p == FailedImagesKeepRemote || p == FailedImagesRemove
}

// UnmarshalText implements encoding.TextUnmarshaler for FailedImagePolicy.
func (p *FailedImagePolicy) UnmarshalText(text []byte) error {
	v := FailedImagePolicy(strings.ToLower(strings.TrimSpace(string(text))))
	if v == "" {
		*p = FailedImagesKeepRemote
		return nil
	}
	if !v.Valid() {
		return fmt.Errorf("invalid failed image policy: %q", v)
	}
	*p = v
	return nil
}

// Terminal returns true if no further automatic transition occurs from this
// job status absent an explicit retry or delete.
func (s ExportStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// Terminal returns true if the resource reached a final state for the current
// fetch pass.
func (s ResourceStatus) Terminal() bool {
	return s == ResourceDownloaded || s == ResourceFailed || s == ResourceSkipped
}

// ExportOptions controls how an export processes its resources.
type ExportOptions struct {
	// DownloadImages toggles the fetch fan-out entirely.
	DownloadImages bool `json:"download_images"`
	// FailedImages is the rewrite policy applied to failed resources.
	FailedImages FailedImagePolicy `json:"rewrite_failed_images"`
}

// DefaultExportOptions returns the options used when a request omits them.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		DownloadImages: true,
		FailedImages:   FailedImagesKeepRemote,
	}
}

// Resource tracks one referenced URL through download and possible retry.
// The URL is unique within a job; Filename is set iff Status is downloaded.
type Resource struct {
	URL        string  `json:"url"`
	Filename   *string `json:"filename,omitempty"`
	Status     ResourceStatus `json:"status"`
	Size       *int64  `json:"size,omitempty"`
	Error      *string `json:"error,omitempty"`
	RetryCount int     `json:"retry_count"`
}

// Progress reports how many resources of the current pass reached a terminal state.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Stats aggregates resource outcomes for a job.
type Stats struct {
	ImagesFound      int   `json:"images_found"`
	ImagesDownloaded int   `json:"images_downloaded"`
	ImagesFailed     int   `json:"images_failed"`
	TotalSize        int64 `json:"total_size"`
}

// Links holds the API locations related to an export.
type Links struct {
	Self     string `json:"self"`
	Archive  string `json:"archive"`
	Manifest string `json:"manifest"`
}

// ExportJob is the full lifecycle record of one export request.
type ExportJob struct {
	ID             string        `json:"id"`
	Status         ExportStatus  `json:"status"`
	Mode           CleanMode     `json:"mode"`
	Options        ExportOptions `json:"options"`
	IdempotencyKey string        `json:"-"`
	HTML           string        `json:"-"`
	ProcessedHTML  string        `json:"-"`
	Resources      []Resource    `json:"images"`
	Progress       Progress      `json:"progress"`
	Stats          Stats         `json:"stats"`
	Links          Links         `json:"links"`
	CreatedAt      time.Time     `json:"created_at"`
	ExpiresAt      time.Time     `json:"expires_at"`
	Error          *string       `json:"error,omitempty"`
	// ArchivePath is set once the archive has been built on disk.
	ArchivePath string `json:"-"`
}

// Expired reports whether the job is past its expiry timestamp.
func (j *ExportJob) Expired(now time.Time) bool {
	return now.After(j.ExpiresAt)
}

// ResourceByURL returns the resource with the given origin URL, or nil.
func (j *ExportJob) ResourceByURL(url string) *Resource {
	for i := range j.Resources {
		if j.Resources[i].URL == url {
			return &j.Resources[i]
		}
	}
	return nil
}

// FailedResourceURLs returns the origin URLs of all currently failed resources.
func (j *ExportJob) FailedResourceURLs() []string {
	var urls []string
	for i := range j.Resources {
		if j.Resources[i].Status == ResourceFailed {
			urls = append(urls, j.Resources[i].URL)
		}
	}
	return urls
}

// RecomputeStats rebuilds aggregate stats from the resource list.
func (j *ExportJob) RecomputeStats() {
	stats := Stats{ImagesFound: len(j.Resources)}
	for i := range j.Resources {
		switch j.Resources[i].Status {
		case ResourceDownloaded:
			stats.ImagesDownloaded++
			if j.Resources[i].Size != nil {
				stats.TotalSize += *j.Resources[i].Size
			}
		case ResourceFailed:
			stats.ImagesFailed++
		}
	}
	j.Stats = stats
}

// Clone returns a deep copy safe to read without holding any store lock.
func (j *ExportJob) Clone() *ExportJob {
	cp := *j
	cp.Resources = make([]Resource, len(j.Resources))
	for i := range j.Resources {
		cp.Resources[i] = *cloneResource(&j.Resources[i])
	}
	cp.Error = cloneStringPtr(j.Error)
	return &cp
}

func cloneResource(r *Resource) *Resource {
	cp := *r
	cp.Filename = cloneStringPtr(r.Filename)
	cp.Error = cloneStringPtr(r.Error)
	if r.Size != nil {
		v := *r.Size
		cp.Size = &v
	}
	return &cp
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// NewExportID generates a unique export identifier.
// The short hex suffix keeps IDs copy-paste friendly in URLs and filenames.
func NewExportID() string {
	return "exp_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateExportRequest is the admission payload for a new export.
type CreateExportRequest struct {
	HTML    string         `json:"html"`
	Mode    CleanMode      `json:"mode"`
	Options *ExportOptions `json:"options,omitempty"`
}

// Validate validates the CreateExportRequest against the given HTML byte limit.
func (r *CreateExportRequest) Validate(maxHTMLBytes int) error {
	if strings.TrimSpace(r.HTML) == "" {
		return errors.New("html is required and cannot be empty")
	}
	if maxHTMLBytes > 0 && len(r.HTML) > maxHTMLBytes {
		return fmt.Errorf("html content exceeds maximum size of %d bytes", maxHTMLBytes)
	}
	if r.Mode == "" {
		r.Mode = CleanModeSafe
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("invalid clean mode: %q", r.Mode)
	}
	if r.Options != nil && r.Options.FailedImages != "" && !r.Options.FailedImages.Valid() {
		return fmt.Errorf("invalid failed image policy: %q", r.Options.FailedImages)
	}
	return nil
}

// ResolvedOptions returns the request options with defaults applied.
func (r *CreateExportRequest) ResolvedOptions() ExportOptions {
	opts := DefaultExportOptions()
	if r.Options != nil {
		opts.DownloadImages = r.Options.DownloadImages
		if r.Options.FailedImages != "" {
			opts.FailedImages = r.Options.FailedImages
		}
	}
	return opts
}

// RetryImageRequest asks for a single failed resource to be retried.
type RetryImageRequest struct {
	URL string `json:"url"`
}

// Validate validates the RetryImageRequest fields.
func (r *RetryImageRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return errors.New("url is required and cannot be empty")
	}
	return nil
}

// ExportDescriptor is the response shape returned on admission and status reads.
type ExportDescriptor struct {
	ID        string       `json:"id"`
	Status    ExportStatus `json:"status"`
	Progress  *Progress    `json:"progress,omitempty"`
	Stats     *Stats       `json:"stats,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Links     Links        `json:"links"`
	Error     *string      `json:"error,omitempty"`
}

// Describe projects the job into its API descriptor. Progress is only
// reported while processing; stats once processing started.
func (j *ExportJob) Describe() ExportDescriptor {
	d := ExportDescriptor{
		ID:        j.ID,
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
		ExpiresAt: j.ExpiresAt,
		Links:     j.Links,
	}
	if j.Status == StatusProcessing {
		p := j.Progress
		d.Progress = &p
	}
	if j.Status == StatusProcessing || j.Status == StatusCompleted {
		s := j.Stats
		d.Stats = &s
	}
	if j.Status == StatusFailed {
		d.Error = cloneStringPtr(j.Error)
	}
	return d
}

// Manifest is the serializable, regenerable summary of a job's resources.
type Manifest struct {
	ExportID  string     `json:"export_id"`
	Mode      CleanMode  `json:"mode"`
	CreatedAt time.Time  `json:"created_at"`
	Images    []Resource `json:"images"`
	Stats     Stats      `json:"stats"`
}

// BuildManifest derives the manifest snapshot from the job's current state.
func (j *ExportJob) BuildManifest() Manifest {
	images := make([]Resource, len(j.Resources))
	for i := range j.Resources {
		images[i] = *cloneResource(&j.Resources[i])
	}
	return Manifest{
		ExportID:  j.ID,
		Mode:      j.Mode,
		CreatedAt: j.CreatedAt,
		Images:    images,
		Stats:     j.Stats,
	}
}
