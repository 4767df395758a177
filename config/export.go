package config

import (
	"strings"
	"time"
)

// ExportConfig contains export engine limits and fetch configuration.
type ExportConfig struct {
	// DataDir is the root directory for job workspaces and archives.
	DataDir string `env:"EXPORT_DATA_DIR" envDefault:"./data/exports"`

	// JobTTL is how long a job and its artifacts live after creation.
	JobTTL time.Duration `env:"EXPORT_JOB_TTL" envDefault:"1h"`

	// MaxHTMLBytes is the maximum accepted HTML payload size.
	MaxHTMLBytes int64 `env:"EXPORT_MAX_HTML_BYTES" envDefault:"2097152"` // 2 MiB

	// MaxImages is the maximum number of images processed per job.
	MaxImages int `env:"EXPORT_MAX_IMAGES" envDefault:"200"`

	// MaxImageBytes is the per-resource download size cap.
	MaxImageBytes int64 `env:"EXPORT_MAX_IMAGE_BYTES" envDefault:"26214400"` // 25 MiB

	// FetchTimeout is the per-attempt download deadline.
	FetchTimeout time.Duration `env:"EXPORT_FETCH_TIMEOUT" envDefault:"30s"`

	// FetchRetries is the number of automatic in-fetch retries for
	// transient failures.
	FetchRetries int `env:"EXPORT_FETCH_RETRIES" envDefault:"2"`

	// FetchRetryDelay is the base delay between in-fetch retries; the wait
	// grows linearly per attempt.
	FetchRetryDelay time.Duration `env:"EXPORT_FETCH_RETRY_DELAY" envDefault:"600ms"`

	// PerJobConcurrency caps simultaneous downloads within one job.
	PerJobConcurrency int `env:"EXPORT_PER_JOB_CONCURRENCY" envDefault:"8"`

	// GlobalConcurrency caps simultaneous downloads across all jobs.
	GlobalConcurrency int `env:"EXPORT_GLOBAL_CONCURRENCY" envDefault:"32"`

	// MaxManualRetries caps how many times a single resource may be retried
	// through the retry endpoints.
	MaxManualRetries int `env:"EXPORT_MAX_MANUAL_RETRIES" envDefault:"5"`
}

// Sanitize applies guardrails to export configuration values.
func (e *ExportConfig) Sanitize() {
	e.DataDir = strings.TrimSpace(e.DataDir)
	if e.DataDir == "" {
		e.DataDir = "./data/exports"
	}
	if e.JobTTL < time.Minute {
		e.JobTTL = time.Minute
	}
	if e.MaxHTMLBytes < 1 {
		e.MaxHTMLBytes = 2 << 20
	}
	if e.MaxImages < 1 {
		e.MaxImages = 1
	}
	if e.MaxImageBytes < 1 {
		e.MaxImageBytes = 25 << 20
	}
	if e.FetchTimeout < time.Second {
		e.FetchTimeout = time.Second
	}
	if e.FetchRetries < 0 {
		e.FetchRetries = 0
	}
	if e.FetchRetryDelay < 0 {
		e.FetchRetryDelay = 0
	}
	if e.PerJobConcurrency < 1 {
		e.PerJobConcurrency = 1
	}
	if e.GlobalConcurrency < e.PerJobConcurrency {
		e.GlobalConcurrency = e.PerJobConcurrency
	}
	if e.MaxManualRetries < 1 {
		e.MaxManualRetries = 1
	}
}
