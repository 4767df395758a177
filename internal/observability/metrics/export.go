// Package metrics emits export lifecycle and fetch outcome metrics.
package metrics

import (
	"time"

	obserrors "github.com/blog-ueditor/export-api/internal/observability/errors"
	"github.com/blog-ueditor/export-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// ExportMetric captures an export lifecycle transition for emission.
type ExportMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitExportLifecycle emits a transition counter and, when a duration is
// known, a timing for the transition.
func EmitExportLifecycle(sink statsd.Sink, in ExportMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("export.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("export.duration", in.Duration, cloneTags(tags))
	}
}

// EmitFetchOutcome counts one resource download by outcome and failure kind.
func EmitFetchOutcome(sink statsd.Sink, outcome, kind string, attempts int) {
	if sink == nil {
		return
	}
	tags := map[string]string{"outcome": outcome}
	if kind != "" {
		tags["kind"] = kind
	}
	sink.Count("fetch.resource", 1, tags)
	if attempts > 1 {
		sink.Count("fetch.retries", int64(attempts-1), cloneTags(tags))
	}
}

// EmitSweep records one sweeper pass.
func EmitSweep(sink statsd.Sink, removed int, duration time.Duration) {
	if sink == nil {
		return
	}
	sink.Count("sweeper.removed", int64(removed), nil)
	sink.Timing("sweeper.pass", duration, nil)
}

func cloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
