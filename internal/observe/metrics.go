// Package observe provides the worker's observability surface: OpenTelemetry
// metric instruments for the queue and transport, bridged to a Prometheus
// /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all jukebox metrics.
const meterName = "github.com/dabneyhovse/further"

// Metrics holds all OpenTelemetry metric instruments for the worker.
// All fields are safe for concurrent use.
type Metrics struct {
	// ElementsAdded counts queued elements. Use with attribute:
	//   attribute.String("kind", "main"|"sfx")
	ElementsAdded metric.Int64Counter

	// ElementsSkipped counts skipped elements.
	ElementsSkipped metric.Int64Counter

	// DownloadFailures counts download tasks that ended in failure.
	DownloadFailures metric.Int64Counter

	// DownloadDuration tracks source download plus filter-pass latency.
	DownloadDuration metric.Float64Histogram

	// FloodControlEvents counts flood-control rejections from the chat API.
	FloodControlEvents metric.Int64Counter

	// OutboundRetries counts retried outbound calls. Use with attribute:
	//   attribute.String("kind", "flood_control"|"timeout")
	OutboundRetries metric.Int64Counter

	// QueueDepth tracks the number of pending elements on the main lane.
	QueueDepth metric.Int64UpDownCounter
}

// downloadBuckets covers yt-dlp fetch plus ffmpeg processing times in
// seconds.
var downloadBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 320,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ElementsAdded, err = m.Int64Counter("further.queue.elements_added",
		metric.WithDescription("Elements added to the queue."),
	); err != nil {
		return nil, err
	}
	if met.ElementsSkipped, err = m.Int64Counter("further.queue.elements_skipped",
		metric.WithDescription("Elements skipped before or during playback."),
	); err != nil {
		return nil, err
	}
	if met.DownloadFailures, err = m.Int64Counter("further.queue.download_failures",
		metric.WithDescription("Download tasks that ended in failure."),
	); err != nil {
		return nil, err
	}
	if met.DownloadDuration, err = m.Float64Histogram("further.queue.download_duration",
		metric.WithDescription("Source download and filter-pass latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(downloadBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FloodControlEvents, err = m.Int64Counter("further.transport.flood_control_events",
		metric.WithDescription("Flood-control rejections from the chat API."),
	); err != nil {
		return nil, err
	}
	if met.OutboundRetries, err = m.Int64Counter("further.transport.retries",
		metric.WithDescription("Retried outbound chat API calls."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("further.queue.depth",
		metric.WithDescription("Pending elements on the main lane."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance backed by the
// global meter provider. Instrument creation errors leave a nil-safe
// zero-value instance.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
