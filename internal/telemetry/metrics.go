// Package telemetry exposes Prometheus metrics and in-process search
// statistics. Nothing is reported externally; the metrics endpoint is only
// served when an address is configured.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/amandocs/internal/monitor"
	"github.com/Aman-CERP/amandocs/internal/queue"
)

const namespace = "amandocs"

// DefaultLatencyBuckets are the histogram buckets in seconds.
var DefaultLatencyBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	queueDepth     prometheus.Gauge
	queueItems     *prometheus.CounterVec
	ingestChunks   *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	ingestErrors   *prometheus.CounterVec
	tickDuration   prometheus.Histogram
	monitorFiles   *prometheus.CounterVec
	ticksSkipped   prometheus.Counter
	searchDuration *prometheus.HistogramVec
	searchResults  *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Items pending or processing in the upload queue",
	})
	m.queueItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "items_total",
		Help:      "Queue lifecycle events by status",
	}, []string{"status"})
	m.ingestChunks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "chunks_total",
		Help:      "Chunks written to the index",
	}, []string{"collection"})
	m.ingestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Time to ingest one file",
		Buckets:   DefaultLatencyBuckets,
	}, []string{"collection"})
	m.ingestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "errors_total",
		Help:      "Failed ingestions",
	}, []string{"collection"})
	m.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "tick_duration_seconds",
		Help:      "Duration of monitor ticks that ran",
		Buckets:   DefaultLatencyBuckets,
	})
	m.monitorFiles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "files_total",
		Help:      "Files seen by the monitor by change kind",
	}, []string{"change"})
	m.ticksSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "ticks_skipped_total",
		Help:      "Ticks skipped while paused or held",
	})
	m.searchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "Search latency",
		Buckets:   DefaultLatencyBuckets,
	}, []string{"collection"})
	m.searchResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "queries_total",
		Help:      "Searches by outcome",
	}, []string{"outcome"})

	m.registry.MustRegister(
		m.queueDepth, m.queueItems,
		m.ingestChunks, m.ingestDuration, m.ingestErrors,
		m.tickDuration, m.monitorFiles, m.ticksSkipped,
		m.searchDuration, m.searchResults,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IngestDone records one ingestion.
func (m *Metrics) IngestDone(collection string, chunks int, elapsed time.Duration, err error) {
	if err != nil {
		m.ingestErrors.WithLabelValues(collection).Inc()
		return
	}
	m.ingestChunks.WithLabelValues(collection).Add(float64(chunks))
	m.ingestDuration.WithLabelValues(collection).Observe(elapsed.Seconds())
}

// TickDone records one monitor tick.
func (m *Metrics) TickDone(s monitor.TickSummary) {
	if s.Skipped {
		m.ticksSkipped.Inc()
		return
	}
	m.tickDuration.Observe(s.Duration.Seconds())
	m.monitorFiles.WithLabelValues("added").Add(float64(s.Added))
	m.monitorFiles.WithLabelValues("modified").Add(float64(s.Modified))
	m.monitorFiles.WithLabelValues("deleted").Add(float64(s.Deleted))
	m.monitorFiles.WithLabelValues("failed").Add(float64(s.Failed))
}

// ObserveSearch records one search.
func (m *Metrics) ObserveSearch(collection string, results int, elapsed time.Duration, err error) {
	outcome := "hit"
	switch {
	case err != nil:
		outcome = "error"
	case results == 0:
		outcome = "empty"
	}
	m.searchResults.WithLabelValues(outcome).Inc()
	if err == nil {
		m.searchDuration.WithLabelValues(collection).Observe(elapsed.Seconds())
	}
}

// AttachQueue subscribes to q's lifecycle events. The returned func detaches.
func (m *Metrics) AttachQueue(q *queue.Queue) func() {
	events := []queue.Event{
		queue.EventFileAdded,
		queue.EventFileProcessing,
		queue.EventFileCompleted,
		queue.EventFileFailed,
		queue.EventQueueFull,
	}
	var unsubs []func()
	for _, ev := range events {
		status := string(ev)
		unsubs = append(unsubs, q.Subscribe(ev, func(queue.Item) {
			m.queueItems.WithLabelValues(status).Inc()
			m.queueDepth.Set(float64(q.Size()))
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics_listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
