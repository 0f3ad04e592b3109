// Package service wires collections, the upload queue, the change monitor and
// metrics into one long-running process, and exposes the operations the RPC,
// MCP and CLI surfaces call.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amandocs/internal/chunk"
	"github.com/Aman-CERP/amandocs/internal/config"
	"github.com/Aman-CERP/amandocs/internal/embed"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/extract"
	"github.com/Aman-CERP/amandocs/internal/ingest"
	"github.com/Aman-CERP/amandocs/internal/monitor"
	"github.com/Aman-CERP/amandocs/internal/queue"
	"github.com/Aman-CERP/amandocs/internal/store"
	"github.com/Aman-CERP/amandocs/internal/telemetry"
)

// Options configures a Service. Only Config is required.
type Options struct {
	Config    *config.Config
	Embedder  embed.Embedder
	Extractor extract.Extractor
	OCR       chunk.OCREngine
	// Uploader overrides how the monitor ingests files. The default ingests
	// in-process.
	Uploader monitor.Uploader
	// Notify enables fsnotify nudges for the monitor.
	Notify bool
}

// Service is the running engine.
type Service struct {
	cfg         *config.Config
	embedder    embed.Embedder
	collections *ingest.Collections
	queue       *queue.Queue
	worker      *queue.Worker
	monitor     *monitor.Monitor
	watches     *monitor.WatchStore
	metrics     *telemetry.Metrics
	searches    *telemetry.SearchStats
	detach      func()
	started     time.Time
}

// New builds a Service. Collections open lazily; nothing runs until Run.
func New(ctx context.Context, opts Options) (*Service, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, amerrors.ValidationError("service requires a config", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, dir := range []string{cfg.Store.DataDir, cfg.CollectionsDir(), cfg.UploadsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	embedder := opts.Embedder
	if embedder == nil {
		var err error
		embedder, err = embed.NewFromConfig(ctx, embed.Options{
			Provider:   cfg.Embeddings.Provider,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			OllamaHost: cfg.Embeddings.OllamaHost,
			CacheSize:  cfg.Embeddings.CacheSize,
		})
		if err != nil {
			return nil, err
		}
	}

	keywords, err := store.NewBleveKeywords()
	if err != nil {
		slog.Warn("keyword extraction disabled", slog.String("error", err.Error()))
	}

	s := &Service{
		cfg:      cfg,
		embedder: embedder,
		queue:    queue.New(cfg.Queue.Capacity),
		metrics:  telemetry.NewMetrics(),
		searches: telemetry.NewSearchStats(100, 50),
		started:  time.Now(),
	}

	dispatcher := chunk.NewDispatcher(chunk.Options{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
	}, opts.OCR)
	facadeOpts := ingest.Options{
		Embedder:   embedder,
		Dispatcher: dispatcher,
		Extractor:  opts.Extractor,
		Observer:   s.metrics,
	}
	if keywords != nil {
		facadeOpts.Keywords = keywords
	}
	s.collections = ingest.NewCollections(cfg.CollectionsDir(), func(name, dir string) (*ingest.Facade, error) {
		return ingest.OpenFacade(name, dir, facadeOpts)
	})

	s.watches, err = monitor.OpenWatchStore(cfg.MonitorDBPath())
	if err != nil {
		return nil, err
	}

	uploader := opts.Uploader
	if uploader == nil {
		uploader = monitor.UploaderFunc(s.ingestLocal)
	}
	s.monitor, err = monitor.New(monitor.Options{
		Store:            s.watches,
		Uploader:         uploader,
		Interval:         cfg.Monitor.PollInterval,
		MaxRetries:       cfg.Monitor.MaxRetries,
		RetryDelay:       cfg.Monitor.RetryDelay,
		UploadsPerSecond: cfg.Monitor.UploadsPerSecond,
		Exclude:          cfg.Monitor.Exclude,
		Observer:         s.metrics,
		Notify:           opts.Notify,
	})
	if err != nil {
		_ = s.watches.Close()
		return nil, err
	}

	s.worker = queue.NewWorker(s.queue, s.process, cfg.Queue.PopTimeout)
	s.detach = s.metrics.AttachQueue(s.queue)
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Queue returns the upload queue.
func (s *Service) Queue() *queue.Queue { return s.queue }

// Monitor returns the change monitor.
func (s *Service) Monitor() *monitor.Monitor { return s.monitor }

// Metrics returns the Prometheus collectors.
func (s *Service) Metrics() *telemetry.Metrics { return s.metrics }

// Run starts the worker, the monitor, the periodic flush and, when
// configured, the metrics endpoint. It blocks until ctx is done and then
// shuts everything down, flushing every collection.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.collection(""); err != nil {
		slog.Warn("default collection unavailable", slog.String("error", err.Error()))
	}

	s.worker.Start(ctx)
	if err := s.monitor.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.flushLoop(gctx)
		return nil
	})
	if addr := s.cfg.Server.MetricsAddr; addr != "" {
		g.Go(func() error {
			return s.metrics.Serve(gctx, addr)
		})
	}

	slog.Info("service_started",
		slog.String("data_dir", s.cfg.Store.DataDir),
		slog.String("embedder", s.embedder.ModelName()),
		slog.Int("queue_capacity", s.queue.Capacity()))

	<-gctx.Done()
	err := g.Wait()
	if shutdownErr := s.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

func (s *Service) flushLoop(ctx context.Context) {
	interval := s.cfg.Store.FlushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.collections.FlushAll()
			if err != nil {
				slog.Error("flush_failed", slog.String("error", err.Error()))
			}
			if n > 0 {
				slog.Debug("collections_flushed", slog.Int("count", n))
			}
		}
	}
}

// Shutdown stops background work and closes every collection. It is safe
// to call more than once.
func (s *Service) Shutdown() error {
	s.monitor.Stop()
	var errs []error
	if err := s.worker.Stop(s.cfg.Queue.StopTimeout); err != nil {
		errs = append(errs, err)
	}
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
	if err := s.collections.CloseAll(); err != nil {
		errs = append(errs, err)
	}
	if s.watches != nil {
		if err := s.watches.Close(); err != nil {
			errs = append(errs, err)
		}
		s.watches = nil
	}
	slog.Info("service_stopped")
	return errors.Join(errs...)
}

func (s *Service) collectionName(name string) string {
	if strings.TrimSpace(name) == "" {
		return s.cfg.Store.DefaultCollection
	}
	return name
}

func (s *Service) collection(name string) (*ingest.Facade, error) {
	return s.collections.Open(s.collectionName(name))
}

// process is the worker's ingest func. Monitoring is held off while an
// interactive upload writes.
func (s *Service) process(ctx context.Context, it queue.Item) error {
	release := s.monitor.Hold()
	defer release()

	f, err := s.collection(it.Collection)
	if err != nil {
		return err
	}
	_, err = f.IngestFileAs(ctx, it.FilePath, it.FileName)
	return err
}

// ingestLocal is the in-process monitor uploader.
func (s *Service) ingestLocal(ctx context.Context, collection, path string) error {
	f, err := s.collection(collection)
	if err != nil {
		return err
	}
	_, err = f.IngestFile(ctx, path)
	return err
}
