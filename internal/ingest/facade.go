// Package ingest turns files into indexed chunks. A Facade owns one
// collection: its vector index and its registry of indexed files.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/amandocs/internal/chunk"
	"github.com/Aman-CERP/amandocs/internal/embed"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/extract"
	"github.com/Aman-CERP/amandocs/internal/store"
)

// Source is decoded content ready to be split.
type Source struct {
	Path    string
	Name    string
	Kind    chunk.Kind
	Text    string
	Data    []byte // raw image bytes for chunk.Image
	Headers map[string]string
}

// Result describes one successful ingestion.
type Result struct {
	Path    string `json:"path"`
	Chunks  int    `json:"chunks"`
	Removed int    `json:"removed"`
}

// Observer is notified after every ingestion attempt.
type Observer interface {
	IngestDone(collection string, chunks int, elapsed time.Duration, err error)
}

// Options configures a Facade.
type Options struct {
	Embedder   embed.Embedder // required
	Keywords   store.KeywordExtractor
	Dispatcher *chunk.Dispatcher
	Extractor  extract.Extractor
	Observer   Observer
	Now        func() time.Time
}

// Facade serializes mutation of one collection.
type Facade struct {
	mu         sync.Mutex
	name       string
	index      *store.Index
	registry   *store.Registry
	dispatcher *chunk.Dispatcher
	extractor  extract.Extractor
	observer   Observer
	now        func() time.Time
}

// OpenFacade opens the collection stored in dir, creating it when absent.
func OpenFacade(name, dir string, opts Options) (*Facade, error) {
	if opts.Dispatcher == nil {
		opts.Dispatcher = chunk.NewDispatcher(chunk.Options{}, nil)
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.NewDefault()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	index, err := store.Open(dir, store.Options{Embedder: opts.Embedder, Keywords: opts.Keywords})
	if err != nil {
		return nil, err
	}
	registry, err := store.OpenRegistry(filepath.Join(dir, store.RegistryFile))
	if err != nil {
		_ = index.Close()
		return nil, err
	}

	f := &Facade{
		name:       name,
		index:      index,
		registry:   registry,
		dispatcher: opts.Dispatcher,
		extractor:  opts.Extractor,
		observer:   opts.Observer,
		now:        opts.Now,
	}

	result, err := f.Reconcile(context.Background())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if len(result.Inconsistencies) > 0 {
		slog.Warn("collection_reconciled",
			slog.String("collection", name),
			slog.Int("issues", len(result.Inconsistencies)))
	}
	return f, nil
}

// Name returns the collection name.
func (f *Facade) Name() string {
	return f.name
}

// Index exposes the underlying vector index for reads.
func (f *Facade) Index() *store.Index {
	return f.index
}

// Ingest splits, annotates and stores src, replacing any chunks previously
// stored for src.Path. Unsupported input and embedding failures leave the
// index untouched.
func (f *Facade) Ingest(ctx context.Context, src Source) (*Result, error) {
	start := time.Now()
	res, err := f.ingest(ctx, src)

	chunks := 0
	if res != nil {
		chunks = res.Chunks
	}
	if f.observer != nil {
		f.observer.IngestDone(f.name, chunks, time.Since(start), err)
	}
	return res, err
}

func (f *Facade) ingest(ctx context.Context, src Source) (*Result, error) {
	if src.Name == "" {
		src.Name = filepath.Base(src.Path)
	}

	content := []byte(src.Text)
	if src.Kind == chunk.Image {
		content = src.Data
	}
	chunks, err := f.dispatcher.Split(ctx, src.Kind, content, src.Path)
	if err != nil {
		return nil, err
	}
	chunks = annotate(chunks, src)

	f.mu.Lock()
	defer f.mu.Unlock()

	removed, err := f.index.Replace(ctx, src.Path, chunks)
	if err != nil {
		// The previous chunks and their record are untouched.
		return nil, amerrors.IngestionFailure(src.Path, err)
	}

	rec := store.IndexedFileRecord{
		FilePath:    src.Path,
		FileName:    src.Name,
		FileType:    extension(src.Path),
		LastUpdated: f.now().Unix(),
		ChunkCount:  len(chunks),
	}
	// The index already holds the new chunks; the record must follow even
	// when the caller has gone away.
	if err := f.registry.Upsert(context.WithoutCancel(ctx), rec); err != nil {
		return nil, amerrors.IngestionFailure(src.Path, err)
	}

	slog.Debug("file_ingested",
		slog.String("collection", f.name),
		slog.String("path", src.Path),
		slog.Int("chunks", len(chunks)),
		slog.Int("removed", removed))

	return &Result{Path: src.Path, Chunks: len(chunks), Removed: removed}, nil
}

// IngestFile extracts path and ingests it under its base name.
func (f *Facade) IngestFile(ctx context.Context, path string) (*Result, error) {
	return f.IngestFileAs(ctx, path, "")
}

// IngestFileAs extracts path and ingests it under name.
func (f *Facade) IngestFileAs(ctx context.Context, path, name string) (*Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidPath, "invalid path "+path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, amerrors.FileNotFound(abs)
		}
		return nil, fmt.Errorf("cannot stat %s: %w", abs, err)
	}

	content, err := f.extractor.Extract(ctx, abs)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = filepath.Base(abs)
	}
	return f.Ingest(ctx, Source{
		Path:    abs,
		Name:    name,
		Kind:    chunk.KindFromPath(abs),
		Text:    content.Text,
		Data:    content.Data,
		Headers: content.Headers,
	})
}

// Documents lists the indexed files.
func (f *Facade) Documents(ctx context.Context) ([]store.IndexedFileRecord, error) {
	return f.registry.List(ctx)
}

// Search queries the collection's index.
func (f *Facade) Search(ctx context.Context, query string, k int, filter *store.Filter) ([]store.Result, error) {
	return f.index.Search(ctx, query, k, filter)
}

// Delete removes paths from the index and the registry. It returns the
// number of chunks removed.
func (f *Facade) Delete(ctx context.Context, paths []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := f.index.DeleteByPaths(paths)
	if _, err := f.registry.Delete(ctx, paths); err != nil {
		return removed, err
	}
	return removed, nil
}

// DeleteAll empties the collection.
func (f *Facade) DeleteAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.index.DeleteAll()
	return f.registry.DeleteAll(ctx)
}

// Flush persists the index when it has unsaved changes.
func (f *Facade) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index.Flush()
}

// Dirty reports whether the index has unsaved changes.
func (f *Facade) Dirty() bool {
	return f.index.Dirty()
}

// Close flushes the index and releases the collection.
func (f *Facade) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.index.Close()
	if regErr := f.registry.Close(); regErr != nil && err == nil {
		err = regErr
	}
	return err
}

func extension(path string) string {
	return chunk.NormalizeExtension(filepath.Ext(path))
}
