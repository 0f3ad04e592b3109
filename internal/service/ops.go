package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/monitor"
	"github.com/Aman-CERP/amandocs/internal/queue"
	"github.com/Aman-CERP/amandocs/internal/store"
	"github.com/Aman-CERP/amandocs/internal/telemetry"
)

// DefaultSearchLimit is used when a search asks for k <= 0.
const DefaultSearchLimit = 5

// UploadRequest queues a file for ingestion. When Content is set it is
// written to the uploads directory under FileName and that copy is queued.
type UploadRequest struct {
	Collection string `json:"collection,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	Content    []byte `json:"content,omitempty"`
}

// UploadResponse acknowledges a queued upload.
type UploadResponse struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	ItemID            string `json:"item_id,omitempty"`
	RemainingCapacity int    `json:"remaining_capacity"`
}

// Upload validates and queues one file.
func (s *Service) Upload(_ context.Context, req UploadRequest) (*UploadResponse, error) {
	collection := s.collectionName(req.Collection)
	path := req.FilePath

	// stored is set when this call created an upload file, which must not
	// outlive a rejected enqueue.
	var stored string
	if len(req.Content) > 0 {
		name := filepath.Base(strings.TrimSpace(req.FileName))
		if name == "" || name == "." || name == string(filepath.Separator) {
			return nil, amerrors.ValidationError("file_name is required when content is sent", nil)
		}
		if s.queue.RemainingCapacity() == 0 {
			return nil, amerrors.CapacityExceeded(s.queue.Capacity(), 0)
		}
		req.FileName = name
		path = filepath.Join(s.cfg.UploadsDir(), name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			stored = path
		}
		if err := os.WriteFile(path, req.Content, 0o644); err != nil {
			return nil, fmt.Errorf("failed to store upload %s: %w", name, err)
		}
	}
	if path == "" {
		return nil, amerrors.ValidationError("file_path or content is required", nil)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidPath, "invalid path "+path, err)
	}

	item, err := s.queue.EnqueueIn(collection, abs, req.FileName)
	if err != nil {
		if stored != "" {
			_ = os.Remove(stored)
		}
		return nil, err
	}
	return &UploadResponse{
		Status:            "queued",
		Message:           fmt.Sprintf("%s queued for indexing", item.FileName),
		ItemID:            item.ID,
		RemainingCapacity: s.queue.RemainingCapacity(),
	}, nil
}

// SearchRequest is a similarity query.
type SearchRequest struct {
	Collection   string   `json:"collection,omitempty"`
	Query        string   `json:"query"`
	K            int      `json:"k,omitempty"`
	PathPrefixes []string `json:"path_prefixes,omitempty"`
	Sheet        string   `json:"sheet,omitempty"`
}

// Hit is one search result in wire form.
type Hit struct {
	Path          string   `json:"path"`
	Text          string   `json:"text"`
	Sheet         string   `json:"sheet,omitempty"`
	OCRConfidence *float64 `json:"ocr_confidence,omitempty"`
	Score         float32  `json:"score"`
	Distance      float32  `json:"distance"`
	Keywords      []string `json:"keywords,omitempty"`
}

// Search runs a similarity query against one collection.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, amerrors.New(amerrors.ErrCodeQueryEmpty, "query is required", nil)
	}
	if req.K <= 0 {
		req.K = DefaultSearchLimit
	}
	collection := s.collectionName(req.Collection)
	f, err := s.collections.Open(collection)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := f.Search(ctx, req.Query, req.K, &store.Filter{
		PathPrefixes: req.PathPrefixes,
		SheetName:    req.Sheet,
	})
	elapsed := time.Since(start)
	s.metrics.ObserveSearch(collection, len(results), elapsed, err)
	if err != nil {
		return nil, err
	}
	s.searches.Record(telemetry.SearchEvent{
		Collection: collection,
		Query:      req.Query,
		Results:    len(results),
		Latency:    elapsed,
	})

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			Path:          r.Chunk.SourcePath,
			Text:          r.Chunk.Text,
			Sheet:         r.Chunk.SheetName,
			OCRConfidence: r.Chunk.OCRConfidence,
			Score:         r.Score,
			Distance:      r.Distance,
			Keywords:      r.Keywords,
		}
	}
	return hits, nil
}

// Documents lists the indexed files of a collection.
func (s *Service) Documents(ctx context.Context, collection string) ([]store.IndexedFileRecord, error) {
	f, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	return f.Documents(ctx)
}

// DeleteDocuments removes paths from a collection and returns the number
// of chunks removed.
func (s *Service) DeleteDocuments(ctx context.Context, collection string, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, amerrors.ValidationError("at least one path is required", nil)
	}
	f, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	release := s.monitor.Hold()
	defer release()
	return f.Delete(ctx, paths)
}

// DeleteAll empties a collection.
func (s *Service) DeleteAll(ctx context.Context, collection string) error {
	f, err := s.collection(collection)
	if err != nil {
		return err
	}
	release := s.monitor.Hold()
	defer release()
	return f.DeleteAll(ctx)
}

// BatchResult aggregates a synchronous multi-file ingestion.
type BatchResult struct {
	Inserted int               `json:"inserted"`
	Failed   int               `json:"failed"`
	Total    int               `json:"total"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// IngestPaths ingests files synchronously, bypassing the queue. A failing
// file never stops the batch.
func (s *Service) IngestPaths(ctx context.Context, collection string, paths []string) (*BatchResult, error) {
	f, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	release := s.monitor.Hold()
	defer release()

	res := &BatchResult{Total: len(paths)}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := f.IngestFile(ctx, p); err != nil {
			res.Failed++
			if res.Errors == nil {
				res.Errors = make(map[string]string)
			}
			res.Errors[p] = err.Error()
			continue
		}
		res.Inserted++
	}
	return res, nil
}

// WatchRequest identifies a watch-list entry.
type WatchRequest struct {
	Collection string `json:"collection,omitempty"`
	Port       int    `json:"port,omitempty"`
	Name       string `json:"name,omitempty"`
	Path       string `json:"path,omitempty"`
}

func (s *Service) watchKey(req WatchRequest) (string, int) {
	port := req.Port
	if port == 0 {
		port = s.cfg.Monitor.Port
	}
	return s.collectionName(req.Collection), port
}

// AddWatch registers a file or directory for monitoring.
func (s *Service) AddWatch(ctx context.Context, req WatchRequest) (*monitor.WatchEntry, error) {
	if req.Path == "" {
		return nil, amerrors.ValidationError("path is required", nil)
	}
	if _, err := os.Stat(req.Path); err != nil {
		return nil, amerrors.FileNotFound(req.Path)
	}
	collection, port := s.watchKey(req)
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	return s.monitor.AddWatch(ctx, collection, port, s.cfg.Monitor.IP, req.Name, req.Path)
}

// RemoveWatch unregisters a path. Indexed content stays indexed.
func (s *Service) RemoveWatch(ctx context.Context, req WatchRequest) (bool, error) {
	collection, port := s.watchKey(req)
	return s.monitor.RemoveWatch(ctx, collection, port, req.Path)
}

// ClearWatch drops a whole watch-list.
func (s *Service) ClearWatch(ctx context.Context, req WatchRequest) error {
	collection, port := s.watchKey(req)
	return s.monitor.ClearWatch(ctx, collection, port)
}

// ListWatch returns every watch-list.
func (s *Service) ListWatch(ctx context.Context) ([]monitor.WatchDocument, error) {
	return s.monitor.ListWatch(ctx)
}

// Items returns recent and pending queue items.
func (s *Service) Items() []queue.Item {
	return s.queue.Items()
}
