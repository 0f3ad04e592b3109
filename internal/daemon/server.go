package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/amandocs/internal/monitor"
	"github.com/Aman-CERP/amandocs/internal/queue"
	"github.com/Aman-CERP/amandocs/internal/service"
	"github.com/Aman-CERP/amandocs/internal/store"
)

// Handler is the set of operations the server exposes. *service.Service
// satisfies it.
type Handler interface {
	Upload(ctx context.Context, req service.UploadRequest) (*service.UploadResponse, error)
	Search(ctx context.Context, req service.SearchRequest) ([]service.Hit, error)
	Documents(ctx context.Context, collection string) ([]store.IndexedFileRecord, error)
	DeleteDocuments(ctx context.Context, collection string, paths []string) (int, error)
	DeleteAll(ctx context.Context, collection string) error
	IngestPaths(ctx context.Context, collection string, paths []string) (*service.BatchResult, error)
	Status(ctx context.Context) *service.Status
	AddWatch(ctx context.Context, req service.WatchRequest) (*monitor.WatchEntry, error)
	RemoveWatch(ctx context.Context, req service.WatchRequest) (bool, error)
	ClearWatch(ctx context.Context, req service.WatchRequest) error
	ListWatch(ctx context.Context) ([]monitor.WatchDocument, error)
	PauseMonitor()
	ResumeMonitor()
	MonitorSummaries() []monitor.TickSummary
	Items() []queue.Item
}

type methodFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Server listens on a Unix socket and handles RPC requests.
type Server struct {
	socketPath string
	grace      time.Duration
	handler    Handler
	methods    map[string]methodFunc

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for h on the configured socket.
func NewServer(cfg Config, h Handler) *Server {
	s := &Server{
		socketPath: cfg.SocketPath,
		grace:      cfg.ShutdownGracePeriod,
		handler:    h,
	}
	s.methods = s.routes()
	return s
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Stale socket from a crashed daemon
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		slog.Warn("Failed to restrict socket permissions", slog.String("error", err.Error()))
	}

	slog.Info("Server listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("Accept error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.waitConnections()
	return ctx.Err()
}

func (s *Server) waitConnections() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.grace):
		slog.Warn("Connections still open after grace period", slog.Duration("grace", s.grace))
	}
}

// handleConnection processes a single request on conn.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		slog.Warn("Failed to set connection deadline", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	_ = encoder.Encode(s.handleRequest(ctx, req))
}

// handleRequest dispatches a request to its method.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}
	fn, ok := s.methods[req.Method]
	if !ok {
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}

	start := time.Now()
	result, err := fn(ctx, req.Params)
	if err != nil {
		if pe, ok := err.(paramsError); ok {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, pe.Error())
		}
		slog.Debug("Request failed",
			slog.String("method", req.Method),
			slog.String("error", err.Error()))
		return errorResponse(req.ID, err)
	}
	slog.Debug("Request handled",
		slog.String("method", req.Method),
		slog.Duration("duration", time.Since(start)))
	return NewSuccessResponse(req.ID, result)
}

type paramsError struct{ err error }

func (e paramsError) Error() string { return "invalid params: " + e.err.Error() }

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, paramsError{err}
	}
	return v, nil
}

func (s *Server) routes() map[string]methodFunc {
	h := s.handler
	return map[string]methodFunc{
		MethodPing: func(context.Context, json.RawMessage) (any, error) {
			return PingResult{Pong: true}, nil
		},
		MethodStatus: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return h.Status(ctx), nil
		},
		MethodUpload: func(ctx context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[service.UploadRequest](raw)
			if err != nil {
				return nil, err
			}
			return h.Upload(ctx, p)
		},
		MethodSearch: func(ctx context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[service.SearchRequest](raw)
			if err != nil {
				return nil, err
			}
			hits, err := h.Search(ctx, p)
			if hits == nil && err == nil {
				hits = []service.Hit{}
			}
			return hits, err
		},
		MethodGetDocuments: func(ctx context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[CollectionParams](raw)
			if err != nil {
				return nil, err
			}
			docs, err := h.Documents(ctx, p.Collection)
			if docs == nil && err == nil {
				docs = []store.IndexedFileRecord{}
			}
			return docs, err
		},
		MethodDeleteDocuments: func(ctx context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[PathsParams](raw)
			if err != nil {
				return nil, err
			}
			n, err := h.DeleteDocuments(ctx, p.Collection, p.Paths)
			if err != nil {
				return nil, err
			}
			return DeleteResult{Removed: n}, nil
		},
		MethodDeleteAll: func(ctx context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[CollectionParams](raw)
			if err != nil {
				return nil, err
			}
			if err := h.DeleteAll(ctx, p.Collection); err != nil {
				return nil, err
			}
			return OKResult{OK: true}, nil
		},
		MethodIngest: func(ctx context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[PathsParams](raw)
			if err != nil {
				return nil, err
			}
			return h.IngestPaths(ctx, p.Collection, p.Paths)
		},
		MethodQueue: func(context.Context, json.RawMessage) (any, error) {
			return h.Items(), nil
		},
		MethodWatchAdd: func(ctx context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[service.WatchRequest](raw)
			if err != nil {
				return nil, err
			}
			return h.AddWatch(ctx, p)
		},
		MethodWatchRemove: func(ctx context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[service.WatchRequest](raw)
			if err != nil {
				return nil, err
			}
			removed, err := h.RemoveWatch(ctx, p)
			if err != nil {
				return nil, err
			}
			return RemovedResult{Removed: removed}, nil
		},
		MethodWatchClear: func(ctx context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[service.WatchRequest](raw)
			if err != nil {
				return nil, err
			}
			if err := h.ClearWatch(ctx, p); err != nil {
				return nil, err
			}
			return OKResult{OK: true}, nil
		},
		MethodWatchList: func(ctx context.Context, _ json.RawMessage) (any, error) {
			docs, err := h.ListWatch(ctx)
			if docs == nil && err == nil {
				docs = []monitor.WatchDocument{}
			}
			return docs, err
		},
		MethodMonitorPause: func(context.Context, json.RawMessage) (any, error) {
			h.PauseMonitor()
			return OKResult{OK: true}, nil
		},
		MethodMonitorResume: func(context.Context, json.RawMessage) (any, error) {
			h.ResumeMonitor()
			return OKResult{OK: true}, nil
		},
		MethodMonitorSummaries: func(context.Context, json.RawMessage) (any, error) {
			sums := h.MonitorSummaries()
			if sums == nil {
				sums = []monitor.TickSummary{}
			}
			return sums, nil
		},
	}
}
