package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amandocs/internal/monitor"
	"github.com/Aman-CERP/amandocs/internal/service"
	"github.com/Aman-CERP/amandocs/internal/store"
	"github.com/Aman-CERP/amandocs/pkg/version"
)

// Backend is what the tools call into. *daemon.Client satisfies it
// directly; an in-process *service.Service is wrapped with Local.
type Backend interface {
	UploadFile(ctx context.Context, req service.UploadRequest) (*service.UploadResponse, error)
	Search(ctx context.Context, req service.SearchRequest) ([]service.Hit, error)
	Documents(ctx context.Context, collection string) ([]store.IndexedFileRecord, error)
	DeleteDocuments(ctx context.Context, collection string, paths []string) (int, error)
	DeleteAll(ctx context.Context, collection string) error
	Status(ctx context.Context) (*service.Status, error)
	AddWatch(ctx context.Context, req service.WatchRequest) (*monitor.WatchEntry, error)
	RemoveWatch(ctx context.Context, req service.WatchRequest) (bool, error)
	ListWatch(ctx context.Context) ([]monitor.WatchDocument, error)
}

type localBackend struct {
	*service.Service
}

// Local adapts an in-process service to Backend.
func Local(s *service.Service) Backend {
	return localBackend{s}
}

func (l localBackend) UploadFile(ctx context.Context, req service.UploadRequest) (*service.UploadResponse, error) {
	return l.Service.Upload(ctx, req)
}

func (l localBackend) Status(ctx context.Context) (*service.Status, error) {
	return l.Service.Status(ctx), nil
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

type toolCall func(ctx context.Context, args json.RawMessage) (any, error)

// Server is the MCP server for amandocs.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	logger  *slog.Logger

	tools     []ToolInfo
	calls     map[string]toolCall
	resources map[string]mcp.ResourceHandler
}

// NewServer creates an MCP server over backend.
func NewServer(backend Backend) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	s := &Server{
		backend: backend,
		logger:  slog.Default(),
		calls:   make(map[string]toolCall),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "amandocs",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), s.tools...)
}

// CallTool invokes a tool by name with decoded JSON arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	call, ok := s.calls[name]
	if !ok {
		return nil, NewMethodNotFoundError(name)
	}
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		raw = b
	}
	return call(ctx, raw)
}

// addTool registers a typed handler with the SDK and with CallTool. When
// render is set, its markdown becomes the text content of the result.
func addTool[In, Out any](s *Server, t *mcp.Tool, h func(context.Context, In) (Out, error), render func(In, Out) string) {
	run := func(ctx context.Context, in In) (Out, error) {
		requestID := generateRequestID()
		start := time.Now()
		out, err := h(ctx, in)
		if err != nil {
			s.logger.Warn("tool failed",
				slog.String("request_id", requestID),
				slog.String("tool", t.Name),
				slog.Duration("duration", time.Since(start)),
				slog.String("error", err.Error()))
			var zero Out
			return zero, MapError(err)
		}
		s.logger.Info("tool completed",
			slog.String("request_id", requestID),
			slog.String("tool", t.Name),
			slog.Duration("duration", time.Since(start)))
		return out, nil
	}

	mcp.AddTool(s.mcp, t, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		out, err := run(ctx, in)
		if err != nil || render == nil {
			return nil, out, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: render(in, out)}},
		}, out, nil
	})

	s.calls[t.Name] = func(ctx context.Context, raw json.RawMessage) (any, error) {
		var in In
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, NewInvalidParamsError(fmt.Sprintf("invalid arguments for %s: %v", t.Name, err))
			}
		}
		out, err := run(ctx, in)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	s.tools = append(s.tools, ToolInfo{Name: t.Name, Description: t.Description})
	s.logger.Debug("Registered tool", slog.String("name", t.Name))
}

func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over indexed documents. Returns the closest chunks with their source path and score.",
	}, s.search, func(in SearchInput, out SearchOutput) string {
		hits := make([]service.Hit, len(out.Results))
		for i, r := range out.Results {
			hits[i] = service.Hit{
				Path:          r.FilePath,
				Text:          r.Content,
				Sheet:         r.Sheet,
				OCRConfidence: r.OCRConfidence,
				Score:         float32(r.Score),
				Keywords:      r.Keywords,
			}
		}
		return FormatSearchResults(in.Query, hits)
	})

	addTool(s, &mcp.Tool{
		Name:        "upload",
		Description: "Queue a local file, or inline text content, for indexing.",
	}, s.upload, nil)

	addTool(s, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the documents indexed in a collection.",
	}, s.documents, nil)

	addTool(s, &mcp.Tool{
		Name:        "delete_documents",
		Description: "Remove documents from a collection, or empty it with all=true.",
	}, s.delete, nil)

	addTool(s, &mcp.Tool{
		Name:        "index_status",
		Description: "Report collections, queue depth, embedder and monitor state.",
	}, s.status, nil)

	addTool(s, &mcp.Tool{
		Name:        "watch",
		Description: "Add, remove or list files and directories the change monitor keeps indexed.",
	}, s.watch, nil)

	s.logger.Info("MCP tools registered", slog.Int("count", len(s.tools)))
}

func (s *Server) search(ctx context.Context, in SearchInput) (SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	hits, err := s.backend.Search(ctx, service.SearchRequest{
		Collection:   in.Collection,
		Query:        in.Query,
		K:            clampLimit(in.Limit, service.DefaultSearchLimit, 1, 50),
		PathPrefixes: in.Scope,
		Sheet:        in.Sheet,
	})
	if err != nil {
		return SearchOutput{}, err
	}
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(hits))}
	for _, h := range hits {
		out.Results = append(out.Results, SearchResultOutput{
			FilePath:      h.Path,
			Content:       h.Text,
			Score:         float64(h.Score),
			Sheet:         h.Sheet,
			OCRConfidence: h.OCRConfidence,
			Keywords:      h.Keywords,
		})
	}
	return out, nil
}

func (s *Server) upload(ctx context.Context, in UploadInput) (UploadOutput, error) {
	req := service.UploadRequest{
		Collection: in.Collection,
		FilePath:   in.FilePath,
		FileName:   in.FileName,
	}
	if in.Content != "" {
		req.Content = []byte(in.Content)
	}
	resp, err := s.backend.UploadFile(ctx, req)
	if err != nil {
		return UploadOutput{}, err
	}
	return UploadOutput{
		Status:            resp.Status,
		Message:           resp.Message,
		ItemID:            resp.ItemID,
		RemainingCapacity: resp.RemainingCapacity,
	}, nil
}

func (s *Server) documents(ctx context.Context, in DocumentsInput) (DocumentsOutput, error) {
	docs, err := s.backend.Documents(ctx, in.Collection)
	if err != nil {
		return DocumentsOutput{}, err
	}
	out := DocumentsOutput{Documents: make([]DocumentOutput, 0, len(docs))}
	for _, d := range docs {
		out.Documents = append(out.Documents, DocumentOutput{
			FilePath:    d.FilePath,
			FileName:    d.FileName,
			MIMEType:    MimeTypeForPath(d.FilePath),
			ChunkCount:  d.ChunkCount,
			LastUpdated: time.Unix(d.LastUpdated, 0).UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

func (s *Server) delete(ctx context.Context, in DeleteInput) (DeleteOutput, error) {
	if in.All {
		if len(in.Paths) > 0 {
			return DeleteOutput{}, NewInvalidParamsError("paths and all are mutually exclusive")
		}
		if err := s.backend.DeleteAll(ctx, in.Collection); err != nil {
			return DeleteOutput{}, err
		}
		return DeleteOutput{All: true}, nil
	}
	if len(in.Paths) == 0 {
		return DeleteOutput{}, NewInvalidParamsError("paths is required unless all is set")
	}
	n, err := s.backend.DeleteDocuments(ctx, in.Collection, in.Paths)
	if err != nil {
		return DeleteOutput{}, err
	}
	return DeleteOutput{Removed: n}, nil
}

func (s *Server) status(ctx context.Context, _ StatusInput) (StatusOutput, error) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return StatusOutput{}, err
	}
	out := StatusOutput{
		Version:        st.Version,
		Embedder:       st.Embedder,
		Dimensions:     st.Dimensions,
		Collections:    make([]CollectionOutput, 0, len(st.Collections)),
		QueuePending:   st.Queue.Pending,
		QueueRemaining: st.Queue.Remaining,
		MonitorState:   string(st.Monitor.State),
		MonitorPaused:  st.Monitor.Paused,
	}
	for _, c := range st.Collections {
		out.Collections = append(out.Collections, CollectionOutput{
			Name:      c.Name,
			Documents: c.Documents,
			Chunks:    c.Chunks,
			Size:      humanSize(c.EstimatedBytes),
		})
	}
	return out, nil
}

func (s *Server) watch(ctx context.Context, in WatchInput) (WatchOutput, error) {
	req := service.WatchRequest{Collection: in.Collection, Name: in.Name, Path: in.Path}
	switch in.Action {
	case "add":
		entry, err := s.backend.AddWatch(ctx, req)
		if err != nil {
			return WatchOutput{}, err
		}
		return WatchOutput{Entries: []WatchEntryOutput{entryOutput(in.Collection, 0, *entry)}}, nil
	case "remove":
		if in.Path == "" {
			return WatchOutput{}, NewInvalidParamsError("path is required to remove a watch")
		}
		removed, err := s.backend.RemoveWatch(ctx, req)
		if err != nil {
			return WatchOutput{}, err
		}
		return WatchOutput{Removed: removed}, nil
	case "list", "":
		docs, err := s.backend.ListWatch(ctx)
		if err != nil {
			return WatchOutput{}, err
		}
		var out WatchOutput
		for _, d := range docs {
			for _, e := range d.Files {
				out.Entries = append(out.Entries, entryOutput(d.Collection, d.Port, e))
			}
		}
		return out, nil
	default:
		return WatchOutput{}, NewInvalidParamsError(fmt.Sprintf("unknown action %q (add, remove, list)", in.Action))
	}
}

func entryOutput(collection string, port int, e monitor.WatchEntry) WatchEntryOutput {
	out := WatchEntryOutput{Collection: collection, Port: port, Name: e.Name, Path: e.Path}
	if !e.RegisteredAt.IsZero() {
		out.RegisteredAt = e.RegisteredAt.UTC().Format(time.RFC3339)
	}
	return out
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
