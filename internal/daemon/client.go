package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amandocs/internal/monitor"
	"github.com/Aman-CERP/amandocs/internal/queue"
	"github.com/Aman-CERP/amandocs/internal/service"
	"github.com/Aman-CERP/amandocs/internal/store"
)

// Client talks to a running daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// call performs one request/response round trip. out may be nil.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{JSONRPC: "2.0", Method: method, ID: c.nextID()}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = raw
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error.asError()
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	if err := c.call(ctx, MethodPing, nil, &res); err != nil {
		return err
	}
	if !res.Pong {
		return fmt.Errorf("ping failed: unexpected response")
	}
	return nil
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (*service.Status, error) {
	var st service.Status
	if err := c.call(ctx, MethodStatus, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// UploadFile queues a file, or inline content, on the daemon.
func (c *Client) UploadFile(ctx context.Context, req service.UploadRequest) (*service.UploadResponse, error) {
	var resp service.UploadResponse
	if err := c.call(ctx, MethodUpload, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Upload queues path into collection. It lets a monitor push changes to a
// daemon instead of ingesting in-process.
func (c *Client) Upload(ctx context.Context, collection, path string) error {
	_, err := c.UploadFile(ctx, service.UploadRequest{Collection: collection, FilePath: path})
	return err
}

var _ monitor.Uploader = (*Client)(nil)

// Search runs a similarity query.
func (c *Client) Search(ctx context.Context, req service.SearchRequest) ([]service.Hit, error) {
	var hits []service.Hit
	if err := c.call(ctx, MethodSearch, req, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// Documents lists the indexed files of a collection.
func (c *Client) Documents(ctx context.Context, collection string) ([]store.IndexedFileRecord, error) {
	var docs []store.IndexedFileRecord
	if err := c.call(ctx, MethodGetDocuments, CollectionParams{Collection: collection}, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocuments removes paths and returns the number of removed chunks.
func (c *Client) DeleteDocuments(ctx context.Context, collection string, paths []string) (int, error) {
	var res DeleteResult
	if err := c.call(ctx, MethodDeleteDocuments, PathsParams{Collection: collection, Paths: paths}, &res); err != nil {
		return 0, err
	}
	return res.Removed, nil
}

// DeleteAll empties a collection.
func (c *Client) DeleteAll(ctx context.Context, collection string) error {
	return c.call(ctx, MethodDeleteAll, CollectionParams{Collection: collection}, nil)
}

// IngestPaths ingests files synchronously on the daemon.
func (c *Client) IngestPaths(ctx context.Context, collection string, paths []string) (*service.BatchResult, error) {
	var res service.BatchResult
	if err := c.call(ctx, MethodIngest, PathsParams{Collection: collection, Paths: paths}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Items returns recent and pending queue items.
func (c *Client) Items(ctx context.Context) ([]queue.Item, error) {
	var items []queue.Item
	if err := c.call(ctx, MethodQueue, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AddWatch registers a path with the daemon's monitor.
func (c *Client) AddWatch(ctx context.Context, req service.WatchRequest) (*monitor.WatchEntry, error) {
	var entry monitor.WatchEntry
	if err := c.call(ctx, MethodWatchAdd, req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveWatch unregisters a path.
func (c *Client) RemoveWatch(ctx context.Context, req service.WatchRequest) (bool, error) {
	var res RemovedResult
	if err := c.call(ctx, MethodWatchRemove, req, &res); err != nil {
		return false, err
	}
	return res.Removed, nil
}

// ClearWatch drops a watch-list.
func (c *Client) ClearWatch(ctx context.Context, req service.WatchRequest) error {
	return c.call(ctx, MethodWatchClear, req, nil)
}

// ListWatch returns every watch-list.
func (c *Client) ListWatch(ctx context.Context) ([]monitor.WatchDocument, error) {
	var docs []monitor.WatchDocument
	if err := c.call(ctx, MethodWatchList, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// PauseMonitor suspends monitor ticks.
func (c *Client) PauseMonitor(ctx context.Context) error {
	return c.call(ctx, MethodMonitorPause, nil, nil)
}

// ResumeMonitor re-enables monitor ticks.
func (c *Client) ResumeMonitor(ctx context.Context) error {
	return c.call(ctx, MethodMonitorResume, nil, nil)
}

// MonitorSummaries returns the recent tick summaries.
func (c *Client) MonitorSummaries(ctx context.Context) ([]monitor.TickSummary, error) {
	var sums []monitor.TickSummary
	if err := c.call(ctx, MethodMonitorSummaries, nil, &sums); err != nil {
		return nil, err
	}
	return sums, nil
}
