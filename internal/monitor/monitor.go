// Package monitor keeps collections in sync with watched files. It polls the
// persisted watch-lists, diffs them against the previous tick and uploads
// added or modified files.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

// Defaults applied to zero Options fields.
const (
	DefaultInterval         = 10 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryDelay       = time.Second
	DefaultUploadsPerSecond = 5

	summaryRing    = 50
	statFanOut     = 8
	maxListedPaths = 20
)

// Uploader ingests one file into a collection.
type Uploader interface {
	Upload(ctx context.Context, collection, path string) error
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, collection, path string) error

// Upload calls f.
func (f UploaderFunc) Upload(ctx context.Context, collection, path string) error {
	return f(ctx, collection, path)
}

// TickSummary describes one tick.
type TickSummary struct {
	Started      time.Time     `json:"started"`
	Duration     time.Duration `json:"duration"`
	Added        int           `json:"added"`
	Modified     int           `json:"modified"`
	Deleted      int           `json:"deleted"`
	Failed       int           `json:"failed"`
	Skipped      bool          `json:"skipped,omitempty"`
	DeletedPaths []string      `json:"deleted_paths,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// TickObserver is notified after every tick, skipped ones included.
type TickObserver interface {
	TickDone(TickSummary)
}

// Options configures a Monitor.
type Options struct {
	Store            *WatchStore // required
	Uploader         Uploader    // required
	Interval         time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	UploadsPerSecond float64
	Exclude          []string
	Observer         TickObserver
	// Notify enables fsnotify nudges on the parents of watched paths.
	Notify bool
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.UploadsPerSecond <= 0 {
		o.UploadsPerSecond = DefaultUploadsPerSecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// State is the monitor lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Monitor is the change-monitoring daemon.
//
// Pause and Hold both suppress ticks. A tick suppressed by either runs as
// soon as the monitor is resumed and no hold is outstanding.
type Monitor struct {
	opts     Options
	store    *WatchStore
	excluder *excluder
	limiter  *rate.Limiter

	paused   atomic.Bool
	holds    atomic.Int64
	deferred atomic.Bool

	// mu guards the wake flag, stopping, running and the loop handles.
	mu        sync.Mutex
	cond      *sync.Cond
	wake      bool
	stopping  bool
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	lastNudge time.Time

	tickMu sync.Mutex
	prev   map[string]map[string]struct{}

	sumMu     sync.Mutex
	summaries []TickSummary

	notifier *notifier
}

// New creates an idle monitor.
func New(opts Options) (*Monitor, error) {
	if opts.Store == nil || opts.Uploader == nil {
		return nil, amerrors.ValidationError("monitor requires a watch store and an uploader", nil)
	}
	opts = opts.withDefaults()

	m := &Monitor{
		opts:     opts,
		store:    opts.Store,
		excluder: newExcluder(opts.Exclude),
		limiter:  rate.NewLimiter(rate.Limit(opts.UploadsPerSecond), 1),
		prev:     make(map[string]map[string]struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	return m, nil
}

// State reports whether the loop is running.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return StateRunning
	}
	return StateIdle
}

// Store returns the watch store.
func (m *Monitor) Store() *WatchStore {
	return m.store
}

// Start moves the monitor from Idle to Running. The first tick runs
// immediately and only establishes the baseline.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.stopping = false
	m.wake = true
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	m.tickMu.Lock()
	m.prev = make(map[string]map[string]struct{})
	m.tickMu.Unlock()

	notify := false
	if m.opts.Notify {
		n, err := newNotifier(m.nudge)
		if err != nil {
			slog.Warn("fsnotify unavailable, polling only", slog.String("error", err.Error()))
		} else {
			m.tickMu.Lock()
			m.notifier = n
			m.tickMu.Unlock()
			notify = true
			go n.run(ctx)
		}
	}

	go m.clock(ctx)
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.stopping = true
		m.cond.Broadcast()
		m.mu.Unlock()
	}()
	go m.loop(ctx, done)

	slog.Info("monitor_started",
		slog.Duration("interval", m.opts.Interval),
		slog.Bool("notify", notify))
	return nil
}

// Stop moves the monitor back to Idle, waiting for an in-flight tick.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.tickMu.Lock()
	if m.notifier != nil {
		m.notifier.close()
		m.notifier = nil
	}
	m.tickMu.Unlock()
	slog.Info("monitor_stopped")
}

// clock signals the loop every interval.
func (m *Monitor) clock(ctx context.Context) {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.signal()
		}
	}
}

func (m *Monitor) signal() {
	m.mu.Lock()
	m.wake = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// nudge requests an early tick, at most once per interval/4.
func (m *Monitor) nudge() {
	now := m.opts.Now()
	m.mu.Lock()
	if now.Sub(m.lastNudge) < m.opts.Interval/4 {
		m.mu.Unlock()
		return
	}
	m.lastNudge = now
	m.wake = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(done)
	}()

	for {
		m.mu.Lock()
		for !m.wake && !m.stopping {
			m.cond.Wait()
		}
		if m.stopping {
			m.mu.Unlock()
			return
		}
		m.wake = false
		m.mu.Unlock()

		if m.paused.Load() || m.holds.Load() > 0 {
			m.deferred.Store(true)
			m.record(TickSummary{Started: m.opts.Now(), Skipped: true})
			continue
		}

		if _, err := m.Tick(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("monitor_tick_failed", slog.String("error", err.Error()))
		}
	}
}

// Pause suppresses ticks until Resume.
func (m *Monitor) Pause() {
	if !m.paused.Swap(true) {
		slog.Info("monitor_paused")
	}
}

// Resume re-enables ticks and runs a suppressed one right away.
func (m *Monitor) Resume() {
	if m.paused.Swap(false) {
		slog.Info("monitor_resumed")
	}
	m.resumeDeferred()
}

// Paused reports whether the monitor is paused.
func (m *Monitor) Paused() bool {
	return m.paused.Load()
}

// Hold suppresses ticks until the returned release func is called. Holds
// nest; release is idempotent.
func (m *Monitor) Hold() func() {
	m.holds.Add(1)
	return sync.OnceFunc(func() {
		if m.holds.Add(-1) == 0 {
			m.resumeDeferred()
		}
	})
}

// Holds returns the number of outstanding holds.
func (m *Monitor) Holds() int {
	return int(m.holds.Load())
}

func (m *Monitor) resumeDeferred() {
	if m.paused.Load() || m.holds.Load() > 0 {
		return
	}
	if m.deferred.Swap(false) {
		m.signal()
	}
}

// Summaries returns the recorded ticks, oldest first.
func (m *Monitor) Summaries() []TickSummary {
	m.sumMu.Lock()
	defer m.sumMu.Unlock()
	return append([]TickSummary(nil), m.summaries...)
}

func (m *Monitor) record(s TickSummary) {
	m.sumMu.Lock()
	m.summaries = append(m.summaries, s)
	if len(m.summaries) > summaryRing {
		m.summaries = m.summaries[len(m.summaries)-summaryRing:]
	}
	m.sumMu.Unlock()

	if m.opts.Observer != nil {
		m.opts.Observer.TickDone(s)
	}
}

func docKey(collection string, port int) string {
	return fmt.Sprintf("%s:%d", collection, port)
}

// Tick runs one synchronization pass over every watch-list and records its
// summary. A failure on one file or one list never aborts the others.
func (m *Monitor) Tick(ctx context.Context) (TickSummary, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	summary := TickSummary{Started: m.opts.Now()}
	defer func() {
		summary.Duration = m.opts.Now().Sub(summary.Started)
		m.record(summary)
	}()

	docs, err := m.store.List(ctx)
	if err != nil {
		summary.Error = err.Error()
		return summary, err
	}

	seen := make(map[string]bool, len(docs))
	for i := range docs {
		doc := &docs[i]
		key := docKey(doc.Collection, doc.Port)
		seen[key] = true
		m.syncDocument(ctx, doc, &summary)
	}
	for key := range m.prev {
		if !seen[key] {
			delete(m.prev, key)
		}
	}

	if m.notifier != nil {
		m.notifier.watch(docs)
	}

	if summary.Added+summary.Modified+summary.Deleted+summary.Failed > 0 {
		slog.Info("monitor_tick",
			slog.Int("added", summary.Added),
			slog.Int("modified", summary.Modified),
			slog.Int("deleted", summary.Deleted),
			slog.Int("failed", summary.Failed))
	}
	return summary, ctx.Err()
}

type upload struct {
	path  string
	entry int
	kind  string // "added" or "modified"
}

func (m *Monitor) syncDocument(ctx context.Context, doc *WatchDocument, summary *TickSummary) {
	key := docKey(doc.Collection, doc.Port)
	covered := expand(doc.Files, m.excluder)

	curr := make(map[string]struct{}, len(covered))
	for p := range covered {
		curr[p] = struct{}{}
	}
	prev, known := m.prev[key]
	if !known {
		prev = curr
	}
	added, deleted := Diff(prev, curr)
	isAdded := make(map[string]bool, len(added))
	for _, p := range added {
		isAdded[p] = true
	}

	mtimes := m.statAll(ctx, covered)

	var work []upload
	for p, ei := range covered {
		registered := doc.Files[ei].registeredAt(p)
		switch {
		case isAdded[p] || registered.IsZero():
			work = append(work, upload{path: p, entry: ei, kind: "added"})
		case Modified(mtimes[p], registered):
			work = append(work, upload{path: p, entry: ei, kind: "modified"})
		}
	}
	sort.Slice(work, func(i, j int) bool { return work[i].path < work[j].path })

	var stamps []FileStamp
	failedPaths := make(map[string]bool)
	for _, w := range work {
		started := m.opts.Now()
		err := m.upload(ctx, doc.Collection, w.path)
		if err != nil {
			summary.Failed++
			attrs := append([]any{
				slog.String("collection", doc.Collection),
				slog.String("path", w.path),
			}, amerrors.LogAttrs(err)...)
			slog.Warn("monitor_upload_failed", attrs...)
			// Rejected content is settled until the file changes again.
			if amerrors.GetCode(err) != amerrors.ErrCodeUnsupportedInput {
				failedPaths[w.path] = true
				continue
			}
		} else if w.kind == "added" {
			summary.Added++
		} else {
			summary.Modified++
		}
		stamps = append(stamps, FileStamp{Entry: doc.Files[w.entry].Path, File: w.path, At: started})
	}

	sort.Strings(deleted)
	for _, p := range deleted {
		slog.Info("watched_file_deleted",
			slog.String("collection", doc.Collection),
			slog.String("path", p))
	}
	summary.Deleted += len(deleted)
	for _, p := range deleted {
		if len(summary.DeletedPaths) >= maxListedPaths {
			break
		}
		summary.DeletedPaths = append(summary.DeletedPaths, p)
	}

	// Failed paths stay out of the snapshot so they count as added next tick.
	next := make(map[string]struct{}, len(curr))
	for p := range curr {
		if !failedPaths[p] {
			next[p] = struct{}{}
		}
	}
	m.prev[key] = next

	// Completed uploads are recorded even when the tick was cancelled.
	if err := m.store.Stamp(context.WithoutCancel(ctx), doc.Collection, doc.Port, stamps, curr, m.opts.Now()); err != nil {
		slog.Warn("monitor_stamp_failed",
			slog.String("collection", doc.Collection),
			slog.String("error", err.Error()))
	}
}

// statAll collects modification times with bounded parallelism. Files that
// vanish between expansion and stat are left out.
func (m *Monitor) statAll(ctx context.Context, covered map[string]int) map[string]time.Time {
	var mu sync.Mutex
	mtimes := make(map[string]time.Time, len(covered))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(statFanOut)
	for p := range covered {
		g.Go(func() error {
			info, err := os.Stat(p)
			if err != nil {
				return nil
			}
			mu.Lock()
			mtimes[p] = info.ModTime()
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return mtimes
}

// upload sends one file with rate limiting and linear-backoff retries.
func (m *Monitor) upload(ctx context.Context, collection, path string) error {
	cfg := amerrors.LinearRetryConfig(m.opts.MaxRetries, m.opts.RetryDelay)
	cfg.OnRetry = func(attempt int, err error) {
		slog.Debug("monitor_upload_retry",
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
	return amerrors.Retry(ctx, cfg, func() error {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
		// A started upload runs to completion so a shutdown never leaves a
		// document half replaced.
		err := m.opts.Uploader.Upload(context.WithoutCancel(ctx), collection, path)
		if err == nil || amerrors.GetCode(err) == amerrors.ErrCodeUnsupportedInput {
			return err
		}
		return amerrors.SyncTransient(path, err)
	})
}

// AddWatch registers path for collection and nudges the loop.
func (m *Monitor) AddWatch(ctx context.Context, collection string, port int, ip, name, path string) (*WatchEntry, error) {
	entry, err := m.store.AddWatch(ctx, collection, port, ip, name, path)
	if err != nil {
		return nil, err
	}
	m.signal()
	return entry, nil
}

// RemoveWatch unregisters path. Already indexed content stays indexed.
func (m *Monitor) RemoveWatch(ctx context.Context, collection string, port int, path string) (bool, error) {
	return m.store.RemoveWatch(ctx, collection, port, path)
}

// ClearWatch drops the whole watch-list.
func (m *Monitor) ClearWatch(ctx context.Context, collection string, port int) error {
	return m.store.ClearWatch(ctx, collection, port)
}

// ListWatch returns every watch-list.
func (m *Monitor) ListWatch(ctx context.Context) ([]WatchDocument, error) {
	return m.store.List(ctx)
}
