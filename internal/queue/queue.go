package queue

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

const (
	// DefaultCapacity bounds pending plus in-flight items.
	DefaultCapacity = 100

	// historySize is how many finished items Items() remembers.
	historySize = 100
)

// Queue is a bounded single-consumer FIFO of uploads. The item being
// processed counts against capacity until it finishes.
type Queue struct {
	mu        sync.Mutex
	capacity  int
	pending   []*Item
	current   *Item
	history   []*Item
	completed int
	failed    int
	notify    chan struct{}
	now       func() time.Time

	subMu   sync.Mutex
	subs    map[Event]map[int]Handler
	nextSub int
}

// New creates a queue holding at most capacity items.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		now:      time.Now,
		subs:     make(map[Event]map[int]Handler),
	}
}

// Enqueue adds path to the default collection.
func (q *Queue) Enqueue(path, name string) (*Item, error) {
	return q.EnqueueIn("", path, name)
}

// EnqueueIn adds path for collection. A missing file returns FileNotFound,
// a full queue returns CapacityExceeded carrying remaining_capacity.
func (q *Queue) EnqueueIn(collection, path, name string) (*Item, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, amerrors.FileNotFound(path)
		}
		return nil, fmt.Errorf("cannot stat %s: %w", path, err)
	}
	if name == "" {
		name = filepath.Base(path)
	}

	q.mu.Lock()
	if q.sizeLocked() >= q.capacity {
		remaining := q.capacity - q.sizeLocked()
		q.mu.Unlock()

		slog.Warn("upload_queue_full",
			slog.String("path", path),
			slog.Int("capacity", q.capacity))
		q.publish(EventQueueFull, Item{Collection: collection, FilePath: path, FileName: name})
		return nil, amerrors.CapacityExceeded(q.capacity, remaining)
	}

	item := &Item{
		ID:         uuid.NewString(),
		Collection: collection,
		FilePath:   path,
		FileName:   name,
		Status:     StatusPending,
		AddedAt:    q.now(),
	}
	q.pending = append(q.pending, item)
	snapshot := *item
	q.mu.Unlock()

	q.wake()
	q.publish(EventFileAdded, snapshot)
	return &snapshot, nil
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) sizeLocked() int {
	n := len(q.pending)
	if q.current != nil {
		n++
	}
	return n
}

// Size returns pending plus in-flight items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}

// Capacity returns the configured bound.
func (q *Queue) Capacity() int {
	return q.capacity
}

// RemainingCapacity returns how many more items can be enqueued.
func (q *Queue) RemainingCapacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - q.sizeLocked()
}

// Current returns a copy of the item being processed, or nil.
func (q *Queue) Current() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return nil
	}
	c := *q.current
	return &c
}

// Items returns finished items (oldest first), then the current item, then
// pending items in queue order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, len(q.history)+len(q.pending)+1)
	for _, it := range q.history {
		out = append(out, *it)
	}
	if q.current != nil {
		out = append(out, *q.current)
	}
	for _, it := range q.pending {
		out = append(out, *it)
	}
	return out
}

// Snapshot returns counters and the current item.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Snapshot{
		Capacity:  q.capacity,
		Size:      q.sizeLocked(),
		Remaining: q.capacity - q.sizeLocked(),
		Pending:   len(q.pending),
		Completed: q.completed,
		Failed:    q.failed,
	}
	if q.current != nil {
		c := *q.current
		s.Current = &c
	}
	return s
}

// pop removes the head item and marks it processing. It waits up to timeout
// for an item and returns nil on timeout or when stop is closed.
func (q *Queue) pop(timeout time.Duration, stop <-chan struct{}) *Item {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.pending) > 0 && q.current == nil {
			it := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]

			now := q.now()
			it.Status = StatusProcessing
			it.ProcessingAt = &now
			q.current = it
			snapshot := *it
			q.mu.Unlock()

			q.publish(EventFileProcessing, snapshot)
			return it
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-timer.C:
			return nil
		case <-stop:
			return nil
		}
	}
}

// finish moves the current item to its terminal status and frees its slot.
func (q *Queue) finish(it *Item, err error) {
	q.mu.Lock()
	now := q.now()
	event := EventFileCompleted
	if err != nil {
		it.Status = StatusFailed
		it.FailedAt = &now
		it.Error = err.Error()
		q.failed++
		event = EventFileFailed
	} else {
		it.Status = StatusCompleted
		it.CompletedAt = &now
		q.completed++
	}
	if q.current == it {
		q.current = nil
	}
	q.history = append(q.history, it)
	if len(q.history) > historySize {
		q.history = q.history[len(q.history)-historySize:]
	}
	snapshot := *it
	q.mu.Unlock()

	q.publish(event, snapshot)
}

// Subscribe registers fn for event and returns a func that removes it.
func (q *Queue) Subscribe(event Event, fn Handler) func() {
	q.subMu.Lock()
	defer q.subMu.Unlock()

	id := q.nextSub
	q.nextSub++
	if q.subs[event] == nil {
		q.subs[event] = make(map[int]Handler)
	}
	q.subs[event][id] = fn

	return func() {
		q.subMu.Lock()
		defer q.subMu.Unlock()
		delete(q.subs[event], id)
	}
}

// publish calls subscribers outside the subscriber lock.
func (q *Queue) publish(event Event, item Item) {
	q.subMu.Lock()
	handlers := make([]Handler, 0, len(q.subs[event]))
	for _, h := range q.subs[event] {
		handlers = append(handlers, h)
	}
	q.subMu.Unlock()

	for _, h := range handlers {
		h(item)
	}
}
