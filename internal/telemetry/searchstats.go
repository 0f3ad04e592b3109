package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a coarse latency class shown by the status command.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// SearchEvent is one search as seen by SearchStats.
type SearchEvent struct {
	Collection string
	Query      string
	Results    int
	Latency    time.Duration
}

// Ring is a fixed-capacity FIFO that evicts the oldest item.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewRing creates a ring of the given capacity (100 when not positive).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends item, evicting the oldest when full.
func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Items returns the contents oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	if r.size < r.capacity {
		copy(out, r.items[:r.size])
		return out
	}
	copy(out, r.items[r.head:])
	copy(out[r.capacity-r.head:], r.items[:r.head])
	return out
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// ExtractTerms lowercases the query and keeps words of three or more runes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(w)) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// SearchSnapshot is a point-in-time copy of SearchStats.
type SearchSnapshot struct {
	Total         int64                   `json:"total"`
	Empty         int64                   `json:"empty"`
	Repeats       int64                   `json:"repeats"`
	PerCollection map[string]int64        `json:"per_collection"`
	Latency       map[LatencyBucket]int64 `json:"latency"`
	TopTerms      []TermCount             `json:"top_terms"`
	EmptyQueries  []string                `json:"empty_queries"`
	Since         time.Time               `json:"since"`
}

// EmptyRate is the fraction of searches that returned nothing.
func (s SearchSnapshot) EmptyRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Empty) / float64(s.Total)
}

// SearchStats aggregates search activity in memory. Safe for concurrent use.
type SearchStats struct {
	mu        sync.Mutex
	total     int64
	empty     int64
	repeats   int64
	perColl   map[string]int64
	latency   map[LatencyBucket]int64
	terms     *lru.Cache[string, int64]
	recent    *lru.Cache[string, struct{}]
	emptyRing *Ring[string]
	since     time.Time
}

// NewSearchStats tracks up to termCap distinct terms and the last emptyCap
// queries that found nothing.
func NewSearchStats(termCap, emptyCap int) *SearchStats {
	if termCap <= 0 {
		termCap = 100
	}
	terms, _ := lru.New[string, int64](termCap)
	recent, _ := lru.New[string, struct{}](500)
	return &SearchStats{
		perColl:   make(map[string]int64),
		latency:   make(map[LatencyBucket]int64),
		terms:     terms,
		recent:    recent,
		emptyRing: NewRing[string](emptyCap),
		since:     time.Now(),
	}
}

// Record adds one search.
func (s *SearchStats) Record(ev SearchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.perColl[ev.Collection]++
	s.latency[LatencyToBucket(ev.Latency)]++
	for _, term := range ExtractTerms(ev.Query) {
		n, _ := s.terms.Get(term)
		s.terms.Add(term, n+1)
	}
	if ev.Results == 0 {
		s.empty++
		s.emptyRing.Add(ev.Query)
	}

	key := hashQuery(ev.Collection + "\x00" + ev.Query)
	if _, ok := s.recent.Get(key); ok {
		s.repeats++
	}
	s.recent.Add(key, struct{}{})
}

func hashQuery(q string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(q))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot copies the current aggregates. TopTerms holds at most 10 terms.
func (s *SearchStats) Snapshot() SearchSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SearchSnapshot{
		Total:         s.total,
		Empty:         s.empty,
		Repeats:       s.repeats,
		PerCollection: make(map[string]int64, len(s.perColl)),
		Latency:       make(map[LatencyBucket]int64, len(s.latency)),
		EmptyQueries:  s.emptyRing.Items(),
		Since:         s.since,
	}
	for k, v := range s.perColl {
		snap.PerCollection[k] = v
	}
	for k, v := range s.latency {
		snap.Latency[k] = v
	}
	for _, term := range s.terms.Keys() {
		if n, ok := s.terms.Peek(term); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	sort.Slice(snap.TopTerms, func(i, j int) bool {
		if snap.TopTerms[i].Count != snap.TopTerms[j].Count {
			return snap.TopTerms[i].Count > snap.TopTerms[j].Count
		}
		return snap.TopTerms[i].Term < snap.TopTerms[j].Term
	})
	if len(snap.TopTerms) > 10 {
		snap.TopTerms = snap.TopTerms[:10]
	}
	return snap
}
