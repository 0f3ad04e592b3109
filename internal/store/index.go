package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/amandocs/internal/chunk"
	"github.com/Aman-CERP/amandocs/internal/embed"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/textenc"
)

// Graph parameters.
const (
	DefaultM        = 16
	DefaultEfSearch = 20
	defaultMl       = 0.25

	// filterOverFetch multiplies k when a filter may discard hits.
	filterOverFetch = 4
)

// Options configures an Index.
type Options struct {
	Embedder embed.Embedder   // required
	Keywords KeywordExtractor // optional
	M        int
	EfSearch int
}

// Index is an HNSW vector index over chunks.
//
// Every entry has exactly one graph node with the same key, and order lists
// the keys in insertion order. Deletions rebuild the graph from the surviving
// vectors so no orphaned node can be returned by a search.
type Index struct {
	mu       sync.RWMutex
	embedder embed.Embedder
	keywords KeywordExtractor
	dim      int
	m        int
	efSearch int

	graph   *hnsw.Graph[uint64]
	entries map[uint64]Entry
	order   []uint64
	nextID  uint64
	dirty   bool

	dir  string
	lock *DirLock
}

// New creates an empty in-memory index.
func New(opts Options) (*Index, error) {
	if opts.Embedder == nil {
		return nil, amerrors.ValidationError("index requires an embedder", nil)
	}
	dim := opts.Embedder.Dimensions()
	if dim <= 0 || dim > embed.MaxDimensions {
		return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding dimension %d outside 1..%d", dim, embed.MaxDimensions), nil)
	}
	if opts.M <= 0 {
		opts.M = DefaultM
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = DefaultEfSearch
	}

	idx := &Index{
		embedder: opts.Embedder,
		keywords: opts.Keywords,
		dim:      dim,
		m:        opts.M,
		efSearch: opts.EfSearch,
	}
	idx.reset()
	return idx, nil
}

// Open locks dir, then loads the index persisted there. A directory with no
// artifacts yields an empty index. Close releases the lock.
func Open(dir string, opts Options) (*Index, error) {
	idx, err := New(opts)
	if err != nil {
		return nil, err
	}

	lock := NewDirLock(dir)
	if err := lock.TryLock(); err != nil {
		return nil, err
	}
	if err := idx.Load(dir); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	idx.dir = dir
	idx.lock = lock
	return idx, nil
}

func (s *Index) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = s.m
	g.EfSearch = s.efSearch
	g.Ml = defaultMl
	return g
}

// reset replaces graph and entries with empty instances. Caller holds mu.
func (s *Index) reset() {
	s.graph = s.newGraph()
	s.entries = make(map[uint64]Entry)
	s.order = nil
	s.nextID = 0
}

// Add embeds and stores a single chunk.
func (s *Index) Add(ctx context.Context, c chunk.Chunk) error {
	return s.AddAll(ctx, []chunk.Chunk{c})
}

// AddAll embeds chunks in one batch and stores them under fresh ids.
// Chunks are not deduplicated.
func (s *Index) AddAll(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := s.embed(ctx, chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.graph.Add(s.insert(chunks, vectors)...)
	s.dirty = true
	return nil
}

// Replace swaps the chunks stored for path with chunks. Embedding happens
// before anything is removed, so a failed or cancelled embed leaves the old
// chunks in place. It returns the number of chunks removed.
func (s *Index) Replace(ctx context.Context, path string, chunks []chunk.Chunk) (int, error) {
	var vectors [][]float32
	if len(chunks) > 0 {
		var err error
		if vectors, err = s.embed(ctx, chunks); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]uint64, 0, len(s.order))
	removed := 0
	for _, id := range s.order {
		if s.entries[id].Chunk.SourcePath == path {
			delete(s.entries, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	if removed == 0 && len(chunks) == 0 {
		return 0, nil
	}
	s.order = kept

	nodes := s.insert(chunks, vectors)
	if removed > 0 {
		s.rebuild()
	} else {
		s.graph.Add(nodes...)
	}
	s.dirty = true
	return removed, nil
}

// embed returns one validated vector per chunk.
func (s *Index) embed(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, amerrors.Wrap(amerrors.ErrCodeEmbeddingFailed, err)
	}
	if len(vectors) != len(chunks) {
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)), nil)
	}
	for _, v := range vectors {
		if len(v) != s.dim {
			return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", s.dim, len(v)), nil)
		}
	}
	return vectors, nil
}

// insert records chunks under fresh ids and returns their graph nodes
// without adding them to the graph. Caller holds mu.
func (s *Index) insert(chunks []chunk.Chunk, vectors [][]float32) []hnsw.Node[uint64] {
	nodes := make([]hnsw.Node[uint64], len(chunks))
	for i, c := range chunks {
		id := s.nextID
		s.nextID++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])

		s.entries[id] = Entry{Chunk: c, Vector: vec}
		s.order = append(s.order, id)
		nodes[i] = hnsw.MakeNode(id, vec)
	}
	return nodes
}

// DeleteByPaths removes every chunk whose SourcePath is in paths and
// rebuilds the graph from what remains. It returns the number of chunks removed.
func (s *Index) DeleteByPaths(paths []string) int {
	if len(paths) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]uint64, 0, len(s.order))
	removed := 0
	for _, id := range s.order {
		if _, ok := set[s.entries[id].Chunk.SourcePath]; ok {
			delete(s.entries, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	if removed == 0 {
		return 0
	}

	s.order = kept
	s.rebuild()
	s.dirty = true
	return removed
}

// rebuild recreates the graph from entries in order. Caller holds mu.
func (s *Index) rebuild() {
	g := s.newGraph()
	if len(s.order) > 0 {
		nodes := make([]hnsw.Node[uint64], 0, len(s.order))
		for _, id := range s.order {
			nodes = append(nodes, hnsw.MakeNode(id, s.entries[id].Vector))
		}
		g.Add(nodes...)
	}
	s.graph = g
}

// DeleteAll empties the index.
func (s *Index) DeleteAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.dirty = true
}

// Search returns up to k chunks nearest to query, best first.
// A non-empty filter over-fetches before filtering.
func (s *Index) Search(ctx context.Context, query string, k int, filter *Filter) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, amerrors.Wrap(amerrors.ErrCodeEmbeddingFailed, err)
	}
	if len(qvec) != s.dim {
		return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query embedding has %d dimensions, index has %d", len(qvec), s.dim), nil)
	}

	var keywords []string
	if s.keywords != nil {
		keywords = s.keywords.Keywords(query)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Len() == 0 {
		return []Result{}, nil
	}

	fetch := k
	if !filter.Empty() {
		fetch = k * filterOverFetch
	}

	nodes := s.graph.Search(qvec, fetch)
	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		entry, ok := s.entries[node.Key]
		if !ok {
			continue
		}
		if !filter.Match(entry.Chunk) {
			continue
		}

		distance := s.graph.Distance(qvec, node.Value)
		c := entry.Chunk
		c.Text = textenc.Normalize(c.Text)
		c.SourcePath = textenc.Normalize(c.SourcePath)
		c.SheetName = textenc.Normalize(c.SheetName)

		results = append(results, Result{
			Chunk:    c,
			Distance: distance,
			Score:    distanceToScore(distance),
			Keywords: keywords,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (s *Index) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// GraphLen returns the number of graph nodes. It always equals Count.
func (s *Index) GraphLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Len()
}

// Dimension returns the vector dimension.
func (s *Index) Dimension() int {
	return s.dim
}

// EstimateSize approximates vector memory in bytes.
func (s *Index) EstimateSize() int64 {
	return int64(s.Count()) * int64(s.dim) * 4
}

// Paths returns the distinct source paths, sorted.
func (s *Index) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{})
	for _, e := range s.entries {
		set[e.Chunk.SourcePath] = struct{}{}
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Chunks returns the stored chunks of path in insertion order.
func (s *Index) Chunks(path string) []chunk.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []chunk.Chunk
	for _, id := range s.order {
		if e := s.entries[id]; e.Chunk.SourcePath == path {
			out = append(out, e.Chunk)
		}
	}
	return out
}

// Dirty reports whether there are unsaved changes.
func (s *Index) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Dir returns the directory the index was opened from, if any.
func (s *Index) Dir() string {
	return s.dir
}

// Flush saves to the directory the index was opened from when there are
// unsaved changes.
func (s *Index) Flush() error {
	if s.dir == "" || !s.Dirty() {
		return nil
	}
	return s.Save(s.dir)
}

// Close flushes and releases the directory lock.
func (s *Index) Close() error {
	err := s.Flush()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}

// Save writes the graph export and manifest into dir. Both are written to
// temp files first and renamed only once both encoded successfully.
func (s *Index) Save(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	graphPath := filepath.Join(dir, GraphFile)
	manifestPath := filepath.Join(dir, ManifestFile)
	graphTmp := graphPath + ".tmp"
	manifestTmp := manifestPath + ".tmp"

	if err := writeFile(graphTmp, func(f *os.File) error { return s.graph.Export(f) }); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}

	m := manifest{
		SchemaVersion: SchemaVersion,
		Dimension:     s.dim,
		Model:         s.embedder.ModelName(),
		NextID:        s.nextID,
		Entries:       s.entries,
		Order:         s.order,
	}
	if err := writeFile(manifestTmp, func(f *os.File) error { return gob.NewEncoder(f).Encode(m) }); err != nil {
		os.Remove(graphTmp)
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := os.Rename(graphTmp, graphPath); err != nil {
		os.Remove(graphTmp)
		os.Remove(manifestTmp)
		return fmt.Errorf("failed to rename graph file: %w", err)
	}
	if err := os.Rename(manifestTmp, manifestPath); err != nil {
		os.Remove(manifestTmp)
		return fmt.Errorf("failed to rename manifest file: %w", err)
	}

	s.dirty = false
	slog.Debug("index_saved",
		slog.String("dir", dir),
		slog.Int("chunks", len(s.entries)))
	return nil
}

func writeFile(path string, encode func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// Load replaces the in-memory state with the artifacts in dir.
//
// Both artifacts missing is a first run and leaves the index empty. Any
// other inconsistency is reported as CorruptState and the index is unchanged.
func (s *Index) Load(dir string) error {
	graphPath := filepath.Join(dir, GraphFile)
	manifestPath := filepath.Join(dir, ManifestFile)

	graphExists, err := exists(graphPath)
	if err != nil {
		return err
	}
	manifestExists, err := exists(manifestPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !graphExists && !manifestExists:
		s.reset()
		s.dirty = false
		return nil
	case !graphExists:
		return amerrors.CorruptState(fmt.Sprintf("%s present without %s in %s", ManifestFile, GraphFile, dir), nil)
	case !manifestExists:
		return amerrors.CorruptState(fmt.Sprintf("%s present without %s in %s", GraphFile, ManifestFile, dir), nil)
	}

	m, err := readManifest(manifestPath)
	if err != nil {
		return amerrors.CorruptState(fmt.Sprintf("cannot decode %s", manifestPath), err)
	}
	if m.SchemaVersion != SchemaVersion {
		return amerrors.CorruptState(
			fmt.Sprintf("manifest schema version %d, expected %d", m.SchemaVersion, SchemaVersion), nil)
	}
	if m.Dimension != s.dim {
		return amerrors.CorruptState(
			fmt.Sprintf("index has %d dimensions, embedder produces %d", m.Dimension, s.dim), nil).
			WithSuggestion("use the embedder the collection was built with, or delete the collection and re-ingest")
	}
	if m.Model != s.embedder.ModelName() {
		slog.Warn("index_model_changed",
			slog.String("dir", dir),
			slog.String("persisted", m.Model),
			slog.String("current", s.embedder.ModelName()))
	}

	graph := s.newGraph()
	if err := importGraph(graphPath, graph); err != nil {
		return amerrors.CorruptState(fmt.Sprintf("cannot import %s", graphPath), err)
	}

	if m.Entries == nil {
		m.Entries = make(map[uint64]Entry)
	}
	if err := checkConsistency(graph, m); err != nil {
		return amerrors.CorruptState(fmt.Sprintf("inconsistent index in %s", dir), err)
	}

	s.graph = graph
	s.entries = m.Entries
	s.order = m.Order
	s.nextID = m.NextID
	s.dirty = false

	slog.Debug("index_loaded",
		slog.String("dir", dir),
		slog.Int("chunks", len(s.entries)))
	return nil
}

func readManifest(path string) (*manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m manifest
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func importGraph(path string, g *hnsw.Graph[uint64]) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Import requires an io.ByteReader
	return g.Import(bufio.NewReader(f))
}

func checkConsistency(g *hnsw.Graph[uint64], m *manifest) error {
	if g.Len() != len(m.Entries) {
		return fmt.Errorf("graph has %d nodes, manifest has %d entries", g.Len(), len(m.Entries))
	}
	if len(m.Order) != len(m.Entries) {
		return fmt.Errorf("order has %d ids, manifest has %d entries", len(m.Order), len(m.Entries))
	}
	seen := make(map[uint64]struct{}, len(m.Order))
	for _, id := range m.Order {
		e, ok := m.Entries[id]
		if !ok {
			return fmt.Errorf("order references unknown id %d", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("order repeats id %d", id)
		}
		seen[id] = struct{}{}
		if len(e.Vector) != m.Dimension {
			return fmt.Errorf("entry %d has %d dimensions", id, len(e.Vector))
		}
		if id >= m.NextID {
			return fmt.Errorf("entry %d is not below next id %d", id, m.NextID)
		}
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("cannot stat %s: %w", path, err)
}

// distanceToScore maps an L2 distance in [0, inf) to a score in (0, 1].
func distanceToScore(distance float32) float32 {
	return 1.0 / (1.0 + distance)
}
