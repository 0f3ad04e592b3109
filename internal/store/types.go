// Package store keeps embedded chunks in an HNSW graph, persists the graph
// next to a versioned manifest, and records which files are indexed.
package store

import (
	"strings"

	"github.com/Aman-CERP/amandocs/internal/chunk"
)

// Persisted artifact names inside a collection directory.
const (
	GraphFile    = "index.hnsw"
	ManifestFile = "index.manifest"
	RegistryFile = "registry.db"
	LockFile     = ".lock"
)

// SchemaVersion is written into every manifest. A manifest with any other
// version is rejected on load.
const SchemaVersion = 1

// Result is a single search hit.
type Result struct {
	Chunk    chunk.Chunk
	Score    float32 // 1 / (1 + distance)
	Distance float32
	Keywords []string // query keywords, for highlighting
}

// Filter restricts search results. The zero value matches everything.
type Filter struct {
	// PathPrefixes keeps chunks whose SourcePath starts with any prefix.
	PathPrefixes []string
	// SheetName keeps chunks from the named sheet only.
	SheetName string
}

// Empty reports whether the filter matches everything.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.PathPrefixes) == 0 && f.SheetName == "")
}

// Match reports whether c passes the filter.
func (f *Filter) Match(c chunk.Chunk) bool {
	if f.Empty() {
		return true
	}
	if f.SheetName != "" && c.SheetName != f.SheetName {
		return false
	}
	if len(f.PathPrefixes) == 0 {
		return true
	}
	for _, p := range f.PathPrefixes {
		if strings.HasPrefix(c.SourcePath, p) {
			return true
		}
	}
	return false
}

// Entry is a stored chunk together with its vector.
type Entry struct {
	Chunk  chunk.Chunk
	Vector []float32
}

// manifest is the gob-encoded companion of the graph export.
type manifest struct {
	SchemaVersion int
	Dimension     int
	Model         string
	NextID        uint64
	Entries       map[uint64]Entry
	Order         []uint64
}
