package ingest

import (
	"context"
	"log/slog"
	"time"
)

// InconsistencyType categorizes a mismatch between the index and the registry.
type InconsistencyType int

const (
	// InconsistencyOrphanChunks marks chunks whose path has no registry record.
	InconsistencyOrphanChunks InconsistencyType = iota
	// InconsistencyMissingChunks marks a record whose chunks are not in the index.
	InconsistencyMissingChunks
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanChunks:
		return "orphan_chunks"
	case InconsistencyMissingChunks:
		return "missing_chunks"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected mismatch.
type Inconsistency struct {
	Type InconsistencyType
	Path string
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// Check compares the registry with the paths present in the index.
//
// The registry is written on every ingest while the index is flushed
// periodically, so after a crash the two can disagree.
func (f *Facade) Check(ctx context.Context) (*CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.check(ctx)
}

func (f *Facade) check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	records, err := f.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	indexed := make(map[string]bool)
	for _, p := range f.index.Paths() {
		indexed[p] = true
	}
	registered := make(map[string]bool, len(records))

	var issues []Inconsistency
	for _, rec := range records {
		registered[rec.FilePath] = true
		if rec.ChunkCount > 0 && !indexed[rec.FilePath] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingChunks, Path: rec.FilePath})
		}
	}
	for p := range indexed {
		if !registered[p] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanChunks, Path: p})
		}
	}

	return &CheckResult{
		Checked:         len(records) + len(indexed),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Reconcile checks and repairs: orphan chunks are deleted from the index and
// records without chunks are dropped from the registry, so the files are
// picked up again by the next upload.
func (f *Facade) Reconcile(ctx context.Context) (*CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result, err := f.check(ctx)
	if err != nil {
		return nil, err
	}

	var orphans, missing []string
	for _, issue := range result.Inconsistencies {
		switch issue.Type {
		case InconsistencyOrphanChunks:
			orphans = append(orphans, issue.Path)
		case InconsistencyMissingChunks:
			missing = append(missing, issue.Path)
		}
	}

	if len(orphans) > 0 {
		removed := f.index.DeleteByPaths(orphans)
		slog.Info("deleted orphan chunks",
			slog.String("collection", f.name),
			slog.Int("paths", len(orphans)),
			slog.Int("chunks", removed))
	}
	if len(missing) > 0 {
		if _, err := f.registry.Delete(ctx, missing); err != nil {
			slog.Warn("failed to drop records without chunks",
				slog.String("collection", f.name),
				slog.Int("count", len(missing)),
				slog.String("error", err.Error()))
		} else {
			slog.Warn("dropped records without chunks, re-upload to restore them",
				slog.String("collection", f.name),
				slog.Int("count", len(missing)))
		}
	}

	return result, nil
}
