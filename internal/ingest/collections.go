package ingest

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// OpenFunc opens the facade for a collection stored in dir.
type OpenFunc func(name, dir string) (*Facade, error)

type collection struct {
	facade *Facade
	err    error
}

// Collections is a registry of facades keyed by collection name. Each
// collection lives in <root>/<name>. A failed open is remembered and
// returned until Reset.
type Collections struct {
	mu      sync.Mutex
	root    string
	open    OpenFunc
	entries map[string]*collection
}

// NewCollections creates an empty registry rooted at root.
func NewCollections(root string, open OpenFunc) *Collections {
	return &Collections{
		root:    root,
		open:    open,
		entries: make(map[string]*collection),
	}
}

// ValidateName rejects names that are not safe directory names.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return amerrors.ValidationError(fmt.Sprintf("invalid collection name %q", name), nil).
			WithSuggestion("use letters, digits, '.', '_' or '-'")
	}
	return nil
}

// Open returns the facade for name, opening it on first use.
func (c *Collections) Open(name string) (*Facade, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[name]; ok {
		return e.facade, e.err
	}

	dir := filepath.Join(c.root, name)
	f, err := c.open(name, dir)
	if err != nil {
		err = amerrors.New(amerrors.ErrCodeCollectionFailed,
			fmt.Sprintf("failed to open collection %s", name), err).WithDetail("collection", name)
		slog.Error("collection_open_failed",
			slog.String("collection", name),
			slog.String("error", err.Error()))
		c.entries[name] = &collection{err: err}
		return nil, err
	}

	c.entries[name] = &collection{facade: f}
	return f, nil
}

// Get returns an already opened facade, or the error recorded for it.
func (c *Collections) Get(name string) (*Facade, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return nil, amerrors.New(amerrors.ErrCodeCollectionFailed,
			fmt.Sprintf("collection %s is not open", name), nil).WithDetail("collection", name)
	}
	return e.facade, e.err
}

// Reset closes name and forgets any recorded error, so the next Open retries.
func (c *Collections) Reset(name string) error {
	c.mu.Lock()
	e, ok := c.entries[name]
	delete(c.entries, name)
	c.mu.Unlock()

	if !ok || e.facade == nil {
		return nil
	}
	return e.facade.Close()
}

// Names lists opened collections, including failed ones, sorted.
func (c *Collections) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Collections) facades() []*Facade {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Facade, 0, len(c.entries))
	for _, e := range c.entries {
		if e.facade != nil {
			out = append(out, e.facade)
		}
	}
	return out
}

// FlushAll saves every dirty collection and returns how many were saved.
func (c *Collections) FlushAll() (int, error) {
	var errs []error
	flushed := 0
	for _, f := range c.facades() {
		if !f.Dirty() {
			continue
		}
		if err := f.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", f.Name(), err))
			continue
		}
		flushed++
	}
	return flushed, stderrors.Join(errs...)
}

// CloseAll flushes and closes every open collection.
func (c *Collections) CloseAll() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*collection)
	c.mu.Unlock()

	var errs []error
	for name, e := range entries {
		if e.facade == nil {
			continue
		}
		if err := e.facade.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return stderrors.Join(errs...)
}
