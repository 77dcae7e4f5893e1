// Package storage contains storage-agnostic contracts and utilities for
// persisting rollup output: the Repository interface, the backend factory
// registry, save-mode semantics, and a generic batched writer.
//
// Concrete backends (filepart, sqlite, postgres) live in subpackages and
// register themselves at init time; importing internal/storage/all wires
// them all in.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// SaveMode controls what happens when the destination already holds data.
type SaveMode string

const (
	// SaveModeError fails the run without writing anything when the
	// destination is already populated. This is the default: the job is
	// re-run wholesale by a scheduler, and a populated destination means a
	// previous run already succeeded.
	SaveModeError SaveMode = "error"
	// SaveModeOverwrite clears the destination before writing.
	SaveModeOverwrite SaveMode = "overwrite"
	// SaveModeAppend adds rows alongside whatever is already there.
	SaveModeAppend SaveMode = "append"
)

// ValidSaveMode reports whether s is one of the supported modes.
func ValidSaveMode(s SaveMode) bool {
	switch s {
	case SaveModeError, SaveModeOverwrite, SaveModeAppend:
		return true
	}
	return false
}

// ErrDestinationExists is returned by Prepare under SaveModeError when the
// destination is already populated. Nothing has been written when this
// surfaces.
var ErrDestinationExists = errors.New("destination already exists")

// ColumnType is the logical type of an output column, mapped to a concrete
// SQL type by each backend.
type ColumnType string

const (
	ColumnText    ColumnType = "text"
	ColumnInteger ColumnType = "integer"
	ColumnReal    ColumnType = "real"
)

// Column describes one output column of the rollup table.
type Column struct {
	Name string
	Type ColumnType
}

// Config selects and configures a storage backend. Not every field applies
// to every kind: DSN/Table drive the SQL backends, Path/Partitions drive the
// file backend.
type Config struct {
	Kind       string
	DSN        string
	Table      string
	Schema     []Column
	SaveMode   SaveMode
	Path       string
	Partitions int
}

// Columns returns the schema's column names in order.
func (c Config) Columns() []string {
	names := make([]string, len(c.Schema))
	for i, col := range c.Schema {
		names[i] = col.Name
	}
	return names
}

// Repository is a write-only sink for rollup rows.
//
// Prepare applies the save-mode policy against the destination and performs
// any one-time setup (creating the table, the output directory, ...). It
// must be called exactly once, before the first CopyFrom. CopyFrom inserts
// a batch of rows aligned to the configured columns and returns how many
// rows it wrote.
type Repository interface {
	Prepare(ctx context.Context) error
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	Close() error
}

// Factory builds a Repository from a Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for a storage kind. It is
// called from backend packages' init functions.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New builds the Repository for cfg.Kind, or fails when no backend is
// registered for it.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if !ValidSaveMode(cfg.SaveMode) {
		return nil, fmt.Errorf("unsupported save mode %q", cfg.SaveMode)
	}
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered backend kinds, sorted.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
