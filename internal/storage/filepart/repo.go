// Package filepart implements a storage.Repository that writes rollup rows
// as partitioned newline-delimited JSON under a destination directory. The
// layout mirrors the snapshot directories the reader consumes: numbered
// part files plus a _SUCCESS marker written on Close.
package filepart

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"searchrollup/internal/storage"
)

// DefaultPartitions is the shard count used when the config leaves
// Partitions unset.
const DefaultPartitions = 10

const successMarker = "_SUCCESS"

func init() {
	storage.Register("filepart", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(cfg)
	})
}

type partWriter struct {
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

// Repository writes rows round-robin across a fixed set of part files.
type Repository struct {
	cfg   storage.Config
	dir   string
	parts []*partWriter
	next  int
}

// NewRepository constructs a Repository targeting cfg.Path. Nothing touches
// the filesystem until Prepare runs.
func NewRepository(cfg storage.Config) (*Repository, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("filepart: path must not be empty")
	}
	if cfg.Partitions < 0 {
		return nil, fmt.Errorf("filepart: partitions must not be negative, got %d", cfg.Partitions)
	}
	if cfg.Partitions == 0 {
		cfg.Partitions = DefaultPartitions
	}
	return &Repository{cfg: cfg, dir: cfg.Path}, nil
}

// Prepare enforces the save mode against the destination directory and opens
// the part files.
//
//   - error: fail with ErrDestinationExists when the directory already holds data.
//   - overwrite: remove the directory and start fresh.
//   - append: keep existing part files and add new ones alongside.
func (r *Repository) Prepare(ctx context.Context) error {
	entries, err := os.ReadDir(r.dir)
	switch {
	case os.IsNotExist(err):
		// Fresh destination.
	case err != nil:
		return fmt.Errorf("filepart: inspect %s: %w", r.dir, err)
	case len(entries) > 0:
		switch r.cfg.SaveMode {
		case storage.SaveModeError:
			return fmt.Errorf("filepart: directory %s: %w", r.dir, storage.ErrDestinationExists)
		case storage.SaveModeOverwrite:
			if err := os.RemoveAll(r.dir); err != nil {
				return fmt.Errorf("filepart: clear %s: %w", r.dir, err)
			}
		case storage.SaveModeAppend:
			// Existing parts stay; a stale marker is dropped so readers do
			// not see a half-appended snapshot as complete.
			if err := os.Remove(filepath.Join(r.dir, successMarker)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("filepart: remove marker: %w", err)
			}
		}
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("filepart: mkdir %s: %w", r.dir, err)
	}

	start, err := r.nextPartIndex()
	if err != nil {
		return err
	}

	r.parts = make([]*partWriter, r.cfg.Partitions)
	for i := range r.parts {
		name := filepath.Join(r.dir, fmt.Sprintf("part-%05d.json", start+i))
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			r.closeParts()
			return fmt.Errorf("filepart: open %s: %w", name, err)
		}
		buf := bufio.NewWriter(f)
		r.parts[i] = &partWriter{f: f, buf: buf, enc: json.NewEncoder(buf)}
	}
	return nil
}

// nextPartIndex finds the first free part number so append mode never
// clobbers existing shards.
func (r *Repository) nextPartIndex() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("filepart: inspect %s: %w", r.dir, err)
	}
	next := 0
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), "part-%05d.json", &n); err == nil && n >= next {
			next = n + 1
		}
	}
	return next, nil
}

// CopyFrom writes each row as a JSON object keyed by column name,
// distributing rows round-robin across the part files.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if r.parts == nil {
		return 0, fmt.Errorf("filepart: CopyFrom before Prepare")
	}
	var written int64
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if len(row) != len(columns) {
			return written, fmt.Errorf("filepart: row %d has %d values, want %d", i, len(row), len(columns))
		}
		obj := make(map[string]any, len(columns))
		for j, c := range columns {
			obj[c] = row[j]
		}
		p := r.parts[r.next]
		r.next = (r.next + 1) % len(r.parts)
		if err := p.enc.Encode(obj); err != nil {
			return written, fmt.Errorf("filepart: encode row %d: %w", i, err)
		}
		written++
	}
	return written, nil
}

// Close flushes and closes every part file, then writes the _SUCCESS marker.
// The marker only appears when every shard closed cleanly.
func (r *Repository) Close() error {
	if r.parts == nil {
		return nil
	}
	var firstErr error
	for _, p := range r.parts {
		if err := p.buf.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("filepart: flush: %w", err)
		}
		if err := p.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("filepart: close: %w", err)
		}
	}
	r.parts = nil
	if firstErr != nil {
		return firstErr
	}
	if err := os.WriteFile(filepath.Join(r.dir, successMarker), nil, 0o644); err != nil {
		return fmt.Errorf("filepart: write marker: %w", err)
	}
	return nil
}

func (r *Repository) closeParts() {
	for _, p := range r.parts {
		if p != nil {
			_ = p.f.Close()
		}
	}
	r.parts = nil
}
