package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListParts enumerates the part files of a snapshot directory in name order.
// Hidden files, subdirectories, and writer markers (files prefixed "_",
// e.g. "_SUCCESS") are skipped; everything else counts as a data part.
//
// The returned paths are absolute joins of dir and the entry name. A missing
// directory is an error: the caller decides whether that means "snapshot not
// produced yet" or a misconfigured path.
func ListParts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshot %s: %w", dir, err)
	}

	var parts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		parts = append(parts, filepath.Join(dir, name))
	}
	sort.Strings(parts)
	return parts, nil
}

// Snapshot returns one Local source per part file of the snapshot directory.
func Snapshot(dir string) ([]*Local, error) {
	parts, err := ListParts(dir)
	if err != nil {
		return nil, err
	}
	sources := make([]*Local, len(parts))
	for i, p := range parts {
		sources[i] = NewLocal(p)
	}
	return sources, nil
}
