// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package outputstore manages the capacity-bounded directory of generated
// diagram artifacts. The store persists by path only; it holds no in-memory
// state across batches.
package outputstore

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"
)

// Store writes and evicts files under a single output directory.
//
// Capacity is enforced by EnsureCapacity, which the batch coordinator calls
// once per batch before any variant starts. Variants write to
// variant-scoped filenames, so no locking is needed between writes.
type Store struct {
	dir      string
	relBase  string
	maxFiles int
}

// New creates a Store rooted at dir, creating the directory if needed.
// maxFiles is the eviction threshold; values below 1 disable eviction.
func New(dir string, maxFiles int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &Store{
		dir:      dir,
		relBase:  filepath.ToSlash(filepath.Clean(dir)),
		maxFiles: maxFiles,
	}, nil
}

// Dir returns the absolute or configured root of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the filesystem path for a stored file name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// RelPath returns the display/storage-relative path for a stored file name,
// e.g. "static/outputs/flowchart_output_variant1.svg". These are the paths
// surfaced in variant outcomes.
func (s *Store) RelPath(name string) string {
	return path.Join(s.relBase, name)
}

// Write persists content to name under the output directory, creating
// parent directories if absent. Writes are idempotent: an existing file is
// overwritten.
func (s *Store) Write(name string, content []byte) error {
	target := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", target, err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}

// EnsureCapacity bounds the output directory to at most maxFiles files by
// deleting the least-recently-modified excess files.
//
// Eviction is best effort: listing or deletion failures are logged and
// swallowed so cleanup never aborts a batch. Run this once per batch,
// before any variant writes, to avoid racing eviction against in-flight
// artifacts.
func (s *Store) EnsureCapacity() {
	if s.maxFiles < 1 {
		return
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Warn("Output store listing failed, skipping eviction", "dir", s.dir, "error", err)
		return
	}

	type fileAge struct {
		name    string
		modTime time.Time
	}
	files := make([]fileAge, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileAge{name: entry.Name(), modTime: info.ModTime()})
	}

	excess := len(files) - s.maxFiles
	if excess <= 0 {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	for _, f := range files[:excess] {
		if err := os.Remove(s.Path(f.name)); err != nil {
			slog.Warn("Output store eviction failed for file", "file", f.name, "error", err)
			continue
		}
		slog.Debug("Evicted old output file", "file", f.name)
	}
	slog.Info("Output store capacity enforced",
		"dir", s.dir,
		"max_files", s.maxFiles,
		"evicted", excess,
	)
}
