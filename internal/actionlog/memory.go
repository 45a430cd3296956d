// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package actionlog

import (
	"context"
	"sync"
)

// MemoryWriter keeps entries in memory. Used by tests and the in-memory
// storage backend.
type MemoryWriter struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryWriter creates an empty in-memory writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

// WriteSync appends the entry.
func (w *MemoryWriter) WriteSync(_ context.Context, entry Entry) error {
	w.mu.Lock()
	w.entries = append(w.entries, entry)
	w.mu.Unlock()
	return nil
}

// Entries returns a copy of everything written so far, oldest first.
func (w *MemoryWriter) Entries() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Close is a no-op.
func (w *MemoryWriter) Close() error { return nil }

var _ Writer = (*MemoryWriter)(nil)
