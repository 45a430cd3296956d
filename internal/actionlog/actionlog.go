// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

// Package actionlog records an audit trail of permission mutations.
package actionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/permforge/permforge/internal/xdg"
)

// TargetType identifies what kind of holder a mutation acted on.
type TargetType string

// Target types.
const (
	TargetUser  TargetType = "user"
	TargetGroup TargetType = "group"
	TargetTrack TargetType = "track"
)

// Entry is one audited mutation. The ULID doubles as timestamp and sort key.
type Entry struct {
	ID         ulid.ULID  `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Actor      string     `json:"actor"`
	TargetType TargetType `json:"target_type"`
	Target     string     `json:"target"`
	Action     string     `json:"action"`
}

// NewEntry stamps a fresh entry with a ULID and the current time.
func NewEntry(actor string, targetType TargetType, target, action string) Entry {
	return Entry{
		ID:         ulid.Make(),
		Timestamp:  time.Now().UTC(),
		Actor:      actor,
		TargetType: targetType,
		Target:     strings.ToLower(target),
		Action:     action,
	}
}

// Writer persists entries to a backend.
type Writer interface {
	WriteSync(ctx context.Context, entry Entry) error
	Close() error
}

// Logger accepts entries without blocking mutators. Writes go through a
// buffered channel to a consumer goroutine; when the channel is full the
// entry is dropped and counted rather than stalling the mutation path.
type Logger struct {
	writer    Writer
	walPath   string
	walFile   *os.File
	walMu     sync.Mutex
	asyncChan chan Entry
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewLogger creates a Logger writing through the given backend. If walPath
// is empty, a default path in the XDG state directory is used for the
// fallback log.
func NewLogger(writer Writer, walPath string) *Logger {
	if walPath == "" {
		stateDir := xdg.StateDir()
		if err := xdg.EnsureDir(stateDir); err != nil {
			slog.Error("failed to ensure state directory", "error", err)
			walPath = filepath.Join(os.TempDir(), "permforge-actionlog-wal.jsonl")
		} else {
			walPath = filepath.Join(stateDir, "actionlog-wal.jsonl")
		}
	}

	l := &Logger{
		writer:    writer,
		walPath:   walPath,
		asyncChan: make(chan Entry, 1000),
		stopChan:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.consume()
	return l
}

// Submit queues an entry for writing. Never blocks; a full queue drops the
// entry and increments the overflow counter.
func (l *Logger) Submit(entry Entry) {
	select {
	case l.asyncChan <- entry:
		queuedGauge.Inc()
	default:
		droppedCounter.Inc()
	}
}

func (l *Logger) consume() {
	defer l.wg.Done()
	for {
		select {
		case entry := <-l.asyncChan:
			l.write(entry)
		case <-l.stopChan:
			l.drain()
			return
		}
	}
}

func (l *Logger) drain() {
	for {
		select {
		case entry := <-l.asyncChan:
			l.write(entry)
		default:
			return
		}
	}
}

func (l *Logger) write(entry Entry) {
	queuedGauge.Dec()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.writer.WriteSync(ctx, entry); err == nil {
		return
	} else if walErr := l.writeToWAL(entry); walErr != nil {
		slog.Error("action log write failed: both backend and WAL failed",
			"backend_error", err,
			"wal_error", walErr,
			"actor", entry.Actor,
			"target", entry.Target,
			"action", entry.Action,
		)
		failuresCounter.WithLabelValues("wal_failed").Inc()
	}
}

// writeToWAL appends an entry to the local fallback log.
func (l *Logger) writeToWAL(entry Entry) error {
	l.walMu.Lock()
	defer l.walMu.Unlock()

	if l.walFile == nil {
		file, err := os.OpenFile(l.walPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY|os.O_SYNC, 0o600)
		if err != nil {
			return oops.With("path", l.walPath).Wrap(err)
		}
		l.walFile = file
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return oops.Wrap(err)
	}
	if _, err := fmt.Fprintf(l.walFile, "%s\n", data); err != nil {
		return oops.Wrap(err)
	}
	return nil
}

// ReplayWAL pushes locally spooled entries back through the writer and
// truncates the fallback log on success. Call at startup once the backend
// is reachable.
func (l *Logger) ReplayWAL(ctx context.Context) error {
	l.walMu.Lock()
	defer l.walMu.Unlock()

	data, err := os.ReadFile(l.walPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return oops.With("path", l.walPath).Wrap(err)
	}

	replayed := 0
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			slog.Error("failed to unmarshal WAL entry", "error", err)
			failuresCounter.WithLabelValues("wal_unmarshal_failed").Inc()
			continue
		}
		if err := l.writer.WriteSync(ctx, entry); err != nil {
			slog.Error("failed to replay WAL entry", "error", err, "id", entry.ID.String())
			failuresCounter.WithLabelValues("wal_replay_failed").Inc()
			continue
		}
		replayed++
	}

	if err := os.Truncate(l.walPath, 0); err != nil {
		return oops.With("path", l.walPath).Wrap(err)
	}
	if replayed > 0 {
		slog.Info("replayed action log WAL entries", "count", replayed)
	}
	return nil
}

// Close drains the queue and shuts down the writer.
func (l *Logger) Close() error {
	close(l.stopChan)
	l.wg.Wait()

	if err := l.writer.Close(); err != nil {
		return oops.Wrap(err)
	}

	l.walMu.Lock()
	defer l.walMu.Unlock()
	if l.walFile != nil {
		if err := l.walFile.Close(); err != nil {
			return oops.Wrap(err)
		}
		l.walFile = nil
	}
	return nil
}
