// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package actionlog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dbIface is the slice of pgxpool.Pool the writer needs; pgxmock satisfies it.
type dbIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresWriter persists entries to the action_log table.
type PostgresWriter struct {
	db dbIface
}

// NewPostgresWriter creates a writer on an existing connection pool. The
// pool's lifecycle belongs to the caller; Close here is a no-op.
func NewPostgresWriter(db dbIface) *PostgresWriter {
	return &PostgresWriter{db: db}
}

// WriteSync inserts one entry.
func (w *PostgresWriter) WriteSync(ctx context.Context, entry Entry) error {
	_, err := w.db.Exec(ctx,
		`INSERT INTO action_log (id, occurred_at, actor, target_type, target, action)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID.String(),
		entry.Timestamp,
		entry.Actor,
		string(entry.TargetType),
		entry.Target,
		entry.Action,
	)
	if err != nil {
		return oops.Code("ACTIONLOG_WRITE_FAILED").
			With("id", entry.ID.String()).
			With("target", entry.Target).
			Wrap(err)
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (w *PostgresWriter) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := w.db.Query(ctx,
		`SELECT id, occurred_at, actor, target_type, target, action
		 FROM action_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, oops.Code("ACTIONLOG_QUERY_FAILED").Wrap(err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForTarget returns entries touching one holder or track, newest first.
func (w *PostgresWriter) ForTarget(ctx context.Context, targetType TargetType, target string, limit int) ([]Entry, error) {
	rows, err := w.db.Query(ctx,
		`SELECT id, occurred_at, actor, target_type, target, action
		 FROM action_log WHERE target_type = $1 AND target = $2
		 ORDER BY id DESC LIMIT $3`,
		string(targetType), target, limit)
	if err != nil {
		return nil, oops.Code("ACTIONLOG_QUERY_FAILED").With("target", target).Wrap(err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			idStr      string
			targetType string
			ts         time.Time
		)
		if err := rows.Scan(&idStr, &ts, &e.Actor, &targetType, &e.Target, &e.Action); err != nil {
			return nil, oops.Code("ACTIONLOG_SCAN_FAILED").Wrap(err)
		}
		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("ACTIONLOG_SCAN_FAILED").With("id", idStr).Wrap(err)
		}
		e.ID = id
		e.Timestamp = ts
		e.TargetType = TargetType(targetType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACTIONLOG_SCAN_FAILED").Wrap(err)
	}
	return out, nil
}

// Close is a no-op; the pool is owned by the caller.
func (w *PostgresWriter) Close() error { return nil }

var _ Writer = (*PostgresWriter)(nil)
