// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/permforge/permforge/internal/contexts"
	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/node"
	"github.com/permforge/permforge/internal/track"
)

// poolIface abstracts *pgxpool.Pool so unit tests can substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool poolIface
}

// NewPostgresStore connects to PostgreSQL and verifies the connection with a
// short exponential-backoff ping, covering the database still coming up.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	backoff := retry.WithMaxDuration(15*time.Second, retry.NewExponential(250*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return retry.RetryableError(pool.Ping(ctx))
	}); err != nil {
		pool.Close()
		return nil, oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool wraps an existing pool. Used by tests.
func NewPostgresStoreWithPool(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Querier exposes the underlying connection for auxiliary writers that share
// the pool, such as the action log.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Querier returns the store's connection pool.
func (s *PostgresStore) Querier() Querier {
	return s.pool
}

// LoadUser returns the stored user or ErrNotFound.
func (s *PostgresStore) LoadUser(ctx context.Context, id uuid.UUID) (*holder.User, error) {
	var username, primaryGroup string
	err := s.pool.QueryRow(ctx,
		`SELECT username, primary_group FROM players WHERE uuid = $1`,
		id.String()).Scan(&username, &primaryGroup)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("uuid", id.String()).Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_LOAD_FAILED").With("uuid", id.String()).Wrap(err)
	}

	ns, err := s.loadNodes(ctx,
		`SELECT key, value, server, world, contexts, expiry FROM user_nodes WHERE user_uuid = $1 ORDER BY id`,
		id.String())
	if err != nil {
		return nil, oops.Code("USER_LOAD_FAILED").With("uuid", id.String()).Wrap(err)
	}

	u := holder.NewUser(id, username)
	u.SetPrimaryGroup(primaryGroup)
	u.SetNodes(ns)
	return u, nil
}

// SaveUser replaces the user's stored state in one transaction.
func (s *PostgresStore) SaveUser(ctx context.Context, u *holder.User) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	id := u.UUID().String()
	_, err = tx.Exec(ctx,
		`INSERT INTO players (uuid, username, primary_group)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (uuid) DO UPDATE SET username = $2, primary_group = $3, updated_at = now()`,
		id, u.Username(), u.PrimaryGroup())
	if err != nil {
		return oops.Code("USER_SAVE_FAILED").With("uuid", id).Wrap(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM user_nodes WHERE user_uuid = $1`, id); err != nil {
		return oops.Code("USER_SAVE_FAILED").With("uuid", id).Wrap(err)
	}
	for _, n := range u.EnduringNodes() {
		_, err := tx.Exec(ctx,
			`INSERT INTO user_nodes (user_uuid, key, value, server, world, contexts, expiry)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, n.Key(), n.Value(), n.Server(), n.World(), n.Context().Key(), expiryArg(n))
		if err != nil {
			return oops.Code("USER_SAVE_FAILED").With("uuid", id).With("key", n.Key()).Wrap(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").With("uuid", id).Wrap(err)
	}
	return nil
}

// LoadGroup returns the stored group or ErrNotFound.
func (s *PostgresStore) LoadGroup(ctx context.Context, name string) (*holder.Group, error) {
	name = strings.ToLower(name)
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return nil, oops.Code("GROUP_LOAD_FAILED").With("group", name).Wrap(err)
	}
	if !exists {
		return nil, oops.Code("GROUP_NOT_FOUND").With("group", name).Wrap(ErrNotFound)
	}

	ns, err := s.loadNodes(ctx,
		`SELECT key, value, server, world, contexts, expiry FROM group_nodes WHERE group_name = $1 ORDER BY id`,
		name)
	if err != nil {
		return nil, oops.Code("GROUP_LOAD_FAILED").With("group", name).Wrap(err)
	}

	g := holder.NewGroup(name)
	g.SetNodes(ns)
	return g, nil
}

// CreateGroup inserts a new empty group.
func (s *PostgresStore) CreateGroup(ctx context.Context, name string) (*holder.Group, error) {
	name = strings.ToLower(name)
	_, err := s.pool.Exec(ctx, `INSERT INTO groups (name) VALUES ($1)`, name)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return nil, oops.Code("GROUP_EXISTS").With("group", name).Wrap(ErrAlreadyExists)
	}
	if err != nil {
		return nil, oops.Code("GROUP_CREATE_FAILED").With("group", name).Wrap(err)
	}
	return holder.NewGroup(name), nil
}

// SaveGroup replaces the group's stored nodes in one transaction, creating
// the group row if needed.
func (s *PostgresStore) SaveGroup(ctx context.Context, g *holder.Group) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	name := g.Name()
	_, err = tx.Exec(ctx,
		`INSERT INTO groups (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return oops.Code("GROUP_SAVE_FAILED").With("group", name).Wrap(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM group_nodes WHERE group_name = $1`, name); err != nil {
		return oops.Code("GROUP_SAVE_FAILED").With("group", name).Wrap(err)
	}
	for _, n := range g.EnduringNodes() {
		_, err := tx.Exec(ctx,
			`INSERT INTO group_nodes (group_name, key, value, server, world, contexts, expiry)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			name, n.Key(), n.Value(), n.Server(), n.World(), n.Context().Key(), expiryArg(n))
		if err != nil {
			return oops.Code("GROUP_SAVE_FAILED").With("group", name).With("key", n.Key()).Wrap(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").With("group", name).Wrap(err)
	}
	return nil
}

// DeleteGroup removes a group and, via cascade, its nodes.
func (s *PostgresStore) DeleteGroup(ctx context.Context, name string) error {
	name = strings.ToLower(name)
	result, err := s.pool.Exec(ctx, `DELETE FROM groups WHERE name = $1`, name)
	if err != nil {
		return oops.Code("GROUP_DELETE_FAILED").With("group", name).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("GROUP_NOT_FOUND").With("group", name).Wrap(ErrNotFound)
	}
	return nil
}

// LoadAllGroups returns every stored group with its nodes.
func (s *PostgresStore) LoadAllGroups(ctx context.Context) ([]*holder.Group, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM groups ORDER BY name`)
	if err != nil {
		return nil, oops.Code("GROUP_LIST_FAILED").Wrap(err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, oops.Code("GROUP_LIST_FAILED").Wrap(err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, oops.Code("GROUP_LIST_FAILED").Wrap(err)
	}

	out := make([]*holder.Group, 0, len(names))
	for _, name := range names {
		g, err := s.LoadGroup(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// LoadTrack returns the stored track or ErrNotFound.
func (s *PostgresStore) LoadTrack(ctx context.Context, name string) (*track.Track, error) {
	name = strings.ToLower(name)
	var groups []string
	err := s.pool.QueryRow(ctx,
		`SELECT groups FROM tracks WHERE name = $1`, name).Scan(&groups)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TRACK_NOT_FOUND").With("track", name).Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TRACK_LOAD_FAILED").With("track", name).Wrap(err)
	}
	return track.New(name, groups...)
}

// CreateTrack inserts a new empty track.
func (s *PostgresStore) CreateTrack(ctx context.Context, name string) (*track.Track, error) {
	name = strings.ToLower(name)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracks (name, groups) VALUES ($1, $2)`, name, []string{})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return nil, oops.Code("TRACK_EXISTS").With("track", name).Wrap(ErrAlreadyExists)
	}
	if err != nil {
		return nil, oops.Code("TRACK_CREATE_FAILED").With("track", name).Wrap(err)
	}
	return track.New(name)
}

// SaveTrack upserts the track's group list.
func (s *PostgresStore) SaveTrack(ctx context.Context, t *track.Track) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracks (name, groups) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET groups = $2`,
		t.Name(), t.Groups())
	if err != nil {
		return oops.Code("TRACK_SAVE_FAILED").With("track", t.Name()).Wrap(err)
	}
	return nil
}

// DeleteTrack removes a track.
func (s *PostgresStore) DeleteTrack(ctx context.Context, name string) error {
	name = strings.ToLower(name)
	result, err := s.pool.Exec(ctx, `DELETE FROM tracks WHERE name = $1`, name)
	if err != nil {
		return oops.Code("TRACK_DELETE_FAILED").With("track", name).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TRACK_NOT_FOUND").With("track", name).Wrap(ErrNotFound)
	}
	return nil
}

// LoadAllTracks returns every stored track.
func (s *PostgresStore) LoadAllTracks(ctx context.Context) ([]*track.Track, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, groups FROM tracks ORDER BY name`)
	if err != nil {
		return nil, oops.Code("TRACK_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	var out []*track.Track
	for rows.Next() {
		var name string
		var groups []string
		if err := rows.Scan(&name, &groups); err != nil {
			return nil, oops.Code("TRACK_LIST_FAILED").Wrap(err)
		}
		t, err := track.New(name, groups...)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("TRACK_LIST_FAILED").Wrap(err)
	}
	return out, nil
}

// SavePlayerName upserts the uuid/username pairing without touching nodes.
func (s *PostgresStore) SavePlayerName(ctx context.Context, id uuid.UUID, username string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO players (uuid, username, primary_group)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (uuid) DO UPDATE SET username = $2, updated_at = now()`,
		id.String(), username, holder.DefaultGroupName)
	if err != nil {
		return oops.Code("PLAYER_NAME_SAVE_FAILED").With("uuid", id.String()).Wrap(err)
	}
	return nil
}

// LookupUUID resolves a username to the UUID it was last seen with. If two
// records share a username the most recently saved one wins.
func (s *PostgresStore) LookupUUID(ctx context.Context, username string) (uuid.UUID, error) {
	var idStr string
	err := s.pool.QueryRow(ctx,
		`SELECT uuid FROM players WHERE LOWER(username) = LOWER($1)
		 ORDER BY updated_at DESC LIMIT 1`,
		username).Scan(&idStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, oops.Code("PLAYER_NOT_FOUND").With("username", username).Wrap(ErrNotFound)
	}
	if err != nil {
		return uuid.Nil, oops.Code("PLAYER_LOOKUP_FAILED").With("username", username).Wrap(err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, oops.Code("PLAYER_LOOKUP_FAILED").With("uuid", idStr).Wrap(err)
	}
	return id, nil
}

// loadNodes runs a node query and decodes the rows.
func (s *PostgresStore) loadNodes(ctx context.Context, sql string, args ...any) ([]node.Node, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []node.Node
	for rows.Next() {
		var (
			key, server, world, ctxKey string
			value                      bool
			expiry                     *time.Time
		)
		if err := rows.Scan(&key, &value, &server, &world, &ctxKey, &expiry); err != nil {
			return nil, err
		}
		b := node.NewBuilder(key).
			Value(value).
			Server(server).
			World(world).
			WithContext(contexts.ParseKey(ctxKey))
		if expiry != nil {
			b = b.ExpiresAt(*expiry)
		}
		n, err := b.Build()
		if err != nil {
			return nil, oops.Code("NODE_DECODE_FAILED").With("key", key).Wrap(err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// expiryArg converts a node's expiry to a nullable SQL parameter.
func expiryArg(n node.Node) *time.Time {
	if at, ok := n.Expiry(); ok {
		return &at
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
