// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

// Package store provides storage implementations for users, groups and tracks.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/track"
)

// Sentinel errors returned by Store implementations. Callers match with
// errors.Is; implementations wrap them with additional context.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Store persists permission holders and tracks. Only enduring nodes are
// persisted; transient nodes live and die with the process.
type Store interface {
	// LoadUser returns the stored user, or ErrNotFound if the server has
	// never seen this UUID.
	LoadUser(ctx context.Context, id uuid.UUID) (*holder.User, error)
	// SaveUser replaces the user's stored enduring nodes, username and
	// primary group atomically.
	SaveUser(ctx context.Context, u *holder.User) error

	LoadGroup(ctx context.Context, name string) (*holder.Group, error)
	// CreateGroup makes a new empty group; ErrAlreadyExists if the name is taken.
	CreateGroup(ctx context.Context, name string) (*holder.Group, error)
	SaveGroup(ctx context.Context, g *holder.Group) error
	DeleteGroup(ctx context.Context, name string) error
	LoadAllGroups(ctx context.Context) ([]*holder.Group, error)

	LoadTrack(ctx context.Context, name string) (*track.Track, error)
	CreateTrack(ctx context.Context, name string) (*track.Track, error)
	SaveTrack(ctx context.Context, t *track.Track) error
	DeleteTrack(ctx context.Context, name string) error
	LoadAllTracks(ctx context.Context) ([]*track.Track, error)

	// SavePlayerName records the uuid/username pairing seen at login.
	SavePlayerName(ctx context.Context, id uuid.UUID, username string) error
	// LookupUUID resolves a username to the UUID it was last seen with.
	LookupUUID(ctx context.Context, username string) (uuid.UUID, error)

	Ping(ctx context.Context) error
	Close() error
}
