// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

// Package engine is the facade over storage, holder managers, the
// inheritance cache, the event bus and the action log. All permission
// mutations go through it so that persistence, cache invalidation,
// auditing and notification stay in step.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/permforge/permforge/internal/actionlog"
	"github.com/permforge/permforge/internal/caching"
	"github.com/permforge/permforge/internal/events"
	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/inheritance"
	"github.com/permforge/permforge/internal/node"
	"github.com/permforge/permforge/internal/store"
	"github.com/permforge/permforge/internal/track"
)

// ErrHolderNotLoaded is returned when an operation references a user, group
// or track that is not resident in memory. Loading is always an explicit
// step; mutations never load implicitly.
var ErrHolderNotLoaded = errors.New("holder not loaded")

type actorKey struct{}

// WithActor tags the context with the identity performing mutations, which
// ends up in the action log. Untagged contexts log as "console".
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "console"
}

// Engine wires the permission subsystems together.
type Engine struct {
	store  store.Store
	users  *holder.UserManager
	groups *holder.GroupManager
	tracks *track.Manager
	cache  *caching.Cache
	bus    *events.Bus
	audit  *actionlog.Logger

	defaultValue bool
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithBus attaches an event bus. Without one, events are not published.
func WithBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithActionLog attaches an audit logger. Without one, mutations are not
// audited.
func WithActionLog(audit *actionlog.Logger) Option {
	return func(e *Engine) { e.audit = audit }
}

// WithDefaultValue sets the answer for permissions no node decides.
func WithDefaultValue(v bool) Option {
	return func(e *Engine) { e.defaultValue = v }
}

// WithClock overrides the time source. Used by expiry tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine on the given store.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		users:  holder.NewUserManager(),
		groups: holder.NewGroupManager(),
		tracks: track.NewManager(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	resolver := inheritance.NewResolver(e.groups)
	e.cache = caching.NewCache(resolver, caching.WithClock(func() time.Time { return e.now() }))
	return e
}

// Users returns the user manager.
func (e *Engine) Users() *holder.UserManager { return e.users }

// Groups returns the group manager.
func (e *Engine) Groups() *holder.GroupManager { return e.groups }

// Tracks returns the track registry.
func (e *Engine) Tracks() *track.Manager { return e.tracks }

// Cache returns the context-scoped resolution cache.
func (e *Engine) Cache() *caching.Cache { return e.cache }

// Bootstrap loads all groups and tracks and guarantees the default group
// exists. Call once at startup before serving checks.
func (e *Engine) Bootstrap(ctx context.Context) error {
	groups, err := e.store.LoadAllGroups(ctx)
	if err != nil {
		return oops.In("engine").With("operation", "load groups").Wrap(err)
	}
	for _, g := range groups {
		loaded, _ := e.groups.GetOrMake(g.Name())
		loaded.SetNodes(g.EnduringNodes())
	}
	if e.groups.IfLoaded(holder.DefaultGroupName) == nil {
		g, err := e.store.CreateGroup(ctx, holder.DefaultGroupName)
		if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
			return oops.In("engine").With("operation", "create default group").Wrap(err)
		}
		if g != nil {
			e.groups.GetOrMake(g.Name())
		} else {
			e.groups.GetOrMake(holder.DefaultGroupName)
		}
	}

	tracks, err := e.store.LoadAllTracks(ctx)
	if err != nil {
		return oops.In("engine").With("operation", "load tracks").Wrap(err)
	}
	for _, t := range tracks {
		e.tracks.Register(t)
	}

	slog.Info("permission engine bootstrapped",
		"groups", len(e.groups.All()),
		"tracks", len(e.tracks.All()),
	)
	return nil
}

// LoadUser brings a user into memory. Unknown users start fresh with
// membership in the default group; nothing is persisted until the first
// mutation.
func (e *Engine) LoadUser(ctx context.Context, id uuid.UUID) (*holder.User, error) {
	stored, err := e.store.LoadUser(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		stored = holder.NewUser(id, "")
		stored.SetNode(defaultMembership())
	case err != nil:
		return nil, oops.In("engine").With("uuid", id.String()).Wrap(err)
	}

	u, _ := e.users.GetOrMake(id)
	u.SetUsername(stored.Username())
	u.SetPrimaryGroup(stored.StoredPrimaryGroup())
	u.SetNodes(stored.EnduringNodes())
	e.cache.Invalidate(u.Identifier())
	return u, nil
}

// HandleLogin records the player's current name and loads the user.
func (e *Engine) HandleLogin(ctx context.Context, id uuid.UUID, username string) (*holder.User, error) {
	if err := e.store.SavePlayerName(ctx, id, username); err != nil {
		return nil, err
	}
	u, err := e.LoadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	u.SetUsername(username)
	return u, nil
}

// UnloadUser drops a user from memory. Pending state must already be saved.
func (e *Engine) UnloadUser(id uuid.UUID) {
	idStr := id.String()
	e.users.Unload(id)
	e.cache.Invalidate(idStr)
}

// SaveUser persists a loaded user.
func (e *Engine) SaveUser(ctx context.Context, id uuid.UUID) error {
	u := e.users.IfLoaded(id)
	if u == nil {
		return notLoaded("user", id.String())
	}
	return e.store.SaveUser(ctx, u)
}

// LookupUUID resolves a username to a UUID via storage.
func (e *Engine) LookupUUID(ctx context.Context, username string) (uuid.UUID, error) {
	return e.store.LookupUUID(ctx, username)
}

// CreateGroup creates and loads a new group.
func (e *Engine) CreateGroup(ctx context.Context, name string) (*holder.Group, error) {
	g, err := e.store.CreateGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	loaded, _ := e.groups.GetOrMake(g.Name())
	e.publish(events.GroupCreated(loaded.Name()))
	e.record(ctx, actionlog.TargetGroup, loaded.Name(), "created")
	return loaded, nil
}

// DeleteGroup removes a group from storage and memory. The default group
// cannot be deleted. Holders that inherit from the group keep their
// membership nodes; those now point at nothing and resolve to nothing.
func (e *Engine) DeleteGroup(ctx context.Context, name string) error {
	if name == holder.DefaultGroupName {
		return oops.In("engine").
			Code("DEFAULT_GROUP_PROTECTED").
			New("the default group cannot be deleted")
	}
	if err := e.store.DeleteGroup(ctx, name); err != nil {
		return err
	}
	e.groups.Unload(name)
	e.cache.Invalidate(name)
	e.publish(events.GroupDeleted(name))
	e.record(ctx, actionlog.TargetGroup, name, "deleted")
	return nil
}

// SaveGroup persists a loaded group.
func (e *Engine) SaveGroup(ctx context.Context, name string) error {
	g := e.groups.IfLoaded(name)
	if g == nil {
		return notLoaded("group", name)
	}
	return e.store.SaveGroup(ctx, g)
}

// CreateTrack creates and registers a new track.
func (e *Engine) CreateTrack(ctx context.Context, name string) (*track.Track, error) {
	t, err := e.store.CreateTrack(ctx, name)
	if err != nil {
		return nil, err
	}
	e.tracks.Register(t)
	e.record(ctx, actionlog.TargetTrack, t.Name(), "created")
	return t, nil
}

// DeleteTrack removes a track from storage and the registry.
func (e *Engine) DeleteTrack(ctx context.Context, name string) error {
	if err := e.store.DeleteTrack(ctx, name); err != nil {
		return err
	}
	e.tracks.Unload(name)
	e.record(ctx, actionlog.TargetTrack, name, "deleted")
	return nil
}

// SaveTrack persists a registered track and announces the change.
func (e *Engine) SaveTrack(ctx context.Context, name string, before []string) error {
	t := e.tracks.IfLoaded(name)
	if t == nil {
		return notLoaded("track", name)
	}
	if err := e.store.SaveTrack(ctx, t); err != nil {
		return err
	}
	e.publish(events.TrackUpdated(t.Name(), before, t.Groups()))
	return nil
}

// ClearTrack empties a track's group list.
func (e *Engine) ClearTrack(ctx context.Context, name string) error {
	t := e.tracks.IfLoaded(name)
	if t == nil {
		return notLoaded("track", name)
	}
	before := t.Clear()
	if err := e.store.SaveTrack(ctx, t); err != nil {
		// Restore the in-memory list so memory and storage stay in step.
		for _, g := range before {
			_ = t.Append(g)
		}
		return err
	}
	e.publish(events.TrackUpdated(t.Name(), before, nil))
	e.record(ctx, actionlog.TargetTrack, name, "cleared")
	return nil
}

func (e *Engine) publish(event events.Event) {
	if e.bus != nil {
		e.bus.Publish(event)
	}
}

func (e *Engine) record(ctx context.Context, targetType actionlog.TargetType, target, action string) {
	if e.audit != nil {
		e.audit.Submit(actionlog.NewEntry(actorFrom(ctx), targetType, target, action))
	}
}

func notLoaded(kind, id string) error {
	return oops.In("engine").
		Code("HOLDER_NOT_LOADED").
		With("kind", kind).
		With("id", id).
		Wrap(ErrHolderNotLoaded)
}

func defaultMembership() node.Node {
	return node.NewGroupNode(holder.DefaultGroupName).MustBuild()
}
