// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permforge/permforge/internal/actionlog"
	"github.com/permforge/permforge/internal/contexts"
	"github.com/permforge/permforge/internal/events"
	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/node"
	"github.com/permforge/permforge/internal/store"
)

// failingSaves wraps a store and fails every user save after arming.
// during, when set, runs before the failure and stands in for work that
// races the save, such as a permission check on another goroutine.
type failingSaves struct {
	store.Store
	armed  bool
	during func()
}

func (f *failingSaves) SaveUser(ctx context.Context, u *holder.User) error {
	if f.armed {
		if f.during != nil {
			f.during()
		}
		return errors.New("storage down")
	}
	return f.Store.SaveUser(ctx, u)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	e := New(st, opts...)
	require.NoError(t, e.Bootstrap(context.Background()))
	return e, st
}

func TestEngine_BootstrapCreatesDefaultGroup(t *testing.T) {
	e, st := newTestEngine(t)
	assert.NotNil(t, e.Groups().IfLoaded(holder.DefaultGroupName))

	_, err := st.LoadGroup(context.Background(), holder.DefaultGroupName)
	assert.NoError(t, err, "default group is persisted")
}

func TestEngine_LoadUser_FreshGetsDefaultMembership(t *testing.T) {
	e, _ := newTestEngine(t)
	id := uuid.New()

	u, err := e.LoadUser(context.Background(), id)
	require.NoError(t, err)

	ns := u.EnduringNodes()
	require.Len(t, ns, 1)
	assert.True(t, ns[0].IsGroupNode())
	assert.Equal(t, holder.DefaultGroupName, ns[0].GroupName())
	assert.Equal(t, holder.DefaultGroupName, u.PrimaryGroup())
}

func TestEngine_LoadUser_RestoresStoredState(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	id := uuid.New()

	stored := holder.NewUser(id, "Notch")
	stored.SetPrimaryGroup("admin")
	stored.SetNode(node.NewBuilder("chat.color").MustBuild())
	require.NoError(t, st.SaveUser(ctx, stored))

	u, err := e.LoadUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Notch", u.Username())
	assert.Equal(t, "admin", u.PrimaryGroup())
	assert.Len(t, u.EnduringNodes(), 1)
}

func TestEngine_MutationRequiresLoadedHolder(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	n := node.NewBuilder("fly").MustBuild()

	err := e.SetUserNode(ctx, uuid.New(), n)
	assert.True(t, errors.Is(err, ErrHolderNotLoaded))

	err = e.SetGroupNode(ctx, "ghost", n)
	assert.True(t, errors.Is(err, ErrHolderNotLoaded))

	_, err = e.Subject(uuid.New())
	assert.True(t, errors.Is(err, ErrHolderNotLoaded))
}

func TestEngine_SetUserNode_PersistsAndInvalidates(t *testing.T) {
	bus := events.NewBus()
	audit := actionlog.NewLogger(actionlog.NewMemoryWriter(), t.TempDir()+"/wal.jsonl")
	defer audit.Close() //nolint:errcheck

	e, st := newTestEngine(t, WithBus(bus), WithActionLog(audit))
	ch := bus.Subscribe(events.KindNodeAdded)
	ctx := context.Background()
	id := uuid.New()

	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)

	subject, err := e.Subject(id)
	require.NoError(t, err)
	assert.False(t, subject.HasPermission("fly", contexts.Empty))

	require.NoError(t, e.SetUserNode(ctx, id, node.NewBuilder("fly").MustBuild()))

	// Cache answers the new state immediately.
	assert.True(t, subject.HasPermission("fly", contexts.Empty))

	// Persisted.
	stored, err := st.LoadUser(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored.EnduringNodes(), 2)

	// Announced.
	select {
	case ev := <-ch:
		assert.Equal(t, id.String(), ev.Holder)
		assert.Equal(t, "fly", ev.Node.Key())
	case <-time.After(time.Second):
		t.Fatal("node.added event not published")
	}
}

func TestEngine_SaveFailureRollsBack(t *testing.T) {
	st := store.NewMemoryStore()
	failing := &failingSaves{Store: st}
	e := New(failing)
	require.NoError(t, e.Bootstrap(context.Background()))

	ctx := context.Background()
	id := uuid.New()
	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)

	failing.armed = true
	err = e.SetUserNode(ctx, id, node.NewBuilder("fly").MustBuild())
	require.Error(t, err)

	u := e.Users().IfLoaded(id)
	require.NotNil(t, u)
	for _, n := range u.EnduringNodes() {
		assert.NotEqual(t, "fly", n.Key(), "failed mutation must not stick in memory")
	}

	subject, err := e.Subject(id)
	require.NoError(t, err)
	assert.False(t, subject.HasPermission("fly", contexts.Empty))
}

func TestEngine_SaveFailureDropsCacheEntriesFromRacingChecks(t *testing.T) {
	st := store.NewMemoryStore()
	failing := &failingSaves{Store: st}
	e := New(failing)
	require.NoError(t, e.Bootstrap(context.Background()))

	ctx := context.Background()
	id := uuid.New()
	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)

	subject, err := e.Subject(id)
	require.NoError(t, err)

	// A check lands between the in-memory apply and the failed save,
	// caching the applied-but-never-persisted state.
	failing.armed = true
	failing.during = func() {
		assert.True(t, subject.HasPermission("secret.power", contexts.Empty))
	}

	err = e.SetUserNode(ctx, id, node.NewBuilder("secret.power").MustBuild())
	require.Error(t, err)

	u := e.Users().IfLoaded(id)
	require.NotNil(t, u)
	for _, n := range u.EnduringNodes() {
		assert.NotEqual(t, "secret.power", n.Key())
	}
	assert.False(t, subject.HasPermission("secret.power", contexts.Empty),
		"checks after the rollback must reflect the rolled-back state")
}

func TestEngine_GroupInheritanceReflectsGroupMutation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)

	subject, err := e.Subject(id)
	require.NoError(t, err)
	assert.False(t, subject.HasPermission("chat.speak", contexts.Empty))

	// Granting to the default group reaches the member through inheritance,
	// including through the invalidation index.
	require.NoError(t, e.SetGroupNode(ctx, holder.DefaultGroupName,
		node.NewBuilder("chat.speak").MustBuild()))
	assert.True(t, subject.HasPermission("chat.speak", contexts.Empty))

	require.NoError(t, e.UnsetGroupNode(ctx, holder.DefaultGroupName,
		node.NewBuilder("chat.speak").MustBuild()))
	assert.False(t, subject.HasPermission("chat.speak", contexts.Empty))
}

func TestEngine_DefaultValueFallback(t *testing.T) {
	e, _ := newTestEngine(t, WithDefaultValue(true))
	ctx := context.Background()
	id := uuid.New()
	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)

	subject, err := e.Subject(id)
	require.NoError(t, err)

	assert.True(t, subject.HasPermission("anything.at.all", contexts.Empty),
		"undecided keys fall back to the configured default")
	assert.False(t, subject.IsPermissionSet("anything.at.all", contexts.Empty))

	// An explicit denial still wins over the permissive default.
	require.NoError(t, e.SetUserNode(ctx, id,
		node.NewBuilder("anything.at.all").Value(false).MustBuild()))
	assert.False(t, subject.HasPermission("anything.at.all", contexts.Empty))
}

func TestEngine_DeleteGroup_DefaultProtected(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.DeleteGroup(context.Background(), holder.DefaultGroupName)
	require.Error(t, err)
	assert.NotNil(t, e.Groups().IfLoaded(holder.DefaultGroupName))
}

func TestEngine_DeleteGroup_InvalidatesInheritors(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := e.CreateGroup(ctx, "vip")
	require.NoError(t, err)
	require.NoError(t, e.SetGroupNode(ctx, "vip", node.NewBuilder("fly").MustBuild()))

	_, err = e.LoadUser(ctx, id)
	require.NoError(t, err)
	require.NoError(t, e.SetUserNode(ctx, id, node.NewGroupNode("vip").MustBuild()))

	subject, err := e.Subject(id)
	require.NoError(t, err)
	assert.True(t, subject.HasPermission("fly", contexts.Empty))

	require.NoError(t, e.DeleteGroup(ctx, "vip"))
	assert.False(t, subject.HasPermission("fly", contexts.Empty),
		"deleted group's grants stop resolving")
}

func TestEngine_SweepTemporaryNodes(t *testing.T) {
	now := time.Now()
	clock := &now
	e, st := newTestEngine(t, WithClock(func() time.Time { return *clock }))
	ctx := context.Background()
	id := uuid.New()

	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)
	require.NoError(t, e.SetUserNode(ctx, id,
		node.NewBuilder("event.reward").ExpiresAt(now.Add(time.Hour)).MustBuild()))

	subject, err := e.Subject(id)
	require.NoError(t, err)
	assert.True(t, subject.HasPermission("event.reward", contexts.Empty))

	later := now.Add(2 * time.Hour)
	clock = &later
	require.NoError(t, e.SweepTemporaryNodes(ctx))

	assert.False(t, subject.HasPermission("event.reward", contexts.Empty))
	stored, err := st.LoadUser(ctx, id)
	require.NoError(t, err)
	for _, n := range stored.EnduringNodes() {
		assert.NotEqual(t, "event.reward", n.Key(), "expired node must be gone from storage")
	}
}

func TestEngine_TransientNodeNotPersisted(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)
	require.NoError(t, e.SetTransientUserNode(id, node.NewBuilder("session.vip").MustBuild()))

	subject, err := e.Subject(id)
	require.NoError(t, err)
	assert.True(t, subject.HasPermission("session.vip", contexts.Empty))

	require.NoError(t, e.SaveUser(ctx, id))
	stored, err := st.LoadUser(ctx, id)
	require.NoError(t, err)
	for _, n := range stored.EnduringNodes() {
		assert.NotEqual(t, "session.vip", n.Key())
	}
}

func TestEngine_TransientGroupNode_VisibleToMembersNotPersisted(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := e.CreateGroup(ctx, "vip")
	require.NoError(t, err)
	_, err = e.LoadUser(ctx, id)
	require.NoError(t, err)
	require.NoError(t, e.SetUserNode(ctx, id, node.NewGroupNode("vip").MustBuild()))

	subject, err := e.Subject(id)
	require.NoError(t, err)
	assert.False(t, subject.HasPermission("event.double_xp", contexts.Empty))

	require.NoError(t, e.SetTransientGroupNode("vip", node.NewBuilder("event.double_xp").MustBuild()))
	assert.True(t, subject.HasPermission("event.double_xp", contexts.Empty),
		"members inherit the session-only grant")

	require.NoError(t, e.SaveGroup(ctx, "vip"))
	stored, err := st.LoadGroup(ctx, "vip")
	require.NoError(t, err)
	for _, n := range stored.EnduringNodes() {
		assert.NotEqual(t, "event.double_xp", n.Key())
	}

	err = e.SetTransientGroupNode("ghost", node.NewBuilder("x").MustBuild())
	assert.ErrorIs(t, err, ErrHolderNotLoaded)
}

func TestEngine_HandleLogin_RegistersNameLookup(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id := uuid.New()

	u, err := e.HandleLogin(ctx, id, "Notch")
	require.NoError(t, err)
	assert.Equal(t, "Notch", u.Username())

	got, err := e.LookupUUID(ctx, "notch")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
