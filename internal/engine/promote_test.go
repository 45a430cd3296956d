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

	"github.com/permforge/permforge/internal/contexts"
	"github.com/permforge/permforge/internal/events"
	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/node"
	"github.com/permforge/permforge/internal/store"
	"github.com/permforge/permforge/internal/track"
)

func setupLadder(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	for _, g := range []string{"member", "admin"} {
		_, err := e.CreateGroup(ctx, g)
		require.NoError(t, err)
	}
	tr, err := e.CreateTrack(ctx, "staff")
	require.NoError(t, err)
	for _, g := range []string{"default", "member", "admin"} {
		require.NoError(t, tr.Append(g))
	}
	require.NoError(t, e.SaveTrack(ctx, "staff", nil))
}

func TestEngine_PromoteUser(t *testing.T) {
	bus := events.NewBus()
	e, st := newTestEngine(t, WithBus(bus))
	setupLadder(t, e)
	ch := bus.Subscribe(events.KindUserPromoted)

	ctx := context.Background()
	id := uuid.New()
	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)

	res, err := e.PromoteUser(ctx, id, "staff", contexts.Empty)
	require.NoError(t, err)
	assert.Equal(t, track.Moved, res.Kind)
	assert.Equal(t, "default", res.From)
	assert.Equal(t, "member", res.To)

	// Persisted move.
	stored, err := st.LoadUser(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored.EnduringNodes(), 1)
	assert.Equal(t, "member", stored.EnduringNodes()[0].GroupName())
	assert.Equal(t, "member", stored.PrimaryGroup())

	select {
	case ev := <-ch:
		assert.Equal(t, "staff", ev.Track)
		assert.Equal(t, "member", ev.ToGroup)
	case <-time.After(time.Second):
		t.Fatal("user.promoted event not published")
	}
}

func TestEngine_PromoteUser_EndOfTrackChangesNothing(t *testing.T) {
	e, _ := newTestEngine(t)
	setupLadder(t, e)
	ctx := context.Background()
	id := uuid.New()

	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)
	require.NoError(t, e.ClearUserNodes(ctx, id))
	require.NoError(t, e.SetUserNode(ctx, id, node.NewGroupNode("admin").MustBuild()))

	_, err = e.PromoteUser(ctx, id, "staff", contexts.Empty)
	assert.True(t, errors.Is(err, track.ErrEndOfTrack))

	u := e.Users().IfLoaded(id)
	require.Len(t, u.EnduringNodes(), 1)
	assert.Equal(t, "admin", u.EnduringNodes()[0].GroupName())
}

func TestEngine_PromoteUser_SaveFailureRollsBack(t *testing.T) {
	st := store.NewMemoryStore()
	failing := &failingSaves{Store: st}
	e := New(failing)
	require.NoError(t, e.Bootstrap(context.Background()))
	setupLadder(t, e)

	ctx := context.Background()
	id := uuid.New()
	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)

	failing.armed = true
	_, err = e.PromoteUser(ctx, id, "staff", contexts.Empty)
	require.Error(t, err)

	u := e.Users().IfLoaded(id)
	require.Len(t, u.EnduringNodes(), 1)
	assert.Equal(t, holder.DefaultGroupName, u.EnduringNodes()[0].GroupName(),
		"failed promotion must leave the user where they were")
	assert.Equal(t, holder.DefaultGroupName, u.PrimaryGroup())
}

func TestEngine_PromoteUser_SaveFailureDropsCacheEntriesFromRacingChecks(t *testing.T) {
	st := store.NewMemoryStore()
	failing := &failingSaves{Store: st}
	e := New(failing)
	require.NoError(t, e.Bootstrap(context.Background()))
	setupLadder(t, e)

	ctx := context.Background()
	id := uuid.New()
	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)

	subject, err := e.Subject(id)
	require.NoError(t, err)

	// A check lands between the in-memory move and the failed save,
	// caching membership in the next group.
	failing.armed = true
	failing.during = func() {
		assert.True(t, subject.HasPermission("group.member", contexts.Empty))
	}

	_, err = e.PromoteUser(ctx, id, "staff", contexts.Empty)
	require.Error(t, err)

	assert.False(t, subject.HasPermission("group.member", contexts.Empty),
		"checks after the rollback must reflect the rolled-back membership")
	assert.True(t, subject.HasPermission("group.default", contexts.Empty))
}

func TestEngine_DemoteUser_OffTheBottom(t *testing.T) {
	bus := events.NewBus()
	e, _ := newTestEngine(t, WithBus(bus))
	setupLadder(t, e)
	ch := bus.Subscribe(events.KindUserDemoted)

	ctx := context.Background()
	id := uuid.New()
	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)

	res, err := e.DemoteUser(ctx, id, "staff", contexts.Empty)
	require.NoError(t, err)
	assert.Equal(t, track.RemovedFromTrack, res.Kind)
	assert.Equal(t, "default", res.From)

	u := e.Users().IfLoaded(id)
	assert.Empty(t, u.EnduringNodes())

	select {
	case ev := <-ch:
		assert.Equal(t, "default", ev.FromGroup)
		assert.Equal(t, "", ev.ToGroup)
	case <-time.After(time.Second):
		t.Fatal("user.demoted event not published")
	}
}

func TestEngine_PromoteUser_UnknownTrack(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id := uuid.New()
	_, err := e.LoadUser(ctx, id)
	require.NoError(t, err)

	_, err = e.PromoteUser(ctx, id, "ghost", contexts.Empty)
	assert.True(t, errors.Is(err, ErrHolderNotLoaded))
}

func TestEngine_ClearTrack(t *testing.T) {
	bus := events.NewBus()
	e, st := newTestEngine(t, WithBus(bus))
	setupLadder(t, e)
	ch := bus.Subscribe(events.KindTrackUpdated)

	ctx := context.Background()
	require.NoError(t, e.ClearTrack(ctx, "staff"))

	stored, err := st.LoadTrack(ctx, "staff")
	require.NoError(t, err)
	assert.Empty(t, stored.Groups())

	select {
	case ev := <-ch:
		assert.Equal(t, []string{"default", "member", "admin"}, ev.Before)
		assert.Empty(t, ev.After)
	case <-time.After(time.Second):
		t.Fatal("track.updated event not published")
	}
}
