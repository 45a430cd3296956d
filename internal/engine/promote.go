// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/permforge/permforge/internal/actionlog"
	"github.com/permforge/permforge/internal/contexts"
	"github.com/permforge/permforge/internal/events"
	"github.com/permforge/permforge/internal/track"
)

// PromoteUser moves a loaded user one step forward along a track in the
// given context. The in-memory move and its persistence succeed or fail
// together: a storage failure rolls the nodes back.
func (e *Engine) PromoteUser(ctx context.Context, id uuid.UUID, trackName string, query contexts.ImmutableContextSet) (track.Result, error) {
	u := e.users.IfLoaded(id)
	if u == nil {
		return track.Result{}, notLoaded("user", id.String())
	}
	t := e.tracks.IfLoaded(trackName)
	if t == nil {
		return track.Result{}, notLoaded("track", trackName)
	}

	snapshot := u.EnduringNodes()
	primary := u.StoredPrimaryGroup()

	res, err := track.Promote(u, t, query, e.groups)
	if err != nil {
		return track.Result{}, err
	}
	if err := e.store.SaveUser(ctx, u); err != nil {
		u.SetNodes(snapshot)
		u.SetPrimaryGroup(primary)
		// A check racing the failed save may have cached the moved state.
		e.cache.Invalidate(u.Identifier())
		return track.Result{}, err
	}

	e.cache.Invalidate(u.Identifier())
	e.publish(events.UserPromoted(u.Identifier(), t.Name(), res.From, res.To))
	e.record(ctx, actionlog.TargetUser, u.Identifier(),
		fmt.Sprintf("promoted along %s: %s -> %s", t.Name(), orNone(res.From), orNone(res.To)))
	return res, nil
}

// DemoteUser moves a loaded user one step backward along a track.
func (e *Engine) DemoteUser(ctx context.Context, id uuid.UUID, trackName string, query contexts.ImmutableContextSet) (track.Result, error) {
	u := e.users.IfLoaded(id)
	if u == nil {
		return track.Result{}, notLoaded("user", id.String())
	}
	t := e.tracks.IfLoaded(trackName)
	if t == nil {
		return track.Result{}, notLoaded("track", trackName)
	}

	snapshot := u.EnduringNodes()
	primary := u.StoredPrimaryGroup()

	res, err := track.Demote(u, t, query, e.groups)
	if err != nil {
		return track.Result{}, err
	}
	if err := e.store.SaveUser(ctx, u); err != nil {
		u.SetNodes(snapshot)
		u.SetPrimaryGroup(primary)
		// A check racing the failed save may have cached the moved state.
		e.cache.Invalidate(u.Identifier())
		return track.Result{}, err
	}

	e.cache.Invalidate(u.Identifier())
	e.publish(events.UserDemoted(u.Identifier(), t.Name(), res.From, res.To))
	e.record(ctx, actionlog.TargetUser, u.Identifier(),
		fmt.Sprintf("demoted along %s: %s -> %s", t.Name(), orNone(res.From), orNone(res.To)))
	return res, nil
}

func orNone(group string) string {
	if group == "" {
		return "(none)"
	}
	return group
}
