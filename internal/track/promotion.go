// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package track

import (
	"strings"

	"github.com/samber/oops"

	"github.com/permforge/permforge/internal/contexts"
	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/node"
)

// MoveKind classifies the outcome of a successful promote or demote.
type MoveKind int

// MoveKind values.
const (
	// AddedToFirst: the user held no position and was granted the track's
	// first group (promote bootstrap case).
	AddedToFirst MoveKind = iota // added_to_first

	// Moved: the user's membership was swapped to the adjacent group.
	Moved // moved

	// RemovedFromTrack: a demote below the first group removed the user's
	// membership entirely.
	RemovedFromTrack // removed_from_track
)

var moveKindStrings = [...]string{"added_to_first", "moved", "removed_from_track"}

func (k MoveKind) String() string {
	if k >= 0 && int(k) < len(moveKindStrings) {
		return moveKindStrings[k]
	}
	return "unknown"
}

// Result describes a successful promotion or demotion. From is "" for the
// bootstrap case; To is "" when the user was removed from the track.
type Result struct {
	Kind MoveKind
	From string
	To   string
}

// GroupProvider supplies loaded groups; *holder.GroupManager satisfies it.
// A promotion target that resolves to nil is a malformed track.
type GroupProvider interface {
	IfLoaded(name string) *holder.Group
}

// Promote moves the user one step forward along the track for the given
// context. The user's position is derived, never stored: it is the single
// group-membership node, matching the context exactly, whose group is listed
// on the track.
//
// On any error no node is changed. The in-memory node swap itself is atomic;
// persistence and cache invalidation are the caller's transaction.
func Promote(u *holder.User, t *Track, ctx contexts.ImmutableContextSet, groups GroupProvider) (Result, error) {
	if t.Size() <= 1 {
		return Result{}, oops.In("track").
			Code("TRACK_TOO_SHORT").
			With("track", t.Name()).
			Wrap(ErrTooShort)
	}

	matches := positionNodes(u, t, ctx)
	switch {
	case len(matches) == 0:
		first := t.Groups()[0]
		if groups.IfLoaded(first) == nil {
			return Result{}, malformed(t, first)
		}
		u.SetNode(membershipNode(first, ctx))
		return Result{Kind: AddedToFirst, To: first}, nil

	case len(matches) > 1:
		return Result{}, oops.In("track").
			Code("AMBIGUOUS_POSITION").
			With("track", t.Name()).
			With("user", u.Identifier()).
			With("count", len(matches)).
			Wrap(ErrAmbiguousPosition)
	}

	current := matches[0]
	old := current.GroupName()

	next, err := t.Next(old)
	if err != nil {
		// The track's membership list was edited out from under the user.
		return Result{}, err
	}
	if next == "" {
		return Result{}, oops.In("track").
			Code("END_OF_TRACK").
			With("track", t.Name()).
			With("group", old).
			Wrap(ErrEndOfTrack)
	}
	if groups.IfLoaded(next) == nil {
		return Result{}, malformed(t, next)
	}

	if err := u.ReplaceNode(current, membershipNode(next, ctx)); err != nil {
		return Result{}, err
	}
	repointPrimaryGroup(u, ctx, old, next)
	return Result{Kind: Moved, From: old, To: next}, nil
}

// Demote moves the user one step backward along the track. Demoting from the
// first group removes the membership node entirely instead of erroring,
// signalling removal from the track.
func Demote(u *holder.User, t *Track, ctx contexts.ImmutableContextSet, groups GroupProvider) (Result, error) {
	if t.Size() <= 1 {
		return Result{}, oops.In("track").
			Code("TRACK_TOO_SHORT").
			With("track", t.Name()).
			Wrap(ErrTooShort)
	}

	matches := positionNodes(u, t, ctx)
	switch {
	case len(matches) == 0:
		return Result{}, oops.In("track").
			Code("NOT_ON_TRACK").
			With("track", t.Name()).
			With("user", u.Identifier()).
			Wrap(ErrNotOnTrack)

	case len(matches) > 1:
		return Result{}, oops.In("track").
			Code("AMBIGUOUS_POSITION").
			With("track", t.Name()).
			With("user", u.Identifier()).
			With("count", len(matches)).
			Wrap(ErrAmbiguousPosition)
	}

	current := matches[0]
	old := current.GroupName()

	previous, err := t.Previous(old)
	if err != nil {
		return Result{}, err
	}
	if previous == "" {
		if err := u.UnsetNode(current); err != nil {
			return Result{}, err
		}
		repointPrimaryGroup(u, ctx, old, holder.DefaultGroupName)
		return Result{Kind: RemovedFromTrack, From: old}, nil
	}
	if groups.IfLoaded(previous) == nil {
		return Result{}, malformed(t, previous)
	}

	if err := u.ReplaceNode(current, membershipNode(previous, ctx)); err != nil {
		return Result{}, err
	}
	repointPrimaryGroup(u, ctx, old, previous)
	return Result{Kind: Moved, From: old, To: previous}, nil
}

// positionNodes returns the user's enduring, value-true group nodes whose
// full context (context set plus server/world scoping) equals ctx exactly
// and whose group is listed on the track.
func positionNodes(u *holder.User, t *Track, ctx contexts.ImmutableContextSet) []node.Node {
	var out []node.Node
	for _, n := range u.EnduringNodes() {
		if !n.IsGroupNode() || !n.Value() {
			continue
		}
		if !fullContext(n).Equal(ctx) {
			continue
		}
		if !t.Contains(n.GroupName()) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// fullContext folds a node's server/world scoping into its context set so
// position matching compares complete situational constraints.
func fullContext(n node.Node) contexts.ImmutableContextSet {
	if n.Server() == "" && n.World() == "" {
		return n.Context()
	}
	m := n.Context().Mutable()
	if n.Server() != "" {
		m.Add(contexts.KeyServer, n.Server())
	}
	if n.World() != "" {
		m.Add(contexts.KeyWorld, n.World())
	}
	return m.Immutable()
}

// membershipNode builds a group node scoped to ctx, lifting server/world
// context entries into the node's dedicated scoping fields.
func membershipNode(group string, ctx contexts.ImmutableContextSet) node.Node {
	b := node.NewGroupNode(group)
	rest := ctx.Mutable()
	if server := ctx.AnyValue(contexts.KeyServer); server != "" {
		b = b.Server(server)
		rest.RemoveAll(contexts.KeyServer)
	}
	if world := ctx.AnyValue(contexts.KeyWorld); world != "" {
		b = b.World(world)
		rest.RemoveAll(contexts.KeyWorld)
	}
	return b.WithContext(rest.Immutable()).MustBuild()
}

// repointPrimaryGroup moves the primary-group pointer off the group the user
// just left, but only for global-context moves.
func repointPrimaryGroup(u *holder.User, ctx contexts.ImmutableContextSet, old, to string) {
	if ctx.IsEmpty() && strings.EqualFold(u.PrimaryGroup(), old) {
		u.SetPrimaryGroup(to)
	}
}

func malformed(t *Track, group string) error {
	return oops.In("track").
		Code("MALFORMED_TRACK").
		With("track", t.Name()).
		With("group", group).
		Wrap(ErrMalformedTrack)
}
