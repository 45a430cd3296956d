// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

// Package events distributes permission-change notifications to subscribers.
package events

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/permforge/permforge/internal/node"
)

// Kind classifies an event.
type Kind string

// Event kinds.
const (
	KindAny          Kind = "*"
	KindNodeAdded    Kind = "node.added"
	KindNodeRemoved  Kind = "node.removed"
	KindNodesCleared Kind = "nodes.cleared"
	KindUserPromoted Kind = "user.promoted"
	KindUserDemoted  Kind = "user.demoted"
	KindGroupCreated Kind = "group.created"
	KindGroupDeleted Kind = "group.deleted"
	KindTrackUpdated Kind = "track.updated"
)

// Event is one permission change. Which fields are set depends on Kind:
// node events carry Holder and Node, promotion events carry Track and the
// from/to groups, track updates carry the before/after group lists.
type Event struct {
	ID        ulid.ULID
	Timestamp time.Time
	Kind      Kind

	// Holder identity: a user UUID string or a group name.
	Holder string

	Node *node.Node

	Track     string
	FromGroup string
	ToGroup   string

	Before []string
	After  []string
}

// New stamps an event with identity and time.
func New(kind Kind) Event {
	return Event{
		ID:        ulid.Make(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
	}
}

// NodeAdded builds a node.added event.
func NodeAdded(holderID string, n node.Node) Event {
	e := New(KindNodeAdded)
	e.Holder = holderID
	e.Node = &n
	return e
}

// NodeRemoved builds a node.removed event.
func NodeRemoved(holderID string, n node.Node) Event {
	e := New(KindNodeRemoved)
	e.Holder = holderID
	e.Node = &n
	return e
}

// NodesCleared builds a nodes.cleared event.
func NodesCleared(holderID string) Event {
	e := New(KindNodesCleared)
	e.Holder = holderID
	return e
}

// UserPromoted builds a user.promoted event.
func UserPromoted(userID, trackName, from, to string) Event {
	e := New(KindUserPromoted)
	e.Holder = userID
	e.Track = trackName
	e.FromGroup = from
	e.ToGroup = to
	return e
}

// UserDemoted builds a user.demoted event.
func UserDemoted(userID, trackName, from, to string) Event {
	e := New(KindUserDemoted)
	e.Holder = userID
	e.Track = trackName
	e.FromGroup = from
	e.ToGroup = to
	return e
}

// GroupCreated builds a group.created event.
func GroupCreated(name string) Event {
	e := New(KindGroupCreated)
	e.Holder = name
	return e
}

// GroupDeleted builds a group.deleted event.
func GroupDeleted(name string) Event {
	e := New(KindGroupDeleted)
	e.Holder = name
	return e
}

// TrackUpdated builds a track.updated event carrying the group lists before
// and after the change.
func TrackUpdated(trackName string, before, after []string) Event {
	e := New(KindTrackUpdated)
	e.Track = trackName
	e.Before = before
	e.After = after
	return e
}
