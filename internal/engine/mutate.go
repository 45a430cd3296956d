// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/permforge/permforge/internal/actionlog"
	"github.com/permforge/permforge/internal/events"
	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/node"
)

// SetUserNode grants or denies a permission on a loaded user, persisting
// and invalidating atomically with respect to observers: on a storage
// failure the in-memory state is rolled back and nothing is announced.
func (e *Engine) SetUserNode(ctx context.Context, id uuid.UUID, n node.Node) error {
	u := e.users.IfLoaded(id)
	if u == nil {
		return notLoaded("user", id.String())
	}
	return e.mutate(ctx, u, actionlog.TargetUser, func() error {
		u.SetNode(n)
		return nil
	}, events.NodeAdded(u.Identifier(), n), setAction(n))
}

// UnsetUserNode removes a permission from a loaded user.
func (e *Engine) UnsetUserNode(ctx context.Context, id uuid.UUID, n node.Node) error {
	u := e.users.IfLoaded(id)
	if u == nil {
		return notLoaded("user", id.String())
	}
	return e.mutate(ctx, u, actionlog.TargetUser, func() error {
		return u.UnsetNode(n)
	}, events.NodeRemoved(u.Identifier(), n), unsetAction(n))
}

// ClearUserNodes removes every enduring node from a loaded user.
func (e *Engine) ClearUserNodes(ctx context.Context, id uuid.UUID) error {
	u := e.users.IfLoaded(id)
	if u == nil {
		return notLoaded("user", id.String())
	}
	return e.mutate(ctx, u, actionlog.TargetUser, func() error {
		u.ClearNodes()
		return nil
	}, events.NodesCleared(u.Identifier()), "cleared nodes")
}

// SetGroupNode grants or denies a permission on a loaded group.
func (e *Engine) SetGroupNode(ctx context.Context, name string, n node.Node) error {
	g := e.groups.IfLoaded(name)
	if g == nil {
		return notLoaded("group", name)
	}
	return e.mutate(ctx, g, actionlog.TargetGroup, func() error {
		g.SetNode(n)
		return nil
	}, events.NodeAdded(g.Identifier(), n), setAction(n))
}

// UnsetGroupNode removes a permission from a loaded group.
func (e *Engine) UnsetGroupNode(ctx context.Context, name string, n node.Node) error {
	g := e.groups.IfLoaded(name)
	if g == nil {
		return notLoaded("group", name)
	}
	return e.mutate(ctx, g, actionlog.TargetGroup, func() error {
		return g.UnsetNode(n)
	}, events.NodeRemoved(g.Identifier(), n), unsetAction(n))
}

// ClearGroupNodes removes every enduring node from a loaded group.
func (e *Engine) ClearGroupNodes(ctx context.Context, name string) error {
	g := e.groups.IfLoaded(name)
	if g == nil {
		return notLoaded("group", name)
	}
	return e.mutate(ctx, g, actionlog.TargetGroup, func() error {
		g.ClearNodes()
		return nil
	}, events.NodesCleared(g.Identifier()), "cleared nodes")
}

// SetTransientUserNode adds a node that lives only for this process.
// No persistence, no audit; the cache is still invalidated.
func (e *Engine) SetTransientUserNode(id uuid.UUID, n node.Node) error {
	u := e.users.IfLoaded(id)
	if u == nil {
		return notLoaded("user", id.String())
	}
	u.SetTransientNode(n)
	e.cache.Invalidate(u.Identifier())
	e.publish(events.NodeAdded(u.Identifier(), n))
	return nil
}

// SetTransientGroupNode adds a session-only node to a loaded group. The node
// is visible to every member through inheritance until the process restarts.
func (e *Engine) SetTransientGroupNode(name string, n node.Node) error {
	g := e.groups.IfLoaded(name)
	if g == nil {
		return notLoaded("group", name)
	}
	g.SetTransientNode(n)
	e.cache.Invalidate(g.Identifier())
	e.publish(events.NodeAdded(g.Identifier(), n))
	return nil
}

// mutate runs an in-memory change, persists it, and only then invalidates
// the cache, audits and publishes. A persistence failure restores the
// holder's previous enduring nodes, so checks keep answering from the last
// saved state.
func (e *Engine) mutate(ctx context.Context, h holder.Holder, targetType actionlog.TargetType,
	apply func() error, event events.Event, action string,
) error {
	snapshot := h.EnduringNodes()
	if err := apply(); err != nil {
		return err
	}

	var err error
	switch target := h.(type) {
	case *holder.User:
		err = e.store.SaveUser(ctx, target)
	case *holder.Group:
		err = e.store.SaveGroup(ctx, target)
	}
	if err != nil {
		h.SetNodes(snapshot)
		// A check racing the failed save may have cached the applied state;
		// drop it so checks answer from the restored nodes.
		e.cache.Invalidate(h.Identifier())
		return err
	}

	e.cache.Invalidate(h.Identifier())
	e.publish(event)
	e.record(ctx, targetType, h.Identifier(), action)
	return nil
}

// SweepTemporaryNodes removes expired enduring nodes from every loaded
// holder and persists the holders it touched. Run periodically.
func (e *Engine) SweepTemporaryNodes(ctx context.Context) error {
	at := e.now()
	var firstErr error

	for _, u := range e.users.All() {
		expired := u.AuditTemporaryNodes(at)
		if len(expired) == 0 {
			continue
		}
		if err := e.store.SaveUser(ctx, u); err != nil && firstErr == nil {
			firstErr = err
		}
		e.cache.Invalidate(u.Identifier())
		for _, n := range expired {
			e.publish(events.NodeRemoved(u.Identifier(), n))
			e.record(ctx, actionlog.TargetUser, u.Identifier(), expireAction(n))
		}
	}
	for _, g := range e.groups.All() {
		expired := g.AuditTemporaryNodes(at)
		if len(expired) == 0 {
			continue
		}
		if err := e.store.SaveGroup(ctx, g); err != nil && firstErr == nil {
			firstErr = err
		}
		e.cache.Invalidate(g.Identifier())
		for _, n := range expired {
			e.publish(events.NodeRemoved(g.Identifier(), n))
			e.record(ctx, actionlog.TargetGroup, g.Identifier(), expireAction(n))
		}
	}
	return firstErr
}

func setAction(n node.Node) string {
	return fmt.Sprintf("permission set %s %t", n.Key(), n.Value())
}

func unsetAction(n node.Node) string {
	return fmt.Sprintf("permission unset %s", n.Key())
}

func expireAction(n node.Node) string {
	return fmt.Sprintf("permission expired %s", n.Key())
}
