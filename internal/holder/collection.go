// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package holder

import (
	"sync"

	"github.com/permforge/permforge/internal/node"
)

// nodeList is a copy-on-write ordered node collection. Readers get the
// current backing slice without copying; every mutation builds a fresh slice
// and swaps it in under the lock, so a snapshot handed to an iterating
// permission check is never modified underneath it.
type nodeList struct {
	mu    sync.RWMutex
	nodes []node.Node
}

// snapshot returns the current backing slice. Callers must not mutate it.
func (l *nodeList) snapshot() []node.Node {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nodes
}

// set adds n, replacing any node equivalent under node.Equals. The replaced
// node keeps its original position so insertion order stays meaningful as a
// resolution tie-break. Reports whether a replacement happened.
func (l *nodeList) set(n node.Node) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]node.Node, 0, len(l.nodes)+1)
	replaced := false
	for _, existing := range l.nodes {
		if !replaced && existing.Equals(n) {
			next = append(next, n)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, n)
	}
	l.nodes = next
	return replaced
}

// remove drops the node equivalent to n, reporting whether one was found.
func (l *nodeList) remove(n node.Node) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, existing := range l.nodes {
		if existing.Equals(n) {
			next := make([]node.Node, 0, len(l.nodes)-1)
			next = append(next, l.nodes[:i]...)
			next = append(next, l.nodes[i+1:]...)
			l.nodes = next
			return true
		}
	}
	return false
}

// replace atomically swaps the node equivalent to old for replacement in a
// single copy-on-write step, so no snapshot ever shows neither node.
// Reports whether old was found.
func (l *nodeList) replace(old, replacement node.Node) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	found := false
	next := make([]node.Node, 0, len(l.nodes))
	for _, existing := range l.nodes {
		if !found && existing.Equals(old) {
			found = true
			continue
		}
		if existing.Equals(replacement) {
			continue
		}
		next = append(next, existing)
	}
	if !found {
		return false
	}
	next = append(next, replacement)
	l.nodes = next
	return true
}

// removeIf drops every node matching pred and returns the removed nodes.
func (l *nodeList) removeIf(pred func(node.Node) bool) []node.Node {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed []node.Node
	next := make([]node.Node, 0, len(l.nodes))
	for _, existing := range l.nodes {
		if pred(existing) {
			removed = append(removed, existing)
			continue
		}
		next = append(next, existing)
	}
	if len(removed) > 0 {
		l.nodes = next
	}
	return removed
}

// clear empties the list and returns the previous contents.
func (l *nodeList) clear() []node.Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.nodes
	l.nodes = nil
	return old
}

// replaceAll swaps in a copy of ns.
func (l *nodeList) replaceAll(ns []node.Node) {
	fresh := make([]node.Node, len(ns))
	copy(fresh, ns)
	l.mu.Lock()
	l.nodes = fresh
	l.mu.Unlock()
}
