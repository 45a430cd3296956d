// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package contexts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImmutableContextSet_Empty(t *testing.T) {
	assert.True(t, Empty.IsEmpty())
	assert.Equal(t, "", Empty.Key())
	assert.Equal(t, "global", Empty.String())
	assert.True(t, Empty.SatisfiedBy(Of("world", "nether")), "empty set is global")
}

func TestMutableContextSet_AddRemove(t *testing.T) {
	m := NewMutable()
	m.Add("Server", "Survival").Add("world", "nether").Add("world", "end")

	s := m.Immutable()
	assert.True(t, s.Contains("server", "survival"), "keys and values are case-folded")
	assert.ElementsMatch(t, []string{"end", "nether"}, s.Values("world"))
	assert.Equal(t, 3, s.Size())

	m.Remove("world", "end")
	m.Remove("server", "survival")
	s2 := m.Immutable()
	assert.False(t, s2.ContainsKey("server"), "key removed with last value")
	assert.Equal(t, []string{"nether"}, s2.Values("world"))
}

func TestMutableContextSet_IgnoresBlankPairs(t *testing.T) {
	s := NewMutable().Add("", "x").Add("world", "").Add(" ", " ").Immutable()
	assert.True(t, s.IsEmpty())
}

func TestImmutableContextSet_Key_Canonical(t *testing.T) {
	a := Of("world", "nether", "server", "survival")
	b := Of("server", "survival", "world", "nether")
	assert.Equal(t, a.Key(), b.Key(), "key is order-independent")
	assert.Equal(t, "server=survival;world=nether", a.Key())
	assert.True(t, a.Equal(b))
}

func TestImmutableContextSet_SatisfiedBy(t *testing.T) {
	tests := []struct {
		name  string
		node  ImmutableContextSet
		query ImmutableContextSet
		want  bool
	}{
		{"empty node always applies", Empty, Of("world", "x"), true},
		{"exact match", Of("world", "x"), Of("world", "x"), true},
		{"value mismatch", Of("world", "x"), Of("world", "y"), false},
		{"missing key in query", Of("world", "x"), Empty, false},
		{"any accepted value suffices", Of("world", "x").Mutable().Add("world", "y").Immutable(), Of("world", "y"), true},
		{"all keys must hold", Of("world", "x", "server", "s1"), Of("world", "x"), false},
		{"extra query keys ignored", Of("world", "x"), Of("world", "x", "server", "s1"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.node.SatisfiedBy(tt.query))
		})
	}
}

func TestParseKey_RoundTrip(t *testing.T) {
	s := Of("server", "survival", "world", "nether", "world", "end")
	got := ParseKey(s.Key())
	require.True(t, s.Equal(got))

	assert.True(t, ParseKey("").IsEmpty())
	assert.True(t, ParseKey("garbage").IsEmpty(), "malformed pairs are skipped")
}

func TestImmutableContextSet_AnyValue(t *testing.T) {
	s := Of(KeyServer, "survival")
	assert.Equal(t, "survival", s.AnyValue(KeyServer))
	assert.Equal(t, "", s.AnyValue(KeyWorld))
}
