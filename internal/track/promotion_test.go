// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package track

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permforge/permforge/internal/contexts"
	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/node"
	"github.com/permforge/permforge/pkg/errutil"
)

// fixture builds the canonical three-step ladder with all groups loaded.
func fixture(t *testing.T) (*Track, *holder.GroupManager) {
	t.Helper()
	tr, err := New("staff", "default", "member", "admin")
	require.NoError(t, err)
	gm := holder.NewGroupManager()
	for _, g := range tr.Groups() {
		gm.GetOrMake(g)
	}
	return tr, gm
}

func groupKeys(u *holder.User) []string {
	var out []string
	for _, n := range u.EnduringNodes() {
		if n.IsGroupNode() {
			out = append(out, n.GroupName())
		}
	}
	return out
}

func TestPromote_StepForward(t *testing.T) {
	tr, gm := fixture(t)
	u := holder.NewUser(uuid.New(), "luck")
	u.SetNode(node.NewGroupNode("default").MustBuild())

	res, err := Promote(u, tr, contexts.Empty, gm)
	require.NoError(t, err)

	assert.Equal(t, Moved, res.Kind)
	assert.Equal(t, "default", res.From)
	assert.Equal(t, "member", res.To)
	assert.Equal(t, []string{"member"}, groupKeys(u), "old membership gone, new present")
}

func TestPromote_Bootstrap(t *testing.T) {
	tr, gm := fixture(t)
	u := holder.NewUser(uuid.New(), "luck")

	res, err := Promote(u, tr, contexts.Empty, gm)
	require.NoError(t, err)

	assert.Equal(t, AddedToFirst, res.Kind)
	assert.Equal(t, "", res.From)
	assert.Equal(t, "default", res.To)
	assert.Equal(t, []string{"default"}, groupKeys(u))
}

func TestPromote_BootstrapMalformedTrack(t *testing.T) {
	tr, err := New("staff", "ghost", "admin")
	require.NoError(t, err)
	gm := holder.NewGroupManager()
	gm.GetOrMake("admin")
	u := holder.NewUser(uuid.New(), "luck")

	_, err = Promote(u, tr, contexts.Empty, gm)
	errutil.AssertWrappedSentinel(t, err, ErrMalformedTrack, "MALFORMED_TRACK")
	assert.Empty(t, groupKeys(u), "no mutation on failure")
}

func TestPromote_EndOfTrack(t *testing.T) {
	tr, gm := fixture(t)
	u := holder.NewUser(uuid.New(), "luck")
	u.SetNode(node.NewGroupNode("admin").MustBuild())

	_, err := Promote(u, tr, contexts.Empty, gm)
	errutil.AssertWrappedSentinel(t, err, ErrEndOfTrack, "END_OF_TRACK")
	assert.Equal(t, []string{"admin"}, groupKeys(u), "no node change on end of track")
}

func TestPromote_AmbiguousPosition(t *testing.T) {
	tr, gm := fixture(t)
	u := holder.NewUser(uuid.New(), "luck")
	u.SetNode(node.NewGroupNode("default").MustBuild())
	u.SetNode(node.NewGroupNode("member").MustBuild())

	_, err := Promote(u, tr, contexts.Empty, gm)
	errutil.AssertWrappedSentinel(t, err, ErrAmbiguousPosition, "AMBIGUOUS_POSITION")
	assert.ElementsMatch(t, []string{"default", "member"}, groupKeys(u), "no group is changed")
}

func TestPromote_TrackTooShort(t *testing.T) {
	tr, err := New("lonely", "default")
	require.NoError(t, err)
	gm := holder.NewGroupManager()
	gm.GetOrMake("default")
	u := holder.NewUser(uuid.New(), "luck")

	_, err = Promote(u, tr, contexts.Empty, gm)
	errutil.AssertWrappedSentinel(t, err, ErrTooShort, "TRACK_TOO_SHORT")
}

func TestPromote_ContextScoped(t *testing.T) {
	tr, gm := fixture(t)
	nether := contexts.Of("region", "nether")

	u := holder.NewUser(uuid.New(), "luck")
	u.SetNode(node.NewGroupNode("default").MustBuild()) // global position
	u.SetNode(node.NewGroupNode("member").WithContext(nether).MustBuild())

	// Contexts partition positions: the nether promotion sees only the
	// nether membership and leaves the global one alone.
	res, err := Promote(u, tr, nether, gm)
	require.NoError(t, err)
	assert.Equal(t, "member", res.From)
	assert.Equal(t, "admin", res.To)
	assert.ElementsMatch(t, []string{"default", "admin"}, groupKeys(u))
}

func TestPromote_ServerScopedContext(t *testing.T) {
	tr, gm := fixture(t)
	ctx := contexts.Of(contexts.KeyServer, "survival")

	u := holder.NewUser(uuid.New(), "luck")
	res, err := Promote(u, tr, ctx, gm)
	require.NoError(t, err)
	assert.Equal(t, AddedToFirst, res.Kind)

	// The server entry is lifted into the node's scoping field.
	ns := u.EnduringNodes()
	require.Len(t, ns, 1)
	assert.Equal(t, "survival", ns[0].Server())
	assert.True(t, ns[0].Context().IsEmpty())

	// The same context finds the position again.
	res, err = Promote(u, tr, ctx, gm)
	require.NoError(t, err)
	assert.Equal(t, Moved, res.Kind)
	assert.Equal(t, "member", res.To)
}

func TestPromote_RepointsPrimaryGroup(t *testing.T) {
	tr, gm := fixture(t)
	u := holder.NewUser(uuid.New(), "luck")
	u.SetNode(node.NewGroupNode("default").MustBuild())
	require.Equal(t, "default", u.PrimaryGroup())

	_, err := Promote(u, tr, contexts.Empty, gm)
	require.NoError(t, err)
	assert.Equal(t, "member", u.PrimaryGroup())

	// Context-scoped moves never touch the primary group.
	u2 := holder.NewUser(uuid.New(), "luck2")
	ctx := contexts.Of("region", "nether")
	u2.SetNode(node.NewGroupNode("default").WithContext(ctx).MustBuild())
	_, err = Promote(u2, tr, ctx, gm)
	require.NoError(t, err)
	assert.Equal(t, holder.DefaultGroupName, u2.PrimaryGroup())
}

func TestDemote_StepBackward(t *testing.T) {
	tr, gm := fixture(t)
	u := holder.NewUser(uuid.New(), "luck")
	u.SetNode(node.NewGroupNode("admin").MustBuild())
	u.SetPrimaryGroup("admin")

	res, err := Demote(u, tr, contexts.Empty, gm)
	require.NoError(t, err)
	assert.Equal(t, Moved, res.Kind)
	assert.Equal(t, "admin", res.From)
	assert.Equal(t, "member", res.To)
	assert.Equal(t, "member", u.PrimaryGroup())
}

func TestDemote_FromFirstRemovesMembership(t *testing.T) {
	tr, gm := fixture(t)
	u := holder.NewUser(uuid.New(), "luck")
	u.SetNode(node.NewGroupNode("default").MustBuild())

	res, err := Demote(u, tr, contexts.Empty, gm)
	require.NoError(t, err)
	assert.Equal(t, RemovedFromTrack, res.Kind)
	assert.Equal(t, "default", res.From)
	assert.Equal(t, "", res.To)
	assert.Empty(t, groupKeys(u))
}

func TestDemote_NotOnTrack(t *testing.T) {
	tr, gm := fixture(t)
	u := holder.NewUser(uuid.New(), "luck")

	_, err := Demote(u, tr, contexts.Empty, gm)
	errutil.AssertWrappedSentinel(t, err, ErrNotOnTrack, "NOT_ON_TRACK")
}

func TestDemote_AmbiguousPosition(t *testing.T) {
	tr, gm := fixture(t)
	u := holder.NewUser(uuid.New(), "luck")
	u.SetNode(node.NewGroupNode("member").MustBuild())
	u.SetNode(node.NewGroupNode("admin").MustBuild())

	_, err := Demote(u, tr, contexts.Empty, gm)
	errutil.AssertWrappedSentinel(t, err, ErrAmbiguousPosition, "AMBIGUOUS_POSITION")
	assert.ElementsMatch(t, []string{"member", "admin"}, groupKeys(u))
}

func TestPromote_OffTrackMembershipIgnored(t *testing.T) {
	tr, gm := fixture(t)
	u := holder.NewUser(uuid.New(), "luck")
	u.SetNode(node.NewGroupNode("vip").MustBuild()) // not on the track

	res, err := Promote(u, tr, contexts.Empty, gm)
	require.NoError(t, err)
	assert.Equal(t, AddedToFirst, res.Kind)
	assert.ElementsMatch(t, []string{"vip", "default"}, groupKeys(u))
}
