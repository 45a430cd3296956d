// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package track

import "errors"

// Sentinel errors for track and promotion state failures. Each is wrapped in
// an oops error carrying a stable code at the point of failure; callers
// branch with errors.Is.
var (
	// ErrTooShort: the track has fewer than two groups, so there is nothing
	// to promote or demote along.
	ErrTooShort = errors.New("track requires at least two groups")

	// ErrEndOfTrack: the user is already at the final group.
	ErrEndOfTrack = errors.New("end of track reached")

	// ErrAmbiguousPosition: the user belongs to more than one of the track's
	// groups in the same context; the caller must resolve manually.
	ErrAmbiguousPosition = errors.New("ambiguous track position")

	// ErrGroupNotOnTrack: the referenced group is not listed on the track.
	ErrGroupNotOnTrack = errors.New("group is not on the track")

	// ErrNotOnTrack: the user holds no membership in any of the track's
	// groups for the given context.
	ErrNotOnTrack = errors.New("user is not on the track")

	// ErrMalformedTrack: the track references a group that cannot be
	// resolved. Logged as a data-integrity warning by the engine.
	ErrMalformedTrack = errors.New("track references an unknown group")

	// ErrDuplicateGroup: track mutations must keep the group list free of
	// duplicates.
	ErrDuplicateGroup = errors.New("group already on track")
)
