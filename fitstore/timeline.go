// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitstore

import (
	"sort"
)

// TimelineEntry is one element of an exercise's merged set/rest timeline.
// Exactly one of Set and Rest is non-nil, matching Kind.
type TimelineEntry struct {
	Kind string // "set" or "rest"
	Set  *Set
	Rest *RestPeriod
}

const (
	TimelineSet  = "set"
	TimelineRest = "rest"
)

// MergeTimeline derives the position-ordered interleaving of one exercise's
// sets and rest periods. Rest periods are bucketed by position; sets are
// walked in ascending position order, each followed by the rests bucketed at
// that position. Rests bucketed at position 0 come before the first set.
// Buckets left over at orphaned positions are appended at the end in
// ascending position order.
//
// The function is pure: inputs are not mutated, and running it twice on the
// same input yields identical output. It is recomputed on read after every
// mutation and never persisted.
func MergeTimeline(sets []Set, rests []RestPeriod) []TimelineEntry {
	ordered := make([]Set, len(sets))
	copy(ordered, sets)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Position != ordered[j].Position {
			return ordered[i].Position < ordered[j].Position
		}
		return ordered[i].LocalID < ordered[j].LocalID
	})

	buckets := make(map[int][]RestPeriod)
	for _, r := range rests {
		buckets[r.Position] = append(buckets[r.Position], r)
	}
	for pos := range buckets {
		b := buckets[pos]
		sort.SliceStable(b, func(i, j int) bool { return b[i].LocalID < b[j].LocalID })
	}

	timeline := make([]TimelineEntry, 0, len(sets)+len(rests))
	emitBucket := func(pos int) {
		for i := range buckets[pos] {
			r := buckets[pos][i]
			timeline = append(timeline, TimelineEntry{Kind: TimelineRest, Rest: &r})
		}
		delete(buckets, pos)
	}

	if len(ordered) > 0 {
		emitBucket(0)
	}
	for i := range ordered {
		s := ordered[i]
		timeline = append(timeline, TimelineEntry{Kind: TimelineSet, Set: &s})
		emitBucket(s.Position)
	}

	// Orphaned rest buckets keep their relative order at the tail.
	leftover := make([]int, 0, len(buckets))
	for pos := range buckets {
		leftover = append(leftover, pos)
	}
	sort.Ints(leftover)
	for _, pos := range leftover {
		emitBucket(pos)
	}
	return timeline
}
