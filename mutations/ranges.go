// shm-trees: lineage tree reconstruction for immune-receptor clonotypes.
// Copyright (c) 2026 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/shmtrees/blob/master/LICENSE.txt>.

package mutations

import (
	"log"

	"github.com/exascience/shmtrees/intervals"
)

// RangeInfo restricts mutations to a range of sequence1. Insertions at
// the lower boundary belong to the range only if IncludeFirstInserts is
// set, insertions at the upper boundary only if IncludeLastInserts is
// set.
type RangeInfo struct {
	Range               intervals.Interval
	IncludeFirstInserts bool
	IncludeLastInserts  bool
}

// NewRangeInfo returns a RangeInfo that includes insertions at the
// upper boundary.
func NewRangeInfo(r intervals.Interval, includeFirstInserts bool) RangeInfo {
	return RangeInfo{Range: r, IncludeFirstInserts: includeFirstInserts, IncludeLastInserts: true}
}

// ExtractAbsoluteMutations keeps the mutations that belong to the range.
func (info RangeInfo) ExtractAbsoluteMutations(mutations Mutations) Mutations {
	return mutations.ExtractAbsoluteMutations(info.Range.Start, info.Range.End, info.IncludeFirstInserts, info.IncludeLastInserts)
}

// Intersection restricts the range to r. Boundaries that move are
// inclusive for insertions.
func (info RangeInfo) Intersection(r intervals.Interval) (RangeInfo, bool) {
	common, ok := info.Range.Intersection(r)
	if !ok {
		return RangeInfo{}, false
	}
	result := RangeInfo{Range: common, IncludeFirstInserts: true, IncludeLastInserts: true}
	if common.Start == info.Range.Start {
		result.IncludeFirstInserts = info.IncludeFirstInserts
	}
	if common.End == info.Range.End {
		result.IncludeLastInserts = info.IncludeLastInserts
	}
	return result, true
}

/*
MutationsWithRange is a fragment of a mutated sequence: the mutations
of a range of Sequence1.

FromBaseToParent turns Sequence1 into the sequence of a parent, and
FromParentToThis, in coordinates of the parent sequence, turns that
into this sequence. A fragment that directly describes a node has no
FromBaseToParent mutations.
*/
type MutationsWithRange struct {
	Sequence1        string
	FromBaseToParent Mutations
	FromParentToThis Mutations
	RangeInfo        RangeInfo
}

// NewMutationsWithRange keeps the mutations that belong to rangeInfo.
func NewMutationsWithRange(sequence1 string, mutations Mutations, rangeInfo RangeInfo) MutationsWithRange {
	return MutationsWithRange{
		Sequence1:        sequence1,
		FromParentToThis: rangeInfo.ExtractAbsoluteMutations(mutations),
		RangeInfo:        rangeInfo,
	}
}

// DifferenceWithRange describes how the fragment of comparison differs
// from the fragment of base. Both must cover the same range.
func DifferenceWithRange(base, comparison MutationsWithRange) MutationsWithRange {
	if base.RangeInfo.Range != comparison.RangeInfo.Range {
		log.Panicf("difference of fragments with different ranges %v and %v", base.RangeInfo.Range, comparison.RangeInfo.Range)
	}
	from, to := base.Mutations(), comparison.Mutations()
	return MutationsWithRange{
		Sequence1:        base.Sequence1,
		FromBaseToParent: from,
		FromParentToThis: Difference(from, to),
		RangeInfo:        base.RangeInfo,
	}
}

// Range is a shortcut for RangeInfo.Range.
func (m MutationsWithRange) Range() intervals.Interval {
	return m.RangeInfo.Range
}

// Mutations returns all mutations from Sequence1 to this sequence.
func (m MutationsWithRange) Mutations() Mutations {
	return m.FromBaseToParent.CombineWith(m.FromParentToThis)
}

// Mutate applies further mutations, given in coordinates of this
// sequence, and returns the result as a fragment without base.
func (m MutationsWithRange) Mutate(next Mutations) MutationsWithRange {
	return MutationsWithRange{
		Sequence1:        m.Sequence1,
		FromParentToThis: m.Mutations().CombineWith(next),
		RangeInfo:        m.RangeInfo,
	}
}

// WithMutations returns a fragment without base with the given
// mutations.
func (m MutationsWithRange) WithMutations(mutations Mutations) MutationsWithRange {
	return MutationsWithRange{
		Sequence1:        m.Sequence1,
		FromParentToThis: mutations,
		RangeInfo:        m.RangeInfo,
	}
}

// BuildSequence returns the mutated fragment.
func (m MutationsWithRange) BuildSequence() string {
	return BuildSequence(m.Sequence1, m.Mutations(), m.RangeInfo.Range)
}

// LengthDelta is the length of the mutated fragment minus the length of
// the range.
func (m MutationsWithRange) LengthDelta() int {
	return m.Mutations().LengthDelta()
}

func (m MutationsWithRange) parent() (string, intervals.Interval) {
	if len(m.FromBaseToParent) == 0 {
		return m.Sequence1, m.RangeInfo.Range
	}
	return m.FromBaseToParent.Mutate(m.Sequence1), ProjectRange(m.FromBaseToParent, m.RangeInfo.Range)
}

// Score scores the parent fragment aligned against this fragment.
func (m MutationsWithRange) Score(scoring *AffineGapScoring) int {
	sequence, r := m.parent()
	return scoring.CalculateScore(sequence, r, m.FromParentToThis)
}

// MaxScore scores the parent fragment aligned against itself.
func (m MutationsWithRange) MaxScore(scoring *AffineGapScoring) int {
	sequence, r := m.parent()
	return scoring.MaxScore(sequence[r.Start:r.End])
}

// Intersection keeps the mutations from parent to this that other has
// too. Both must share the same parent.
func (m MutationsWithRange) Intersection(other MutationsWithRange) MutationsWithRange {
	m.FromParentToThis = Intersection(m.FromParentToThis, other.FromParentToThis)
	return m
}

// Combine concatenates two adjacent fragments of the same sequence.
// Exactly one of them must claim the insertions at the shared boundary.
func Combine(left, right MutationsWithRange) MutationsWithRange {
	if left.RangeInfo.Range.End != right.RangeInfo.Range.Start {
		log.Panicf("combining fragments %v and %v that do not touch", left.RangeInfo.Range, right.RangeInfo.Range)
	}
	if left.RangeInfo.IncludeLastInserts == right.RangeInfo.IncludeFirstInserts {
		log.Panicf("fragments %v and %v disagree on insertions at position %v", left.RangeInfo.Range, right.RangeInfo.Range, right.RangeInfo.Range.Start)
	}
	if len(left.FromBaseToParent) != 0 || len(right.FromBaseToParent) != 0 {
		log.Panic("combining fragments that have a base")
	}
	if left.Sequence1 != right.Sequence1 {
		log.Panic("combining fragments of different sequences")
	}
	return MutationsWithRange{
		Sequence1:        left.Sequence1,
		FromParentToThis: left.FromParentToThis.Concat(right.FromParentToThis),
		RangeInfo: RangeInfo{
			Range:               intervals.Interval{Start: left.RangeInfo.Range.Start, End: right.RangeInfo.Range.End},
			IncludeFirstInserts: left.RangeInfo.IncludeFirstInserts,
			IncludeLastInserts:  right.RangeInfo.IncludeLastInserts,
		},
	}
}

// CombineWithMutationsToTheRight extends the fragment with mutations of
// the adjacent range r, typically the result of AlignGlobal.
func (m MutationsWithRange) CombineWithMutationsToTheRight(mutations Mutations, r intervals.Interval) MutationsWithRange {
	if m.RangeInfo.Range.End != r.Start {
		log.Panicf("range %v is not right of %v", r, m.RangeInfo.Range)
	}
	return MutationsWithRange{
		Sequence1:        m.Sequence1,
		FromParentToThis: m.Mutations().Concat(mutations.ExtractAbsoluteMutations(r.Start, r.End, true, true)),
		RangeInfo: RangeInfo{
			Range:               intervals.Interval{Start: m.RangeInfo.Range.Start, End: r.End},
			IncludeFirstInserts: m.RangeInfo.IncludeFirstInserts,
			IncludeLastInserts:  true,
		},
	}
}

// CombineWithMutationsToTheLeft extends the fragment with mutations of
// the adjacent range r, typically the result of AlignGlobal.
func (m MutationsWithRange) CombineWithMutationsToTheLeft(mutations Mutations, r intervals.Interval) MutationsWithRange {
	if r.End != m.RangeInfo.Range.Start {
		log.Panicf("range %v is not left of %v", r, m.RangeInfo.Range)
	}
	return MutationsWithRange{
		Sequence1:        m.Sequence1,
		FromParentToThis: mutations.ExtractAbsoluteMutations(r.Start, r.End, true, true).Concat(m.Mutations()),
		RangeInfo: RangeInfo{
			Range:               intervals.Interval{Start: r.Start, End: m.RangeInfo.Range.End},
			IncludeFirstInserts: true,
			IncludeLastInserts:  m.RangeInfo.IncludeLastInserts,
		},
	}
}
