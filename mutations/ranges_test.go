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
	"testing"

	"github.com/exascience/shmtrees/intervals"
)

func interval(start, end int) intervals.Interval {
	return intervals.Interval{Start: start, End: end}
}

func expectPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%v did not panic", name)
		}
	}()
	f()
}

func TestCombineFragments(t *testing.T) {
	mutations := MustDecode("SA0TI2CSA4G")
	left := NewMutationsWithRange(testSequence, mutations, RangeInfo{Range: interval(0, 2), IncludeFirstInserts: false, IncludeLastInserts: true})
	right := NewMutationsWithRange(testSequence, mutations, RangeInfo{Range: interval(2, 8), IncludeFirstInserts: false, IncludeLastInserts: true})
	if encoded := left.FromParentToThis.Encode(); encoded != "SA0TI2C" {
		t.Errorf("left fragment has mutations %v", encoded)
	}
	if encoded := right.FromParentToThis.Encode(); encoded != "SA4G" {
		t.Errorf("right fragment has mutations %v", encoded)
	}
	combined := Combine(left, right)
	if combined.Range() != interval(0, 8) || combined.RangeInfo.IncludeFirstInserts || !combined.RangeInfo.IncludeLastInserts {
		t.Errorf("combined fragment has range %v", combined.RangeInfo)
	}
	if result := combined.BuildSequence(); result != "TCCGTGCGT" {
		t.Errorf("combined fragment builds %v", result)
	}
	if left.LengthDelta() != 1 || right.LengthDelta() != 0 {
		t.Error("LengthDelta failed")
	}

	both := NewMutationsWithRange(testSequence, mutations, RangeInfo{Range: interval(2, 8), IncludeFirstInserts: true, IncludeLastInserts: true})
	expectPanic(t, "Combine with insertions claimed twice", func() { Combine(left, both) })
	expectPanic(t, "Combine with a gap", func() {
		Combine(left, NewMutationsWithRange(testSequence, mutations, NewRangeInfo(interval(3, 8), false)))
	})
}

func TestCombineWithAlignedMutations(t *testing.T) {
	fragment := NewMutationsWithRange(testSequence, MustDecode("SA0T"), NewRangeInfo(interval(0, 4), false))
	right := fragment.CombineWithMutationsToTheRight(MustDecode("SA4G"), interval(4, 8))
	if right.Range() != interval(0, 8) {
		t.Errorf("extended range is %v", right.Range())
	}
	if result := right.BuildSequence(); result != "TCGTGCGT" {
		t.Errorf("extended fragment builds %v", result)
	}
	fragment = NewMutationsWithRange(testSequence, MustDecode("SA4G"), NewRangeInfo(interval(4, 8), false))
	left := fragment.CombineWithMutationsToTheLeft(MustDecode("I2CSG2A"), interval(2, 4))
	if left.Range() != interval(2, 8) || !left.RangeInfo.IncludeFirstInserts {
		t.Errorf("extended range is %v", left.RangeInfo)
	}
	if result := left.BuildSequence(); result != "CATGCGT" {
		t.Errorf("extended fragment builds %v", result)
	}
}

func TestDifferenceWithRange(t *testing.T) {
	base := NewMutationsWithRange(testSequence, MustDecode("SA0T"), NewRangeInfo(interval(0, 8), true))
	comparison := NewMutationsWithRange(testSequence, MustDecode("SA0TSC1G"), NewRangeInfo(interval(0, 8), true))
	delta := DifferenceWithRange(base, comparison)
	if encoded := delta.FromParentToThis.Encode(); encoded != "SC1G" {
		t.Errorf("difference is %v", encoded)
	}
	if !delta.Mutations().Equal(comparison.Mutations()) {
		t.Errorf("difference mutates to %v", delta.Mutations())
	}
	blast := NucleotideBLASTScoring()
	if delta.Score(blast) != 31 || delta.MaxScore(blast) != 40 {
		t.Errorf("difference scores %v of %v", delta.Score(blast), delta.MaxScore(blast))
	}
	if same := DifferenceWithRange(base, base); same.Score(blast) != same.MaxScore(blast) {
		t.Error("difference with itself has a penalty")
	}
	if result := base.Mutate(MustDecode("SC1G")).BuildSequence(); result != "TGGTACGT" {
		t.Errorf("Mutate builds %v", result)
	}
	expectPanic(t, "DifferenceWithRange over different ranges", func() {
		DifferenceWithRange(base, NewMutationsWithRange(testSequence, nil, NewRangeInfo(interval(0, 4), true)))
	})
}

func TestRangeInfoIntersection(t *testing.T) {
	info := RangeInfo{Range: interval(2, 10), IncludeFirstInserts: false, IncludeLastInserts: false}
	if result, ok := info.Intersection(interval(0, 6)); !ok || result != (RangeInfo{Range: interval(2, 6), IncludeFirstInserts: false, IncludeLastInserts: true}) {
		t.Errorf("Intersection returned %v", result)
	}
	if result, ok := info.Intersection(interval(4, 12)); !ok || result != (RangeInfo{Range: interval(4, 10), IncludeFirstInserts: true, IncludeLastInserts: false}) {
		t.Errorf("Intersection returned %v", result)
	}
	if _, ok := info.Intersection(interval(10, 12)); ok {
		t.Error("Intersection of disjoint ranges succeeded")
	}
}
