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

package intervals

import (
	"fmt"
	"sort"

	"github.com/exascience/pargo/parallel"
	psort "github.com/exascience/pargo/sort"
)

// Interval is a half-open range [Start, End) of sequence positions.
// An Interval with Start > End is reversed; it arises when two
// boundaries computed independently cross, and is never a valid
// alignment range.
type Interval struct {
	Start, End int
}

// Length returns End - Start, which is negative for reversed intervals.
func (interval Interval) Length() int {
	return interval.End - interval.Start
}

// IsEmpty is true for zero-length and reversed intervals.
func (interval Interval) IsEmpty() bool {
	return interval.End <= interval.Start
}

// IsReverse is true if Start > End.
func (interval Interval) IsReverse() bool {
	return interval.Start > interval.End
}

// Contains checks whether position lies in [Start, End).
func (interval Interval) Contains(position int) bool {
	return position >= interval.Start && position < interval.End
}

// ContainsInterval checks whether other lies completely inside interval.
func (interval Interval) ContainsInterval(other Interval) bool {
	return other.Start >= interval.Start && other.End <= interval.End
}

// Intersection returns the common part of two intervals. The second
// result is false if the intervals do not share any position.
func (interval Interval) Intersection(other Interval) (Interval, bool) {
	result := Interval{Start: max(interval.Start, other.Start), End: min(interval.End, other.End)}
	if result.Start >= result.End {
		return Interval{}, false
	}
	return result, true
}

// Move shifts both boundaries by offset.
func (interval Interval) Move(offset int) Interval {
	return Interval{Start: interval.Start + offset, End: interval.End + offset}
}

func (interval Interval) String() string {
	return fmt.Sprintf("[%v, %v)", interval.Start, interval.End)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// SortByStart sorts a slice of Interval by Start position.
func SortByStart(intervals []Interval) {
	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].Start < intervals[j].Start
	})
}

type stableIntervalSorter []Interval

func (s stableIntervalSorter) SequentialSort(i, j int) {
	SortByStart(s[i:j])
}

func (s stableIntervalSorter) NewTemp() psort.StableSorter {
	return stableIntervalSorter(make([]Interval, len(s)))
}

func (s stableIntervalSorter) Len() int {
	return len(s)
}

func (s stableIntervalSorter) Less(i, j int) bool {
	return s[i].Start < s[j].Start
}

func (s stableIntervalSorter) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := s, source.(stableIntervalSorter)
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

// ParallelSortByStart sorts a slice of Interval by Start position using
// a parallel stable sort.
func ParallelSortByStart(intervals []Interval) {
	psort.StableSort(stableIntervalSorter(intervals))
}

// Extend makes interval1 larger if it overlaps with or touches
// interval2, by storing max(interval1.End, interval2.End) in
// interval1.End; otherwise, interval1 remains unchanged.
// Returns true if the two intervals overlap, false otherwise.
// interval2.Start >= interval1.Start must be true before
// calling Extend.
func (interval1 *Interval) Extend(interval2 Interval) bool {
	if interval2.Start > interval1.End {
		return false
	}
	if interval2.End > interval1.End {
		interval1.End = interval2.End
	}
	return true
}

// Flatten merges overlapping intervals into larger intervals.
// intervals must be sorted by Start before calling Flatten.
// The resulting slice is sorted by Start, and no two
// intervals in the result overlap with each other.
// The result shares memory with the intervals argument.
func Flatten(intervals []Interval) []Interval {
	for i, n := 0, len(intervals)-1; i < n; i++ {
		if intervals[i].Extend(intervals[i+1]) {
			n++
			for j := i + 1; j < n; j++ {
				if !intervals[i].Extend(intervals[j]) {
					i++
					intervals[i] = intervals[j]
				}
			}
			return intervals[:i+1]
		}
	}
	return intervals
}

const parallelFlattenGrainSize = 0x1000

// ParallelFlatten merges overlapping intervals into larger intervals,
// using a parallel algorithm.
// intervals must be sorted by Start before calling Flatten.
// The resulting slice is sorted by Start, and no two
// intervals in the result overlap with each other.
// The result shares memory with the intervals argument.
func ParallelFlatten(intervals []Interval) []Interval {
	if len(intervals) < parallelFlattenGrainSize {
		return Flatten(intervals)
	}
	half := len(intervals) >> 1
	left, right := intervals[:half], intervals[half:]
	parallel.Do(
		func() { left = ParallelFlatten(left) },
		func() { right = ParallelFlatten(right) },
	)
	for len(right) > 0 && left[len(left)-1].Extend(right[0]) {
		right = right[1:]
	}
	return append(left, right...)
}

// Coverage returns the flattened union of the given intervals. Empty
// and reversed intervals are ignored. The argument is not modified.
func Coverage(intervals []Interval) []Interval {
	result := make([]Interval, 0, len(intervals))
	for _, interval := range intervals {
		if !interval.IsEmpty() {
			result = append(result, interval)
		}
	}
	ParallelSortByStart(result)
	return ParallelFlatten(result)
}

// Intersect returns a slice of all intervals that share at least one
// position with the given start/end range.
// intervals must be Flattened and sorted by Start.
// The result shares memory with the intervals argument.
func Intersect(intervals []Interval, start, end int) []Interval {
	n := len(intervals)
	from := sort.Search(n, func(i int) bool {
		return intervals[i].End > start
	})
	to := sort.Search(n, func(i int) bool {
		return intervals[i].Start >= end
	})
	if to < from {
		return nil
	}
	return intervals[from:to]
}

// IntersectSets returns the positions covered by both interval sets.
// Both arguments must be Flattened and sorted by Start. The result is
// Flattened and sorted by Start.
func IntersectSets(intervals1, intervals2 []Interval) (result []Interval) {
	for _, interval1 := range intervals1 {
		for _, interval2 := range Intersect(intervals2, interval1.Start, interval1.End) {
			if common, ok := interval1.Intersection(interval2); ok {
				result = append(result, common)
			}
		}
	}
	return result
}
