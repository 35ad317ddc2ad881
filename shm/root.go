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

package shm

import (
	"log"
	"sort"

	"github.com/exascience/shmtrees/intervals"
	"github.com/exascience/shmtrees/mutations"
)

// RootInfo describes the germline root of a sub-cluster. The NDN of
// the root is unknown, and is therefore reconstructed as a run of N.
type RootInfo struct {
	VSequence1         string
	VRangesWithoutCDR3 []intervals.Interval
	VRangeInCDR3       intervals.Interval
	ReconstructedNDN   string
	JSequence1         string
	JRangeInCDR3       intervals.Interval
	JRangesWithoutCDR3 []intervals.Interval
	VJBase             VJBase
}

// mostLikableRange returns the range that occurs most often, the
// first seen one among equally frequent ranges.
func mostLikableRange(ranges []intervals.Interval) (result intervals.Interval) {
	counts := make(map[intervals.Interval]int, len(ranges))
	best := 0
	for _, r := range ranges {
		counts[r]++
	}
	for _, r := range ranges {
		if c := counts[r]; c > best {
			result, best = r, c
		}
	}
	return result
}

// NDNRangeInKnownNDN returns the part of the known NDN of a clone that
// is not covered by the given V and J ranges.
func NDNRangeInKnownNDN(m *MutationsFromVJGermline, vRange, jRange intervals.Interval) intervals.Interval {
	return intervals.Interval{
		Start: vRange.Length() - m.VMutationsInCDR3WithoutNDN.Range().Length(),
		End:   len(m.KnownNDN) - (jRange.Length() - m.JMutationsInCDR3WithoutNDN.Range().Length()),
	}
}

// commonRanges returns the germline positions covered by the fragments
// of every clone.
func commonRanges(fragments [][]mutations.MutationsWithRange) (result []intervals.Interval) {
	for i, clone := range fragments {
		covered := make([]intervals.Interval, 0, len(clone))
		for _, fragment := range clone {
			covered = append(covered, fragment.Range())
		}
		covered = intervals.Coverage(covered)
		if i == 0 {
			result = covered
		} else {
			result = intervals.IntersectSets(result, covered)
		}
	}
	return result
}

// BuildRootInfo determines the root of a sub-cluster. The V and J
// ranges within the CDR3 are chosen by a vote of the
// topToVoteOnNDNSize least mutated clones.
func BuildRootInfo(subCluster []*CloneWithMutationsFromVJGermline, topToVoteOnNDNSize int) RootInfo {
	if len(subCluster) == 0 {
		log.Panic("root of an empty cluster")
	}
	first := subCluster[0]
	voters := make([]*CloneWithMutationsFromVJGermline, len(subCluster))
	copy(voters, subCluster)
	sort.SliceStable(voters, func(i, j int) bool {
		return voters[i].Clone.VJMutationsCount() < voters[j].Clone.VJMutationsCount()
	})
	if topToVoteOnNDNSize > 0 && topToVoteOnNDNSize < len(voters) {
		voters = voters[:topToVoteOnNDNSize]
	}
	vRanges := make([]intervals.Interval, len(voters))
	jRanges := make([]intervals.Interval, len(voters))
	for i, voter := range voters {
		vRanges[i], jRanges[i] = voter.Mutations.VRangeInCDR3, voter.Mutations.JRangeInCDR3
	}

	result := RootInfo{
		VSequence1:   first.Clone.V.Gene.Sequence,
		VRangeInCDR3: mostLikableRange(vRanges),
		JSequence1:   first.Clone.J.Gene.Sequence,
		JRangeInCDR3: mostLikableRange(jRanges),
		VJBase:       VJBaseOf(first.Clone),
	}
	ndn := NDNRangeInKnownNDN(&first.Mutations, result.VRangeInCDR3, result.JRangeInCDR3)
	if ndn.IsReverse() {
		log.Panicf("reversed NDN range %v for root of clone %v", ndn, first.Clone.ID)
	}
	result.ReconstructedNDN = mutations.UnknownSequence(ndn.Length())

	vFragments := make([][]mutations.MutationsWithRange, len(subCluster))
	jFragments := make([][]mutations.MutationsWithRange, len(subCluster))
	for i, clone := range subCluster {
		vFragments[i], jFragments[i] = clone.Mutations.VMutationsWithoutCDR3, clone.Mutations.JMutationsWithoutCDR3
	}
	result.VRangesWithoutCDR3 = commonRanges(vFragments)
	result.JRangesWithoutCDR3 = commonRanges(jFragments)
	return result
}

// Root returns the description of the root itself.
func (root *RootInfo) Root() MutationsDescription {
	fragment := func(sequence1 string, r intervals.Interval, first bool) mutations.MutationsWithRange {
		return mutations.MutationsWithRange{
			Sequence1: sequence1,
			RangeInfo: mutations.RangeInfo{Range: r, IncludeFirstInserts: first, IncludeLastInserts: true},
		}
	}
	var result MutationsDescription
	for _, r := range root.VRangesWithoutCDR3 {
		result.VMutationsWithoutCDR3 = append(result.VMutationsWithoutCDR3, fragment(root.VSequence1, r, true))
	}
	result.VMutationsInCDR3WithoutNDN = fragment(root.VSequence1, root.VRangeInCDR3, false)
	result.KnownNDN = fragment(root.ReconstructedNDN, intervalOf(root.ReconstructedNDN), true)
	result.JMutationsInCDR3WithoutNDN = fragment(root.JSequence1, root.JRangeInCDR3, true)
	for _, r := range root.JRangesWithoutCDR3 {
		result.JMutationsWithoutCDR3 = append(result.JMutationsWithoutCDR3, fragment(root.JSequence1, r, r.Start != root.JRangeInCDR3.End))
	}
	return result
}
