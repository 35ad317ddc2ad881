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
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/exascience/shmtrees/clones"
	"github.com/exascience/shmtrees/fasta"
	"github.com/exascience/shmtrees/internal"
	"github.com/exascience/shmtrees/intervals"
	"github.com/exascience/shmtrees/mutations"
	"github.com/exascience/shmtrees/utils"
)

var infinity = math.Inf(1)

func intervalOf(s string) intervals.Interval {
	return intervals.Interval{Start: 0, End: len(s)}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func referencePosition(gene *fasta.Gene, p fasta.ReferencePoint) int {
	position, ok := gene.Position(p)
	if !ok {
		log.Panicf("gene %v has no %v", utils.SymbolName(gene.Name), p)
	}
	return position
}

// VRangeInCDR3 returns the part of the V gene, from CDR3Begin, that is
// aligned within the CDR3 of the clone.
func VRangeInCDR3(clone *clones.Clone) intervals.Interval {
	begin := referencePosition(clone.V.Gene, fasta.CDR3Begin)
	end := begin
	if n := len(clone.V.Alignments); n > 0 {
		end = maxInt(begin, clone.V.Alignments[n-1].Sequence1Range.End)
	}
	return intervals.Interval{Start: begin, End: end}
}

// JRangeInCDR3 returns the part of the J gene, up to CDR3End, that is
// aligned within the CDR3 of the clone.
func JRangeInCDR3(clone *clones.Clone) intervals.Interval {
	end := referencePosition(clone.J.Gene, fasta.CDR3End)
	start := end
	if len(clone.J.Alignments) > 0 {
		start = minInt(end, clone.J.Alignments[0].Sequence1Range.Start)
	}
	return intervals.Interval{Start: start, End: end}
}

// KnownMutations are the mutations of a germline range.
type KnownMutations struct {
	Mutations mutations.Mutations
	Range     intervals.Interval
}

/*
MutationsFromVJGermline decomposes a clone relative to its V and J
germline genes.

The V and J parts outside of the CDR3 are kept per alignment. Inside
the CDR3, the V and J parts cover the minimal ranges of the VJ
cluster, so that all clones of the cluster describe the same germline
positions. What remains of the CDR3 is the known NDN. The V and J
mutations of the clone that reach into the known NDN are kept
separately, so that the clone can later be rebased onto wider ranges.
*/
type MutationsFromVJGermline struct {
	VMutationsWithoutCDR3      []mutations.MutationsWithRange
	VMutationsInCDR3WithoutNDN mutations.MutationsWithRange
	KnownVMutationsWithinNDN   KnownMutations
	KnownNDN                   string
	KnownJMutationsWithinNDN   KnownMutations
	JMutationsInCDR3WithoutNDN mutations.MutationsWithRange
	JMutationsWithoutCDR3      []mutations.MutationsWithRange

	// the ranges of the clone itself, not the minimal ones
	VRangeInCDR3, JRangeInCDR3 intervals.Interval
}

// A CloneWithMutationsFromVJGermline pairs a clone with its
// decomposition.
type CloneWithMutationsFromVJGermline struct {
	Clone     *clones.Clone
	Mutations MutationsFromVJGermline
}

func alignmentContaining(alignments []clones.Alignment, r intervals.Interval) (clones.Alignment, bool) {
	for _, alignment := range alignments {
		if alignment.Sequence1Range.ContainsInterval(r) {
			return alignment, true
		}
	}
	return clones.Alignment{}, false
}

// NewMutationsFromVJGermline decomposes a clone, given the minimal V
// and J ranges within the CDR3 of its VJ cluster.
func NewMutationsFromVJGermline(clone *clones.Clone, minimalVRange, minimalJRange intervals.Interval) (result MutationsFromVJGermline) {
	v, j := clone.V.Gene.Sequence, clone.J.Gene.Sequence
	cdr3Begin, cdr3End := minimalVRange.Start, minimalJRange.End

	for _, alignment := range clone.V.Alignments {
		r := alignment.Sequence1Range
		r.End = minInt(r.End, cdr3Begin)
		if r.IsEmpty() {
			continue
		}
		result.VMutationsWithoutCDR3 = append(result.VMutationsWithoutCDR3,
			mutations.NewMutationsWithRange(v, alignment.Mutations, mutations.RangeInfo{Range: r, IncludeFirstInserts: true, IncludeLastInserts: true}))
	}
	for _, alignment := range clone.J.Alignments {
		r := alignment.Sequence1Range
		r.Start = maxInt(r.Start, cdr3End)
		if r.IsEmpty() {
			continue
		}
		result.JMutationsWithoutCDR3 = append(result.JMutationsWithoutCDR3,
			mutations.NewMutationsWithRange(j, alignment.Mutations, mutations.RangeInfo{Range: r, IncludeFirstInserts: r.Start != cdr3End, IncludeLastInserts: true}))
	}

	vAlignment, _ := alignmentContaining(clone.V.Alignments, minimalVRange)
	result.VMutationsInCDR3WithoutNDN = mutations.NewMutationsWithRange(v, vAlignment.Mutations, mutations.RangeInfo{Range: minimalVRange, IncludeFirstInserts: false, IncludeLastInserts: true})
	jAlignment, _ := alignmentContaining(clone.J.Alignments, minimalJRange)
	result.JMutationsInCDR3WithoutNDN = mutations.NewMutationsWithRange(j, jAlignment.Mutations, mutations.RangeInfo{Range: minimalJRange, IncludeFirstInserts: true, IncludeLastInserts: true})

	ndnStart := minimalVRange.Length() + result.VMutationsInCDR3WithoutNDN.LengthDelta()
	ndnEnd := len(clone.CDR3) - (minimalJRange.Length() + result.JMutationsInCDR3WithoutNDN.LengthDelta())
	if ndnStart < 0 || ndnEnd > len(clone.CDR3) || ndnStart > ndnEnd {
		log.Panicf("reversed NDN range [%v, %v) in clone %v", ndnStart, ndnEnd, clone.ID)
	}
	result.KnownNDN = clone.CDR3[ndnStart:ndnEnd]

	from := minimalVRange.End
	result.KnownVMutationsWithinNDN = KnownMutations{Range: intervals.Interval{Start: from, End: from}}
	for _, alignment := range clone.V.Alignments {
		if r := alignment.Sequence1Range; r.Contains(cdr3Begin) && r.Contains(from) {
			result.KnownVMutationsWithinNDN = KnownMutations{
				Mutations: alignment.Mutations.ExtractAbsoluteMutations(from, r.End, false, true),
				Range:     intervals.Interval{Start: from, End: r.End},
			}
			break
		}
	}
	to := minimalJRange.Start
	result.KnownJMutationsWithinNDN = KnownMutations{Range: intervals.Interval{Start: to, End: to}}
	for _, alignment := range clone.J.Alignments {
		if r := alignment.Sequence1Range; r.Contains(cdr3End) && r.Contains(to) {
			result.KnownJMutationsWithinNDN = KnownMutations{
				Mutations: alignment.Mutations.ExtractAbsoluteMutations(r.Start, to, true, false),
				Range:     intervals.Interval{Start: r.Start, End: to},
			}
			break
		}
	}

	result.VRangeInCDR3 = VRangeInCDR3(clone)
	result.JRangeInCDR3 = JRangeInCDR3(clone)
	return result
}

func (m *MutationsFromVJGermline) allV() []mutations.MutationsWithRange {
	return append(m.VMutationsWithoutCDR3[:len(m.VMutationsWithoutCDR3):len(m.VMutationsWithoutCDR3)], m.VMutationsInCDR3WithoutNDN)
}

func (m *MutationsFromVJGermline) allJ() []mutations.MutationsWithRange {
	return append([]mutations.MutationsWithRange{m.JMutationsInCDR3WithoutNDN}, m.JMutationsWithoutCDR3...)
}

// combinedMutations concatenates the mutations of fragments ordered by
// range.
func combinedMutations(fragments []mutations.MutationsWithRange) (result mutations.Mutations) {
	for _, fragment := range fragments {
		result = result.Concat(fragment.Mutations())
	}
	return result
}

// MinimalRangesInCDR3 returns the shortest V and J ranges within the
// CDR3 among the clones of a VJ cluster.
func MinimalRangesInCDR3(cluster []*clones.Clone) (v, j intervals.Interval) {
	for i, clone := range cluster {
		cv, cj := VRangeInCDR3(clone), JRangeInCDR3(clone)
		if i == 0 || cv.Length() < v.Length() {
			v = cv
		}
		if i == 0 || cj.Length() < j.Length() {
			j = cj
		}
	}
	return v, j
}

// DecomposeCluster decomposes all clones of a VJ cluster. Clones that
// cannot be decomposed are logged and left out.
func DecomposeCluster(cluster []*clones.Clone) []*CloneWithMutationsFromVJGermline {
	usable := make([]*clones.Clone, 0, len(cluster))
	for _, clone := range cluster {
		if err := internal.Recover(fmt.Sprintf("clone %v", clone.ID), func() {
			VRangeInCDR3(clone)
			JRangeInCDR3(clone)
		}); err != nil {
			log.Printf("Skipping %v", err)
			continue
		}
		usable = append(usable, clone)
	}
	v, j := MinimalRangesInCDR3(usable)
	result := make([]*CloneWithMutationsFromVJGermline, 0, len(usable))
	for _, clone := range usable {
		var m MutationsFromVJGermline
		if err := internal.Recover(fmt.Sprintf("clone %v", clone.ID), func() {
			m = NewMutationsFromVJGermline(clone, v, j)
		}); err != nil {
			log.Printf("Skipping %v", err)
			continue
		}
		result = append(result, &CloneWithMutationsFromVJGermline{Clone: clone, Mutations: m})
	}
	return result
}

func sortByMutationsCount(cs []*CloneWithMutationsFromVJGermline) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].Clone.VJMutationsCount() > cs[j].Clone.VJMutationsCount()
	})
}
