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

	"github.com/exascience/shmtrees/clones"
	"github.com/exascience/shmtrees/intervals"
	"github.com/exascience/shmtrees/mutations"
)

// ClonesRebase re-expresses clones and ancestors relative to a root.
type ClonesRebase struct {
	VScoring, JScoring, NDNScoring *mutations.AffineGapScoring
}

// NewClonesRebase returns a ClonesRebase with the default scorings.
func NewClonesRebase() *ClonesRebase {
	return &ClonesRebase{
		VScoring:   mutations.NucleotideBLASTScoring(),
		JScoring:   mutations.NucleotideBLASTScoring(),
		NDNScoring: mutations.NDNScoring(),
	}
}

func fragmentsForRanges(sequence1 string, fragments []mutations.MutationsWithRange, ranges []intervals.Interval, firstInserts func(intervals.Interval) bool) []mutations.MutationsWithRange {
	muts := combinedMutations(fragments)
	result := make([]mutations.MutationsWithRange, len(ranges))
	for i, r := range ranges {
		result[i] = mutations.NewMutationsWithRange(sequence1, muts, mutations.RangeInfo{
			Range:               r,
			IncludeFirstInserts: firstInserts(r),
			IncludeLastInserts:  true,
		})
	}
	return result
}

/*
RebaseClone describes a clone relative to a root.

Where the V range of the root reaches further into the CDR3 than the
minimal V range of the clone, the V mutations of the clone that are
known for that part are used, and the rest of the V range is aligned
against the known NDN of the clone. The J side is handled the same
way. What remains of the known NDN is aligned against the
reconstructed NDN of the root.
*/
func (rebase *ClonesRebase) RebaseClone(root *RootInfo, m *MutationsFromVJGermline, clone *clones.Clone) MutationsDescription {
	knownNDN := m.KnownNDN

	vInCDR3 := m.VMutationsInCDR3WithoutNDN
	consumedV := 0
	if fill := (intervals.Interval{Start: vInCDR3.Range().End, End: root.VRangeInCDR3.End}); !fill.IsEmpty() {
		within, ok := m.KnownVMutationsWithinNDN.Range.Intersection(fill)
		if !ok {
			within = intervals.Interval{Start: fill.Start, End: fill.Start}
		}
		if !within.IsEmpty() {
			toAdd := mutations.NewMutationsWithRange(root.VSequence1, m.KnownVMutationsWithinNDN.Mutations, mutations.RangeInfo{Range: within, IncludeFirstInserts: false, IncludeLastInserts: true})
			vInCDR3 = mutations.Combine(vInCDR3, toAdd)
			consumedV = within.Length() + toAdd.LengthDelta()
		}
		if toAlign := (intervals.Interval{Start: within.End, End: fill.End}); !toAlign.IsEmpty() {
			available := len(knownNDN) - consumedV
			if available < 0 {
				log.Panicf("V mutations of clone %v exceed its NDN", clone.ID)
			}
			n := minInt(toAlign.Length(), available)
			aligned := mutations.AlignGlobal(rebase.VScoring, root.VSequence1, knownNDN, toAlign.Start, toAlign.Length(), consumedV, n)
			vInCDR3 = vInCDR3.CombineWithMutationsToTheRight(aligned, toAlign)
			consumedV += n
		}
	}

	jInCDR3 := m.JMutationsInCDR3WithoutNDN
	consumedJ := 0
	if fill := (intervals.Interval{Start: root.JRangeInCDR3.Start, End: jInCDR3.Range().Start}); !fill.IsEmpty() {
		within, ok := m.KnownJMutationsWithinNDN.Range.Intersection(fill)
		if !ok {
			within = intervals.Interval{Start: fill.End, End: fill.End}
		}
		if !within.IsEmpty() {
			toAdd := mutations.NewMutationsWithRange(root.JSequence1, m.KnownJMutationsWithinNDN.Mutations, mutations.RangeInfo{Range: within, IncludeFirstInserts: true, IncludeLastInserts: false})
			jInCDR3 = mutations.Combine(toAdd, jInCDR3)
			consumedJ = within.Length() + toAdd.LengthDelta()
		}
		if toAlign := (intervals.Interval{Start: fill.Start, End: within.Start}); !toAlign.IsEmpty() {
			available := len(knownNDN) - consumedV - consumedJ
			if available < 0 {
				log.Panicf("J mutations of clone %v exceed its NDN", clone.ID)
			}
			n := minInt(toAlign.Length(), available)
			aligned := mutations.AlignGlobal(rebase.JScoring, root.JSequence1, knownNDN, toAlign.Start, toAlign.Length(), len(knownNDN)-consumedJ-n, n)
			jInCDR3 = jInCDR3.CombineWithMutationsToTheLeft(aligned, toAlign)
			consumedJ += n
		}
	}

	ndnRange := intervals.Interval{Start: consumedV, End: len(knownNDN) - consumedJ}
	if ndnRange.IsReverse() {
		log.Panicf("reversed NDN range %v in clone %v", ndnRange, clone.ID)
	}
	rootNDN := root.ReconstructedNDN
	ndn := mutations.AlignGlobal(rebase.NDNScoring, rootNDN, knownNDN, 0, len(rootNDN), ndnRange.Start, ndnRange.Length())

	result := MutationsDescription{
		VMutationsWithoutCDR3: fragmentsForRanges(root.VSequence1, m.VMutationsWithoutCDR3, root.VRangesWithoutCDR3, func(intervals.Interval) bool {
			return true
		}),
		VMutationsInCDR3WithoutNDN: vInCDR3,
		KnownNDN:                   mutations.NewMutationsWithRange(rootNDN, ndn, mutations.RangeInfo{Range: intervalOf(rootNDN), IncludeFirstInserts: true, IncludeLastInserts: true}),
		JMutationsInCDR3WithoutNDN: jInCDR3,
		JMutationsWithoutCDR3: fragmentsForRanges(root.JSequence1, m.JMutationsWithoutCDR3, root.JRangesWithoutCDR3, func(r intervals.Interval) bool {
			return r.Start != root.JRangeInCDR3.End
		}),
	}
	if cdr3 := result.CDR3(); cdr3 != clone.CDR3 {
		log.Panicf("CDR3 of clone %v changed by rebasing from %v to %v", clone.ID, clone.CDR3, cdr3)
	}
	return result
}

/*
RebaseMutations re-expresses a description relative to originalRoot
as a description relative to rebaseTo. Parts of the CDR3 that the new
root attributes to other segments than the original root are
realigned. V and J fragments outside of the CDR3 are kept.
*/
func (rebase *ClonesRebase) RebaseMutations(from MutationsDescription, originalRoot, rebaseTo *RootInfo) MutationsDescription {
	v, j := rebaseTo.VSequence1, rebaseTo.JSequence1
	vMutations := from.VMutationsInCDR3WithoutNDN.Mutations()
	jMutations := from.JMutationsInCDR3WithoutNDN.Mutations()
	originalV, originalJ := originalRoot.VRangeInCDR3, originalRoot.JRangeInCDR3
	targetV, targetJ := rebaseTo.VRangeInCDR3, rebaseTo.JRangeInCDR3

	commonV := intervals.Interval{Start: originalV.Start, End: minInt(originalV.End, targetV.End)}
	commonJ := intervals.Interval{Start: maxInt(originalJ.Start, targetJ.Start), End: targetJ.End}

	// letters that the new root does not attribute to the same segment
	toAlign := ""
	if left := (intervals.Interval{Start: commonV.End, End: originalV.End}); !left.IsEmpty() {
		toAlign += mutations.BuildSequence(v, vMutations.ExtractAbsoluteMutations(left.Start, left.End, false, true), left)
	}
	toAlign += from.KnownNDN.BuildSequence()
	if left := (intervals.Interval{Start: originalJ.Start, End: commonJ.Start}); !left.IsEmpty() {
		toAlign += mutations.BuildSequence(j, jMutations.ExtractAbsoluteMutations(left.Start, left.End, true, false), left)
	}

	vToAlign := intervals.Interval{Start: commonV.End, End: targetV.End}
	jToAlign := intervals.Interval{Start: targetJ.Start, End: commonJ.Start}
	targetNDN := rebaseTo.ReconstructedNDN
	var part float64
	if total := vToAlign.Length() + len(targetNDN) + jToAlign.Length(); total > 0 {
		part = float64(len(toAlign)) / float64(total)
	}
	vPart := int(float64(vToAlign.Length()) * part)
	jPart := int(float64(jToAlign.Length()) * part)
	ndnPart := intervals.Interval{Start: vPart, End: len(toAlign) - jPart}

	vInCDR3 := mutations.NewMutationsWithRange(v, vMutations, mutations.RangeInfo{Range: commonV, IncludeFirstInserts: false, IncludeLastInserts: true})
	if !vToAlign.IsEmpty() {
		aligned := mutations.AlignGlobal(rebase.VScoring, v, toAlign, vToAlign.Start, vToAlign.Length(), 0, vPart)
		vInCDR3 = vInCDR3.CombineWithMutationsToTheRight(aligned, vToAlign)
	}
	jInCDR3 := mutations.NewMutationsWithRange(j, jMutations, mutations.RangeInfo{Range: commonJ, IncludeFirstInserts: true, IncludeLastInserts: true})
	if !jToAlign.IsEmpty() {
		aligned := mutations.AlignGlobal(rebase.JScoring, j, toAlign, jToAlign.Start, jToAlign.Length(), ndnPart.End, jPart)
		jInCDR3 = jInCDR3.CombineWithMutationsToTheLeft(aligned, jToAlign)
	}
	ndn := mutations.AlignGlobal(rebase.NDNScoring, targetNDN, toAlign, 0, len(targetNDN), ndnPart.Start, ndnPart.Length())

	result := MutationsDescription{
		VMutationsWithoutCDR3:      from.VMutationsWithoutCDR3,
		VMutationsInCDR3WithoutNDN: vInCDR3,
		KnownNDN:                   mutations.NewMutationsWithRange(targetNDN, ndn, mutations.RangeInfo{Range: intervalOf(targetNDN), IncludeFirstInserts: true, IncludeLastInserts: true}),
		JMutationsInCDR3WithoutNDN: jInCDR3,
		JMutationsWithoutCDR3:      from.JMutationsWithoutCDR3,
	}
	if before, after := from.CDR3(), result.CDR3(); before != after {
		log.Panicf("CDR3 changed by rebasing from %v to %v", before, after)
	}
	return result
}
