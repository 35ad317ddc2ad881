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
	"github.com/exascience/shmtrees/mutations"
)

/*
MutationsDescription describes a clone or a reconstructed ancestor
relative to the root of its tree: the V and J fragments outside of the
CDR3, the V and J parts within the CDR3, and the NDN, whose Sequence1
is the reconstructed NDN of the root.

All descriptions in a tree cover the same ranges, so they can be
compared fragment by fragment. A description that is the delta
between two nodes carries the mutations of the first node in
FromBaseToParent.
*/
type MutationsDescription struct {
	VMutationsWithoutCDR3      []mutations.MutationsWithRange
	VMutationsInCDR3WithoutNDN mutations.MutationsWithRange
	KnownNDN                   mutations.MutationsWithRange
	JMutationsInCDR3WithoutNDN mutations.MutationsWithRange
	JMutationsWithoutCDR3      []mutations.MutationsWithRange
}

// CDR3 builds the CDR3 sequence.
func (d MutationsDescription) CDR3() string {
	return d.VMutationsInCDR3WithoutNDN.BuildSequence() +
		d.KnownNDN.BuildSequence() +
		d.JMutationsInCDR3WithoutNDN.BuildSequence()
}

// VMutations returns all V mutations, ordered by position.
func (d MutationsDescription) VMutations() mutations.Mutations {
	return combinedMutations(d.VMutationsWithoutCDR3).Concat(d.VMutationsInCDR3WithoutNDN.Mutations())
}

// JMutations returns all J mutations, ordered by position.
func (d MutationsDescription) JMutations() mutations.Mutations {
	return d.JMutationsInCDR3WithoutNDN.Mutations().Concat(combinedMutations(d.JMutationsWithoutCDR3))
}

func zipFragments(first, second []mutations.MutationsWithRange, f func(a, b mutations.MutationsWithRange) mutations.MutationsWithRange) []mutations.MutationsWithRange {
	if len(first) != len(second) {
		log.Panicf("descriptions with %v and %v fragments", len(first), len(second))
	}
	result := make([]mutations.MutationsWithRange, len(first))
	for i := range first {
		result[i] = f(first[i], second[i])
	}
	return result
}

// zip combines two descriptions fragment by fragment.
func (d MutationsDescription) zip(other MutationsDescription, f func(a, b mutations.MutationsWithRange) mutations.MutationsWithRange) MutationsDescription {
	return MutationsDescription{
		VMutationsWithoutCDR3:      zipFragments(d.VMutationsWithoutCDR3, other.VMutationsWithoutCDR3, f),
		VMutationsInCDR3WithoutNDN: f(d.VMutationsInCDR3WithoutNDN, other.VMutationsInCDR3WithoutNDN),
		KnownNDN:                   f(d.KnownNDN, other.KnownNDN),
		JMutationsInCDR3WithoutNDN: f(d.JMutationsInCDR3WithoutNDN, other.JMutationsInCDR3WithoutNDN),
		JMutationsWithoutCDR3:      zipFragments(d.JMutationsWithoutCDR3, other.JMutationsWithoutCDR3, f),
	}
}

// An ObservedClone is a clone rebased onto the root of its tree.
type ObservedClone struct {
	Clone     *clones.Clone
	Mutations MutationsDescription
}

// treeBehavior implements trees.Behavior for clones.
type treeBehavior struct {
	parameters                     Parameters
	vScoring, jScoring, ndnScoring *mutations.AffineGapScoring
}

func newTreeBehavior(parameters Parameters) *treeBehavior {
	return &treeBehavior{
		parameters: parameters,
		vScoring:   mutations.NucleotideBLASTScoring(),
		jScoring:   mutations.NucleotideBLASTScoring(),
		ndnScoring: mutations.NDNScoring(),
	}
}

func penalties(scoring *mutations.AffineGapScoring, fragments []mutations.MutationsWithRange, inCDR3 mutations.MutationsWithRange) (penalty, length int) {
	for _, fragment := range fragments {
		penalty += fragment.MaxScore(scoring) - fragment.Score(scoring)
		length += fragment.Range().Length()
	}
	penalty += inCDR3.MaxScore(scoring) - inCDR3.Score(scoring)
	length += inCDR3.Range().Length()
	return
}

// reversedMutationsCount counts the mutations of the base that the
// delta turns back.
func reversedMutationsCount(fragments ...mutations.MutationsWithRange) (count int) {
	for _, fragment := range fragments {
		if len(fragment.FromBaseToParent) == 0 || len(fragment.FromParentToThis) == 0 {
			continue
		}
		kept := mutations.Without(fragment.FromBaseToParent, fragment.FromParentToThis.Invert())
		count += len(fragment.FromBaseToParent) - len(kept)
	}
	return count
}

/*
Distance is the score lost by the delta, relative to the length of the
described sequence. Penalties in the NDN weigh NDNScoreMultiplier
times more than penalties in V and J, because NDN letters of the root
are unknown. Every V or J mutation of the base that the delta reverts
adds PenaltyForReversedMutations.
*/
func (b *treeBehavior) Distance(_ MutationsDescription, m MutationsDescription) float64 {
	vPenalty, vLength := penalties(b.vScoring, m.VMutationsWithoutCDR3, m.VMutationsInCDR3WithoutNDN)
	jPenalty, jLength := penalties(b.jScoring, m.JMutationsWithoutCDR3, m.JMutationsInCDR3WithoutNDN)
	ndnPenalty := m.KnownNDN.MaxScore(b.ndnScoring) - m.KnownNDN.Score(b.ndnScoring)
	var distance float64
	if length := vLength + jLength + m.KnownNDN.Range().Length(); length > 0 {
		distance = (float64(ndnPenalty)*b.parameters.NDNScoreMultiplier + float64(vPenalty+jPenalty)) / float64(length)
	}
	reversed := reversedMutationsCount(m.VMutationsWithoutCDR3...) +
		reversedMutationsCount(m.VMutationsInCDR3WithoutNDN, m.JMutationsInCDR3WithoutNDN) +
		reversedMutationsCount(m.JMutationsWithoutCDR3...)
	return distance + b.parameters.PenaltyForReversedMutations*float64(reversed)
}

func (b *treeBehavior) MutationsBetween(first, second MutationsDescription) MutationsDescription {
	return first.zip(second, mutations.DifferenceWithRange)
}

func (b *treeBehavior) Mutate(base, m MutationsDescription) MutationsDescription {
	return base.zip(m, func(base, m mutations.MutationsWithRange) mutations.MutationsWithRange {
		return base.Mutate(m.FromParentToThis)
	})
}

func (b *treeBehavior) FindCommonMutations(first, second MutationsDescription) MutationsDescription {
	result := first.zip(second, mutations.MutationsWithRange.Intersection)
	ndn := first.KnownNDN
	ndn.FromParentToThis = mutations.FindNDNCommonAncestor(first.KnownNDN.FromParentToThis, second.KnownNDN.FromParentToThis)
	result.KnownNDN = ndn
	return result
}

func (b *treeBehavior) AsAncestor(observed *ObservedClone) MutationsDescription {
	return observed.Mutations
}

func (b *treeBehavior) PostprocessDescendants(parent, child MutationsDescription) MutationsDescription {
	child.KnownNDN = child.KnownNDN.WithMutations(mutations.ConcreteNDNChild(parent.KnownNDN.Mutations(), child.KnownNDN.Mutations()))
	return child
}
