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

// Package shm reconstructs lineage trees of somatically hypermutated
// clones. Clones are grouped by V gene, J gene and CDR3 length, split
// into sub-clusters of related clones, rebased onto a common root, and
// fed into a trees.Builder.
package shm

import (
	"fmt"

	"github.com/willf/bitset"

	"github.com/exascience/shmtrees/clones"
	"github.com/exascience/shmtrees/mutations"
	"github.com/exascience/shmtrees/utils"
)

// A VJBase identifies the clones that can share a lineage tree.
type VJBase struct {
	VGene, JGene utils.Symbol
	CDR3Length   int
}

// VJBaseOf returns the VJBase of a clone.
func VJBaseOf(clone *clones.Clone) VJBase {
	return VJBase{
		VGene:      clone.V.GeneName(),
		JGene:      clone.J.GeneName(),
		CDR3Length: len(clone.CDR3),
	}
}

func (base VJBase) String() string {
	return fmt.Sprintf("%v %v %v", *base.VGene, *base.JGene, base.CDR3Length)
}

// Less orders VJBase values by V gene name, J gene name and CDR3
// length.
func (base VJBase) Less(other VJBase) bool {
	if *base.VGene != *other.VGene {
		return *base.VGene < *other.VGene
	}
	if *base.JGene != *other.JGene {
		return *base.JGene < *other.JGene
	}
	return base.CDR3Length < other.CDR3Length
}

// A VJCluster holds the clones of one VJBase, the most mutated first.
type VJCluster struct {
	Base   VJBase
	Clones []*clones.Clone
}

// GroupByVJBase splits the clones into clusters with equal VJBase. The
// clones are sorted in place.
func GroupByVJBase(cs []*clones.Clone) (result []VJCluster) {
	clones.ParallelSortByVJBase(cs)
	for i := 0; i < len(cs); {
		base := VJBaseOf(cs[i])
		j := i + 1
		for j < len(cs) && VJBaseOf(cs[j]) == base {
			j++
		}
		result = append(result, VJCluster{Base: base, Clones: cs[i:j:j]})
		i = j
	}
	return result
}

// NDNDistance compares two NDN sequences: the score lost by aligning
// them, relative to the length of the shorter one.
func NDNDistance(first, second string) float64 {
	shorter := len(first)
	if len(second) < shorter {
		shorter = len(second)
	}
	if shorter == 0 {
		if len(first) == len(second) {
			return 0
		}
		return infinity
	}
	scoring := mutations.NDNScoring()
	muts := mutations.AlignGlobal(scoring, first, second, 0, len(first), 0, len(second))
	score := scoring.CalculateScore(first, intervalOf(first), muts)
	maxScore := scoring.MaxScore(first)
	if m := scoring.MaxScore(second); m > maxScore {
		maxScore = m
	}
	return float64(maxScore-score) / float64(shorter)
}

/*
SubClusters splits the clones of one VJ cluster into groups of clones
that probably share an ancestor.

Clones with fewer than parameters.CommonMutationsCountForClustering
V and J mutations are ignored. The others, the most mutated first,
join the sub-cluster of the member with which they share the most V
and J mutations, if they share more than
CommonMutationsCountForClustering mutations and their NDN distance is
below MaxDistanceWithinCluster. Otherwise they start a new
sub-cluster. Sub-clusters of a single clone are dropped.
*/
func SubClusters(cluster []*CloneWithMutationsFromVJGermline, parameters Parameters) (result [][]*CloneWithMutationsFromVJGermline) {
	candidates := make([]*CloneWithMutationsFromVJGermline, 0, len(cluster))
	for _, clone := range cluster {
		if clone.Clone.VJMutationsCount() >= parameters.CommonMutationsCountForClustering {
			candidates = append(candidates, clone)
		}
	}
	sortByMutationsCount(candidates)

	var members []*bitset.BitSet
	for i, candidate := range candidates {
		bestCluster, bestCount, bestMember := -1, -1, -1
		for c, set := range members {
			for m, ok := set.NextSet(0); ok; m, ok = set.NextSet(m + 1) {
				if count := commonMutationsCount(candidate, candidates[m]); count > bestCount {
					bestCluster, bestCount, bestMember = c, count, int(m)
				}
			}
		}
		if bestCluster >= 0 &&
			bestCount > parameters.CommonMutationsCountForClustering &&
			NDNDistance(candidate.Mutations.KnownNDN, candidates[bestMember].Mutations.KnownNDN) < parameters.MaxDistanceWithinCluster {
			members[bestCluster].Set(uint(i))
			continue
		}
		members = append(members, bitset.New(uint(len(candidates))).Set(uint(i)))
	}

	for _, set := range members {
		if set.Count() < 2 {
			continue
		}
		subCluster := make([]*CloneWithMutationsFromVJGermline, 0, set.Count())
		for m, ok := set.NextSet(0); ok; m, ok = set.NextSet(m + 1) {
			subCluster = append(subCluster, candidates[m])
		}
		result = append(result, subCluster)
	}
	return result
}

// commonMutationsCount counts the V and J mutations two clones share
// where their germline fragments overlap.
func commonMutationsCount(first, second *CloneWithMutationsFromVJGermline) int {
	return commonCount(first.Mutations.allV(), second.Mutations.allV()) +
		commonCount(first.Mutations.allJ(), second.Mutations.allJ())
}

func commonCount(first, second []mutations.MutationsWithRange) (count int) {
	for _, f := range first {
		for _, s := range second {
			common, ok := f.Range().Intersection(s.Range())
			if !ok {
				continue
			}
			count += mutations.IntersectionCount(
				f.Mutations().ExtractAbsoluteMutations(common.Start, common.End, true, true),
				s.Mutations().ExtractAbsoluteMutations(common.Start, common.End, true, true),
			)
		}
	}
	return count
}
