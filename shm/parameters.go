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

// Parameters holds the tunables of tree reconstruction.
type Parameters struct {
	// MaxDistanceWithinCluster bounds the NDN distance between a clone
	// and the member of the sub-cluster it joins.
	MaxDistanceWithinCluster float64

	// HideTreesLessThanSize drops trees with fewer observed clones.
	HideTreesLessThanSize int

	// CommonMutationsCountForClustering is the number of V and J
	// mutations that clones must share to end up in the same tree.
	CommonMutationsCountForClustering int

	// CountOfNodesToProbe is the number of nearest nodes considered
	// when a clone is added to a tree.
	CountOfNodesToProbe int

	NDNScoreMultiplier          float64
	PenaltyForReversedMutations float64

	// TopToVoteOnNDNSize is the number of least mutated clones that
	// determine the V and J ranges of the root.
	TopToVoteOnNDNSize int

	// Steps extend the initial trees of a VJ cluster, in order.
	Steps []Step

	// ThresholdForCombineTrees bounds the distance between the most
	// recent common ancestors of two trees that are combined.
	ThresholdForCombineTrees float64

	// ThresholdForCombineByNDN bounds the NDN distance between a
	// lightly mutated clone and the most recent common ancestor of the
	// tree it joins.
	ThresholdForCombineByNDN float64

	// MaxNDNDistanceForFreeClones bounds the NDN distance between a
	// mutated clone and its prospective parent.
	MaxNDNDistanceForFreeClones float64

	// ThresholdForFreeClones bounds the distance a mutated clone adds
	// to a tree, relative to its distance from the root.
	ThresholdForFreeClones float64
}

// DefaultParameters returns the default tunables.
func DefaultParameters() Parameters {
	return Parameters{
		MaxDistanceWithinCluster:          1.5,
		HideTreesLessThanSize:             2,
		CommonMutationsCountForClustering: 2,
		CountOfNodesToProbe:               1,
		NDNScoreMultiplier:                2,
		PenaltyForReversedMutations:       10,
		TopToVoteOnNDNSize:                1000,
		Steps:                             []Step{AttachClonesByDistanceChange, CombineTrees, AttachClonesByNDN},
		ThresholdForCombineTrees:          0.2,
		ThresholdForCombineByNDN:          0.3,
		MaxNDNDistanceForFreeClones:       1,
		ThresholdForFreeClones:            0.2,
	}
}
