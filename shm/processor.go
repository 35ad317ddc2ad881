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
	"sort"
	"strconv"
	"strings"

	"github.com/exascience/pargo/parallel"
	"github.com/google/uuid"

	"github.com/exascience/shmtrees/clones"
	"github.com/exascience/shmtrees/internal"
	"github.com/exascience/shmtrees/trees"
)

// A CloneTree is the lineage tree of one sub-cluster.
type CloneTree struct {
	ID     uuid.UUID
	VJBase VJBase
	Root   RootInfo
	Tree   *trees.Tree[*ObservedClone, MutationsDescription]

	builder *trees.Builder[*ObservedClone, MutationsDescription, MutationsDescription]
	members []*CloneWithMutationsFromVJGermline
}

// ClonesCount returns the number of clones in the tree.
func (tree *CloneTree) ClonesCount() int {
	return len(tree.members)
}

// TreeID derives a stable identifier from the VJBase and the clone
// identifiers of a sub-cluster.
func TreeID(base VJBase, subCluster []*CloneWithMutationsFromVJGermline) uuid.UUID {
	ids := make([]int, len(subCluster))
	for i, clone := range subCluster {
		ids[i] = clone.Clone.ID
	}
	sort.Ints(ids)
	var sb strings.Builder
	sb.WriteString(base.String())
	for _, id := range ids {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(id))
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(sb.String()))
}

// A ClusterProcessor builds the trees of VJ clusters.
type ClusterProcessor struct {
	parameters Parameters
	rebase     *ClonesRebase
	behavior   *treeBehavior
}

// NewClusterProcessor returns a processor for the given parameters.
func NewClusterProcessor(parameters Parameters) *ClusterProcessor {
	return &ClusterProcessor{
		parameters: parameters,
		rebase:     NewClonesRebase(),
		behavior:   newTreeBehavior(parameters),
	}
}

func (processor *ClusterProcessor) newBuilder(root *RootInfo) *trees.Builder[*ObservedClone, MutationsDescription, MutationsDescription] {
	return trees.NewBuilder[*ObservedClone, MutationsDescription, MutationsDescription](root.Root(), processor.behavior, processor.parameters.CountOfNodesToProbe)
}

// Distance returns the distance between two descriptions of the same
// tree.
func (processor *ClusterProcessor) Distance(from, to MutationsDescription) float64 {
	return processor.behavior.Distance(from, processor.behavior.MutationsBetween(from, to))
}

// BuildTree builds the tree of a sub-cluster. Clones are added in
// order of decreasing distance from the root.
func (processor *ClusterProcessor) BuildTree(subCluster []*CloneWithMutationsFromVJGermline) *CloneTree {
	root := BuildRootInfo(subCluster, processor.parameters.TopToVoteOnNDNSize)
	builder := processor.newBuilder(&root)
	type entry struct {
		observed *ObservedClone
		distance float64
	}
	entries := make([]entry, len(subCluster))
	for i, clone := range subCluster {
		observed := processor.observe(&root, clone)
		entries[i] = entry{observed, builder.DistanceFromRootToObserved(observed)}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].distance > entries[j].distance
	})
	for _, e := range entries {
		builder.AddNode(e.observed)
	}
	return &CloneTree{
		ID:      TreeID(root.VJBase, subCluster),
		VJBase:  root.VJBase,
		Root:    root,
		Tree:    builder.Tree(),
		builder: builder,
		members: append([]*CloneWithMutationsFromVJGermline(nil), subCluster...),
	}
}

// BuildTrees builds the trees of one VJ cluster. A sub-cluster that
// fails is logged and skipped. The initial trees are then extended by
// parameters.Steps, in order. Trees with fewer than
// HideTreesLessThanSize clones are dropped.
func (processor *ClusterProcessor) BuildTrees(cluster VJCluster) (result []*CloneTree) {
	decomposed := DecomposeCluster(cluster.Clones)
	var current []*CloneTree
	for i, subCluster := range SubClusters(decomposed, processor.parameters) {
		var tree *CloneTree
		if err := internal.Recover(fmt.Sprintf("sub-cluster %v of %v", i, cluster.Base), func() {
			tree = processor.BuildTree(subCluster)
		}); err != nil {
			log.Printf("Skipping %v", err)
			continue
		}
		current = append(current, tree)
	}
	for _, step := range processor.parameters.Steps {
		current = processor.ApplyStep(step, current, decomposed)
	}
	for _, tree := range current {
		if tree.Tree.CountLeaves() < processor.parameters.HideTreesLessThanSize {
			continue
		}
		result = append(result, tree)
	}
	return result
}

// ProcessClusters groups the clones by VJBase and builds the trees of
// all groups in parallel. The result is ordered by VJBase.
func ProcessClusters(cs []*clones.Clone, parameters Parameters) (result []*CloneTree) {
	clusters := GroupByVJBase(cs)
	if len(clusters) == 0 {
		return nil
	}
	processor := NewClusterProcessor(parameters)
	perCluster := make([][]*CloneTree, len(clusters))
	parallel.Range(0, len(clusters), 0, func(low, high int) {
		for i := low; i < high; i++ {
			perCluster[i] = processor.BuildTrees(clusters[i])
		}
	})
	for _, ts := range perCluster {
		result = append(result, ts...)
	}
	return result
}
