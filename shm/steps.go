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
	"strings"

	"github.com/exascience/shmtrees/clones"
	"github.com/exascience/shmtrees/internal"
	"github.com/exascience/shmtrees/intervals"
	"github.com/exascience/shmtrees/trees"
)

type placement = trees.Placement[*ObservedClone, MutationsDescription, MutationsDescription]

// A Step extends the trees of a VJ cluster after they are first built.
type Step string

// The available steps.
const (
	// AttachClonesByDistanceChange adds mutated clones that are in no
	// tree where they add the least distance.
	AttachClonesByDistanceChange Step = "attach-clones-by-distance-change"

	// CombineTrees merges trees whose most recent common ancestors are
	// close.
	CombineTrees Step = "combine-trees"

	// AttachClonesByNDN adds lightly mutated clones that are in no tree
	// to the tree with the closest NDN.
	AttachClonesByNDN Step = "attach-clones-by-ndn"
)

// ParseSteps parses a comma-separated list of steps.
func ParseSteps(s string) (steps []Step, err error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	for _, name := range strings.Split(s, ",") {
		switch step := Step(strings.TrimSpace(name)); step {
		case AttachClonesByDistanceChange, CombineTrees, AttachClonesByNDN:
			steps = append(steps, step)
		default:
			return nil, fmt.Errorf("unknown step %q", name)
		}
	}
	return steps, nil
}

// FormatSteps returns the comma-separated form of steps.
func FormatSteps(steps []Step) string {
	names := make([]string, len(steps))
	for i, step := range steps {
		names[i] = string(step)
	}
	return strings.Join(names, ",")
}

// MostRecentCommonAncestor returns the deepest reconstructed node that
// all clones of the tree descend from.
func (tree *CloneTree) MostRecentCommonAncestor() MutationsDescription {
	t := tree.Tree
	node := t.Root()
	for {
		children := t.Children(node)
		if len(children) != 1 || t.Node(children[0]).Kind != trees.Reconstructed {
			return t.Node(node).Reconstructed
		}
		node = children[0]
	}
}

// clonesNotInTrees returns the clones of the cluster that no tree
// holds, the most mutated first.
func clonesNotInTrees(current []*CloneTree, cluster []*CloneWithMutationsFromVJGermline) (result []*CloneWithMutationsFromVJGermline) {
	inTrees := make(map[*clones.Clone]bool)
	for _, tree := range current {
		for _, member := range tree.members {
			inTrees[member.Clone] = true
		}
	}
	for _, clone := range cluster {
		if !inTrees[clone.Clone] {
			result = append(result, clone)
		}
	}
	sortByMutationsCount(result)
	return result
}

func (processor *ClusterProcessor) observe(root *RootInfo, clone *CloneWithMutationsFromVJGermline) *ObservedClone {
	return &ObservedClone{
		Clone:     clone.Clone,
		Mutations: processor.rebase.RebaseClone(root, &clone.Mutations, clone.Clone),
	}
}

// ApplyStep runs one step on the trees of a VJ cluster. cluster holds
// all decomposed clones of the VJ cluster.
func (processor *ClusterProcessor) ApplyStep(step Step, current []*CloneTree, cluster []*CloneWithMutationsFromVJGermline) []*CloneTree {
	switch step {
	case AttachClonesByDistanceChange:
		processor.attachClonesByDistanceChange(current, clonesNotInTrees(current, cluster))
		return current
	case CombineTrees:
		return processor.combineTrees(current)
	case AttachClonesByNDN:
		processor.attachClonesByNDN(current, clonesNotInTrees(current, cluster))
		return current
	default:
		log.Panicf("unknown step %v", step)
		return nil
	}
}

// onOutsideRanges re-expresses the V and J fragments outside of the
// CDR3 on the given ranges.
func (root *RootInfo) onOutsideRanges(d MutationsDescription, vRanges, jRanges []intervals.Interval) MutationsDescription {
	d.VMutationsWithoutCDR3 = fragmentsForRanges(root.VSequence1, d.VMutationsWithoutCDR3, vRanges, func(intervals.Interval) bool {
		return true
	})
	d.JMutationsWithoutCDR3 = fragmentsForRanges(root.JSequence1, d.JMutationsWithoutCDR3, jRanges, func(r intervals.Interval) bool {
		return r.Start != root.JRangeInCDR3.End
	})
	return d
}

// distanceBetweenTrees rebases the most recent common ancestor of
// destination onto the root of from, and measures how far it is from
// the most recent common ancestor of from.
func (processor *ClusterProcessor) distanceBetweenTrees(from, destination *CloneTree) float64 {
	rebased := processor.rebase.RebaseMutations(destination.MostRecentCommonAncestor(), &destination.Root, &from.Root)
	vRanges := intervals.IntersectSets(from.Root.VRangesWithoutCDR3, destination.Root.VRangesWithoutCDR3)
	jRanges := intervals.IntersectSets(from.Root.JRangesWithoutCDR3, destination.Root.JRangesWithoutCDR3)
	return processor.Distance(
		from.Root.onOutsideRanges(from.MostRecentCommonAncestor(), vRanges, jRanges),
		from.Root.onOutsideRanges(rebased, vRanges, jRanges),
	)
}

/*
combineTrees rebuilds pairs of trees as one tree when their most
recent common ancestors are at most ThresholdForCombineTrees apart.
The distance is measured both ways, and the smaller one counts. The
largest trees are grown first, by the smallest trees first.
*/
func (processor *ClusterProcessor) combineTrees(current []*CloneTree) (result []*CloneTree) {
	remaining := append([]*CloneTree(nil), current...)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].ClonesCount() > remaining[j].ClonesCount()
	})
	for len(remaining) > 0 {
		toGrow := remaining[0]
		remaining = remaining[1:]
		for i := len(remaining) - 1; i >= 0; i-- {
			toAttach := remaining[i]
			what := fmt.Sprintf("trees %v and %v", toGrow.ID, toAttach.ID)
			distance := infinity
			if err := internal.Recover(what, func() {
				distance = math.Min(processor.distanceBetweenTrees(toAttach, toGrow), processor.distanceBetweenTrees(toGrow, toAttach))
			}); err != nil {
				log.Printf("Not combining %v", err)
				continue
			}
			if distance > processor.parameters.ThresholdForCombineTrees {
				continue
			}
			members := make([]*CloneWithMutationsFromVJGermline, 0, toGrow.ClonesCount()+toAttach.ClonesCount())
			members = append(append(members, toGrow.members...), toAttach.members...)
			var combined *CloneTree
			if err := internal.Recover(what, func() {
				combined = processor.BuildTree(members)
			}); err != nil {
				log.Printf("Not combining %v", err)
				continue
			}
			toGrow = combined
			remaining = append(remaining[:i], remaining[i+1:]...)
		}
		result = append(result, toGrow)
	}
	return result
}

/*
attachClonesByNDN adds clones with fewer than
CommonMutationsCountForClustering V and J mutations to the tree whose
most recent common ancestor has the closest NDN, if that NDN distance
is at most ThresholdForCombineByNDN. The distance is measured both
ways, and the smaller one counts.
*/
func (processor *ClusterProcessor) attachClonesByNDN(current []*CloneTree, free []*CloneWithMutationsFromVJGermline) {
	for _, clone := range free {
		if clone.Clone.VJMutationsCount() >= processor.parameters.CommonMutationsCountForClustering {
			continue
		}
		var (
			best         *CloneTree
			bestObserved *ObservedClone
			bestMetric   float64
		)
		for _, tree := range current {
			var (
				observed *ObservedClone
				metric   float64
			)
			if err := internal.Recover(fmt.Sprintf("clone %v for tree %v", clone.Clone.ID, tree.ID), func() {
				observed = processor.observe(&tree.Root, clone)
				treeNDN := tree.MostRecentCommonAncestor().KnownNDN.BuildSequence()
				cloneNDN := observed.Mutations.KnownNDN.BuildSequence()
				metric = math.Min(NDNDistance(treeNDN, cloneNDN), NDNDistance(cloneNDN, treeNDN))
			}); err != nil {
				log.Printf("Not attaching %v", err)
				continue
			}
			if best == nil || metric < bestMetric {
				best, bestObserved, bestMetric = tree, observed, metric
			}
		}
		if best != nil && bestMetric <= processor.parameters.ThresholdForCombineByNDN {
			best.builder.AddNode(bestObserved)
			best.members = append(best.members, clone)
		}
	}
}

/*
attachClonesByDistanceChange adds clones with at least
CommonMutationsCountForClustering V and J mutations, the most mutated
first, to the tree where they add the least distance. Trees where the
NDN of the prospective parent is more than MaxNDNDistanceForFreeClones
away from the NDN of the clone are not considered. A clone is added
only if the distance it adds, relative to its distance from the root,
is at most ThresholdForFreeClones.
*/
func (processor *ClusterProcessor) attachClonesByDistanceChange(current []*CloneTree, free []*CloneWithMutationsFromVJGermline) {
	for _, clone := range free {
		if clone.Clone.VJMutationsCount() < processor.parameters.CommonMutationsCountForClustering {
			continue
		}
		var (
			best             *placement
			bestTree         *CloneTree
			distanceFromRoot float64
		)
		for _, tree := range current {
			if err := internal.Recover(fmt.Sprintf("clone %v for tree %v", clone.Clone.ID, tree.ID), func() {
				observed := processor.observe(&tree.Root, clone)
				p := tree.builder.BestPlacement(observed)
				parentNDN := p.ParentContent().KnownNDN.BuildSequence()
				if NDNDistance(parentNDN, observed.Mutations.KnownNDN.BuildSequence()) > processor.parameters.MaxNDNDistanceForFreeClones {
					return
				}
				if best == nil || p.ChangeOfDistance() < best.ChangeOfDistance() {
					best, bestTree, distanceFromRoot = p, tree, tree.builder.DistanceFromRootToObserved(observed)
				}
			}); err != nil {
				log.Printf("Not attaching %v", err)
			}
		}
		if best == nil {
			continue
		}
		if metric := best.ChangeOfDistance() / distanceFromRoot; !(metric <= processor.parameters.ThresholdForFreeClones) {
			continue
		}
		if err := internal.Recover(fmt.Sprintf("clone %v for tree %v", clone.Clone.ID, bestTree.ID), best.Apply); err != nil {
			log.Printf("Not attaching %v", err)
			continue
		}
		bestTree.members = append(bestTree.members, clone)
	}
}
