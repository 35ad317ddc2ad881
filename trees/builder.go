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

package trees

import (
	"fmt"
	"log"
	"sort"

	"github.com/exascience/shmtrees/internal"
)

// Behavior bundles the operations a Builder needs on observed values
// of type T, ancestor contents of type E, and mutation deltas of type
// M.
type Behavior[T, E, M any] interface {
	// Distance is the cost of applying m to base.
	Distance(base E, m M) float64
	// MutationsBetween returns the delta that transforms first into second.
	MutationsBetween(first, second E) M
	// Mutate applies a delta.
	Mutate(base E, m M) E
	// FindCommonMutations returns the part that two deltas from the
	// same base have in common.
	FindCommonMutations(first, second M) M
	// AsAncestor converts an observed value into ancestor content.
	AsAncestor(observed T) E
	// PostprocessDescendants refines the content of a child after its
	// parent changed.
	PostprocessDescendants(parent, child E) E
}

// A Builder adds observed values to a tree one at a time. Each value
// is placed where it adds the least total distance, possibly by
// inserting a reconstructed common ancestor.
//
// A Builder is not safe for concurrent use.
type Builder[T, E, M any] struct {
	behavior            Behavior[T, E, M]
	tree                *Tree[T, E]
	countOfNodesToProbe int
}

// NewBuilder returns a builder for a tree with the given root.
// countOfNodesToProbe is the number of nearest reconstructed nodes
// considered for each insertion; values below 1 are treated as 1.
func NewBuilder[T, E, M any](root E, behavior Behavior[T, E, M], countOfNodesToProbe int) *Builder[T, E, M] {
	if countOfNodesToProbe < 1 {
		countOfNodesToProbe = 1
	}
	return &Builder[T, E, M]{
		behavior:            behavior,
		tree:                NewTree[T](root),
		countOfNodesToProbe: countOfNodesToProbe,
	}
}

// Tree returns the tree built so far.
func (b *Builder[T, E, M]) Tree() *Tree[T, E] {
	return b.tree
}

func (b *Builder[T, E, M]) distanceBetween(first, second E) float64 {
	return b.behavior.Distance(first, b.behavior.MutationsBetween(first, second))
}

// DistanceFromRootToObserved returns the distance from the root of the
// tree to the given observed value.
func (b *Builder[T, E, M]) DistanceFromRootToObserved(observed T) float64 {
	return b.distanceBetween(b.tree.nodes[0].Reconstructed, b.behavior.AsAncestor(observed))
}

type actionKind uint8

const (
	replaceAction actionKind = iota
	insertAction
)

// An action is a candidate edit of the tree. Nothing is allocated in
// the arena before the action is applied.
type action[E any] struct {
	kind   actionKind
	parent int

	// insert: distance from parent to the added node
	// replace: distance from parent to the common ancestor
	distance float64

	// replace only
	child                   int
	distanceToChild         float64
	distanceToAdded         float64
	replacedDistance        float64
	common, rebuiltChild    E
	minDistanceFromObserved float64
}

func (a *action[E]) changeOfDistance() float64 {
	if a.kind == insertAction {
		return a.distance
	}
	return a.distance - a.replacedDistance + a.distanceToChild + a.distanceToAdded
}

func (b *Builder[T, E, M]) distanceFromObserved(a *action[E]) float64 {
	return b.tree.nodes[a.parent].MinDistanceFromObserved
}

func (b *Builder[T, E, M]) better(x, y *action[E]) bool {
	if cx, cy := x.changeOfDistance(), y.changeOfDistance(); cx != cy {
		return cx < cy
	}
	if ox, oy := b.distanceFromObserved(x), b.distanceFromObserved(y); ox != oy {
		return ox < oy
	}
	return x.kind < y.kind
}

type candidate struct {
	node     int
	distance float64
}

// candidates returns the countOfNodesToProbe reconstructed nodes
// nearest to added, plus the nodes tied with the last one.
func (b *Builder[T, E, M]) candidates(added E) []candidate {
	var result []candidate
	for _, entry := range b.tree.AllNodes() {
		node := &b.tree.nodes[entry.Node]
		if node.Kind != Reconstructed {
			continue
		}
		result = append(result, candidate{entry.Node, b.distanceBetween(node.Reconstructed, added)})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].distance < result[j].distance
	})
	n := b.countOfNodesToProbe
	if n >= len(result) {
		return result
	}
	for n < len(result) && result[n].distance == result[n-1].distance {
		n++
	}
	return result[:n]
}

// A Placement is the position where a Builder would add an observed
// value.
type Placement[T, E, M any] struct {
	builder  *Builder[T, E, M]
	action   *action[E]
	observed T
	added    E
}

// ChangeOfDistance returns the total distance the placement adds to
// the tree.
func (p *Placement[T, E, M]) ChangeOfDistance() float64 {
	return p.action.changeOfDistance()
}

// ParentContent returns the content of the node the value would be
// attached to. That is a new common ancestor when one is inserted.
func (p *Placement[T, E, M]) ParentContent() E {
	if p.action.kind == replaceAction {
		return p.action.common
	}
	return p.builder.tree.nodes[p.action.parent].Reconstructed
}

// Apply adds the value to the tree. A placement is invalid once the
// tree has changed in any other way.
func (p *Placement[T, E, M]) Apply() {
	b := p.builder
	b.apply(p.action, p.observed, p.added)
	if internal.PedanticMode {
		b.checkSiblings()
	}
}

// BestPlacement returns where AddNode would put an observed value,
// without changing the tree.
func (b *Builder[T, E, M]) BestPlacement(observed T) *Placement[T, E, M] {
	added := b.behavior.AsAncestor(observed)
	var best *action[E]
	consider := func(a *action[E]) {
		if a != nil && (best == nil || b.better(a, best)) {
			best = a
		}
	}
	for _, c := range b.candidates(added) {
		// A sibling that shares mutations with the added node gets a
		// common ancestor with it.
		var merge *action[E]
		for _, child := range b.tree.nodes[c.node].children {
			if b.tree.nodes[child].Kind != Reconstructed {
				continue
			}
			if replace := b.replaceChild(c.node, child, added); replace != nil &&
				(merge == nil || replace.distance > merge.distance) {
				merge = replace
			}
		}
		if merge != nil {
			consider(merge)
			continue
		}
		consider(&action[E]{kind: insertAction, parent: c.node, distance: c.distance})
		if parent := b.tree.nodes[c.node].parent; parent >= 0 {
			consider(b.replaceChild(parent, c.node, added))
		}
	}
	return &Placement[T, E, M]{builder: b, action: best, observed: observed, added: added}
}

// AddNode places an observed value in the tree.
func (b *Builder[T, E, M]) AddNode(observed T) *Builder[T, E, M] {
	b.BestPlacement(observed).Apply()
	return b
}

// replaceChild returns the action that puts a common ancestor of
// child and added between parent and child, or nil when they have
// nothing in common or the common ancestor equals child.
func (b *Builder[T, E, M]) replaceChild(parent, child int, added E) *action[E] {
	behavior := b.behavior
	parentNode, childNode := &b.tree.nodes[parent], &b.tree.nodes[child]
	parentContent, childContent := parentNode.Reconstructed, childNode.Reconstructed
	common := behavior.FindCommonMutations(
		behavior.MutationsBetween(parentContent, added),
		behavior.MutationsBetween(parentContent, childContent),
	)
	distanceToCommon := behavior.Distance(parentContent, common)
	if distanceToCommon == 0 {
		return nil
	}
	commonAncestor := behavior.Mutate(parentContent, common)
	fromCommonToChild := behavior.MutationsBetween(commonAncestor, childContent)
	distanceToChild := behavior.Distance(commonAncestor, fromCommonToChild)
	if distanceToChild == 0 {
		return nil
	}
	distanceToAdded := b.distanceBetween(commonAncestor, added)
	minDistance := distanceToAdded
	if distanceToChild < minDistance {
		minDistance = distanceToChild
	}
	if d := parentNode.MinDistanceFromObserved + distanceToCommon; d < minDistance {
		minDistance = d
	}
	return &action[E]{
		kind:                    replaceAction,
		parent:                  parent,
		distance:                distanceToCommon,
		child:                   child,
		distanceToChild:         distanceToChild,
		distanceToAdded:         distanceToAdded,
		replacedDistance:        childNode.distance,
		common:                  commonAncestor,
		rebuiltChild:            behavior.Mutate(commonAncestor, fromCommonToChild),
		minDistanceFromObserved: minDistance,
	}
}

func (b *Builder[T, E, M]) apply(a *action[E], observed T, added E) {
	t := b.tree
	switch a.kind {
	case insertAction:
		if a.distance == 0 {
			t.nodes[a.parent].MinDistanceFromObserved = 0
		}
		b.addGenerated(a.parent, a.distance, observed, added)
	case replaceAction:
		common := t.newNode(Node[T, E]{
			Kind:                    Reconstructed,
			Reconstructed:           a.common,
			MinDistanceFromObserved: a.minDistanceFromObserved,
		})
		t.replaceChild(a.parent, a.child, common, a.distance)
		t.nodes[a.child].Reconstructed = a.rebuiltChild
		t.addChild(common, a.child, a.distanceToChild)
		b.addGenerated(common, a.distanceToAdded, observed, added)
		b.postprocess(common)
	default:
		log.Panicf("invalid action kind %v", a.kind)
	}
}

// addGenerated attaches the observed value directly when it is at
// distance zero, and otherwise through a reconstructed copy of it.
func (b *Builder[T, E, M]) addGenerated(parent int, distance float64, observed T, added E) {
	t := b.tree
	leaf := t.newNode(Node[T, E]{Kind: Observed, Observed: observed})
	if distance == 0 {
		t.addChild(parent, leaf, 0)
		return
	}
	node := t.newNode(Node[T, E]{Kind: Reconstructed, Reconstructed: added})
	t.addChild(node, leaf, 0)
	t.addChild(parent, node, distance)
}

// postprocess refines the reconstructed descendants of a node. A
// descendant that becomes equal to its parent is spliced out and its
// children move up, where they may have to be merged with their new
// siblings.
func (b *Builder[T, E, M]) postprocess(parent int) {
	t := b.tree
	parentContent := t.nodes[parent].Reconstructed
	children := t.nodes[parent].children
	t.nodes[parent].children = nil
	spliced := false
	for _, child := range children {
		if b.postprocessChild(parent, parentContent, child, t.nodes[child].distance) {
			spliced = true
		}
	}
	if spliced {
		b.mergeSiblings(parent)
	}
}

func (b *Builder[T, E, M]) postprocessChild(parent int, parentContent E, child int, distance float64) (spliced bool) {
	t := b.tree
	node := &t.nodes[child]
	if node.Kind != Reconstructed {
		t.addChild(parent, child, distance)
		return false
	}
	mapped := b.behavior.PostprocessDescendants(parentContent, node.Reconstructed)
	newDistance := b.distanceBetween(parentContent, mapped)
	if newDistance == 0 {
		grandChildren := node.children
		node.children = nil
		node.parent = -1
		for _, grandChild := range grandChildren {
			b.postprocessChild(parent, parentContent, grandChild, t.nodes[grandChild].distance)
		}
		return true
	}
	node.Reconstructed = mapped
	t.addChild(parent, child, newDistance)
	b.postprocess(child)
	return false
}

// mergeSiblings gives reconstructed children of parent that share
// mutations a common ancestor, until no two of them do.
func (b *Builder[T, E, M]) mergeSiblings(parent int) {
	for {
		first, second, common, ok := b.siblingsSharingMutations(parent)
		if !ok {
			return
		}
		b.mergeSiblingPair(parent, first, second, common)
	}
}

func (b *Builder[T, E, M]) siblingsSharingMutations(parent int) (first, second int, common M, ok bool) {
	t := b.tree
	parentContent := t.nodes[parent].Reconstructed
	var (
		reconstructed []int
		deltas        []M
	)
	for _, child := range t.nodes[parent].children {
		if t.nodes[child].Kind == Reconstructed {
			reconstructed = append(reconstructed, child)
			deltas = append(deltas, b.behavior.MutationsBetween(parentContent, t.nodes[child].Reconstructed))
		}
	}
	for i := range deltas {
		for j := i + 1; j < len(deltas); j++ {
			common = b.behavior.FindCommonMutations(deltas[i], deltas[j])
			if b.behavior.Distance(parentContent, common) != 0 {
				return reconstructed[i], reconstructed[j], common, true
			}
		}
	}
	return -1, -1, common, false
}

// mergeSiblingPair puts first and second under their common ancestor.
// A sibling that equals the common ancestor takes that role itself.
func (b *Builder[T, E, M]) mergeSiblingPair(parent, first, second int, common M) {
	t := b.tree
	parentContent := t.nodes[parent].Reconstructed
	ancestor := b.behavior.Mutate(parentContent, common)
	distance := b.behavior.Distance(parentContent, common)
	firstDistance := b.distanceBetween(ancestor, t.nodes[first].Reconstructed)
	secondDistance := b.distanceBetween(ancestor, t.nodes[second].Reconstructed)
	if secondDistance == 0 && firstDistance != 0 {
		first, second = second, first
		firstDistance, secondDistance = secondDistance, firstDistance
	}
	t.removeChild(parent, second)
	target := first
	if firstDistance != 0 {
		minDistance := t.nodes[parent].MinDistanceFromObserved + distance
		if firstDistance < minDistance {
			minDistance = firstDistance
		}
		if secondDistance < minDistance {
			minDistance = secondDistance
		}
		target = t.newNode(Node[T, E]{
			Kind:                    Reconstructed,
			Reconstructed:           ancestor,
			MinDistanceFromObserved: minDistance,
		})
		t.replaceChild(parent, first, target, distance)
		b.attachRebuilt(target, first)
	}
	b.attachRebuilt(target, second)
	b.mergeSiblings(target)
}

// attachRebuilt adds a reconstructed node below parent, expressing its
// content relative to parent. A node equal to parent is spliced out.
func (b *Builder[T, E, M]) attachRebuilt(parent, child int) {
	t := b.tree
	parentContent := t.nodes[parent].Reconstructed
	content := b.behavior.Mutate(parentContent, b.behavior.MutationsBetween(parentContent, t.nodes[child].Reconstructed))
	distance := b.distanceBetween(parentContent, content)
	if distance != 0 {
		t.nodes[child].Reconstructed = content
		t.addChild(parent, child, distance)
		return
	}
	grandChildren := t.nodes[child].children
	t.nodes[child].children = nil
	for _, grandChild := range grandChildren {
		if t.nodes[grandChild].Kind == Observed {
			if t.nodes[grandChild].distance == 0 {
				t.nodes[parent].MinDistanceFromObserved = 0
			}
			t.addChild(parent, grandChild, t.nodes[grandChild].distance)
			continue
		}
		b.attachRebuilt(parent, grandChild)
	}
}

// checkSiblings verifies that no two reconstructed siblings share
// mutations relative to their parent.
func (b *Builder[T, E, M]) checkSiblings() {
	t := b.tree
	for _, entry := range t.AllNodes() {
		node := &t.nodes[entry.Node]
		if node.Kind != Reconstructed {
			continue
		}
		var deltas []M
		for _, child := range node.children {
			if t.nodes[child].Kind == Reconstructed {
				deltas = append(deltas, b.behavior.MutationsBetween(node.Reconstructed, t.nodes[child].Reconstructed))
			}
		}
		for i := range deltas {
			for j := i + 1; j < len(deltas); j++ {
				if d := b.behavior.Distance(node.Reconstructed, b.behavior.FindCommonMutations(deltas[i], deltas[j])); d != 0 {
					panic(fmt.Sprintf("siblings under node %v share mutations at distance %v", entry.Node, d))
				}
			}
		}
	}
}
