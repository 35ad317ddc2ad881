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

// Package trees implements lineage trees of observed and reconstructed
// nodes, and a builder that grows such trees one observation at a time
// by inserting reconstructed common ancestors.
package trees

import "fmt"

// Kind tells whether a node holds an observed value or a
// reconstructed ancestor.
type Kind uint8

const (
	// Reconstructed nodes hold ancestor content. The root and all
	// inner nodes are reconstructed.
	Reconstructed Kind = iota
	// Observed nodes hold input values. Leaves are always observed.
	Observed
)

func (k Kind) String() string {
	switch k {
	case Reconstructed:
		return "reconstructed"
	case Observed:
		return "observed"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// A Node is either observed or reconstructed, as told by Kind. Only
// the field that corresponds to Kind is meaningful.
type Node[T, E any] struct {
	Kind          Kind
	Observed      T
	Reconstructed E

	// MinDistanceFromObserved is zero for the root and for nodes
	// with an observed child at distance zero, and otherwise the
	// distance to the nearest such ancestor.
	MinDistanceFromObserved float64

	parent   int
	distance float64
	children []int
}

// Convert matches a node exhaustively.
func Convert[T, E, R any](node *Node[T, E], onObserved func(T) R, onReconstructed func(E) R) R {
	switch node.Kind {
	case Observed:
		return onObserved(node.Observed)
	case Reconstructed:
		return onReconstructed(node.Reconstructed)
	default:
		panic(fmt.Sprintf("invalid node kind %v", node.Kind))
	}
}

// A Tree is an arena of nodes addressed by index. The root is always
// at index 0. Nodes that are spliced out of the tree stay in the arena
// but are no longer reachable from the root.
type Tree[T, E any] struct {
	nodes []Node[T, E]
}

// NewTree returns a tree that consists of a reconstructed root.
func NewTree[T, E any](root E) *Tree[T, E] {
	return &Tree[T, E]{nodes: []Node[T, E]{{
		Kind:          Reconstructed,
		Reconstructed: root,
		parent:        -1,
	}}}
}

// Root returns the index of the root node.
func (t *Tree[T, E]) Root() int {
	return 0
}

// Node returns the node at the given index. The pointer is only valid
// until the tree is modified again.
func (t *Tree[T, E]) Node(index int) *Node[T, E] {
	return &t.nodes[index]
}

// Children returns the indices of the children of a node. The slice
// must not be modified.
func (t *Tree[T, E]) Children(index int) []int {
	return t.nodes[index].children
}

// Parent returns the parent of a node and the distance to it. ok is
// false for the root.
func (t *Tree[T, E]) Parent(index int) (parent int, distance float64, ok bool) {
	node := &t.nodes[index]
	if node.parent < 0 {
		return -1, 0, false
	}
	return node.parent, node.distance, true
}

// NodeWithParent is an entry of AllNodes. Parent is -1 for the root.
type NodeWithParent struct {
	Node, Parent int
	Distance     float64
}

// AllNodes returns all nodes reachable from the root in pre-order.
func (t *Tree[T, E]) AllNodes() []NodeWithParent {
	result := make([]NodeWithParent, 0, len(t.nodes))
	var walk func(int)
	walk = func(index int) {
		node := &t.nodes[index]
		result = append(result, NodeWithParent{index, node.parent, node.distance})
		for _, child := range node.children {
			walk(child)
		}
	}
	walk(0)
	return result
}

// CountLeaves returns the number of reachable nodes without children.
func (t *Tree[T, E]) CountLeaves() (count int) {
	for _, entry := range t.AllNodes() {
		if len(t.nodes[entry.Node].children) == 0 {
			count++
		}
	}
	return count
}

// Map returns a tree with the same shape, where each node's content
// is converted by the given functions. Node indices are preserved.
func Map[T, E, R1, R2 any](t *Tree[T, E], mapObserved func(T) R1, mapReconstructed func(E) R2) *Tree[R1, R2] {
	result := &Tree[R1, R2]{nodes: make([]Node[R1, R2], len(t.nodes))}
	for _, entry := range t.AllNodes() {
		node := &t.nodes[entry.Node]
		mapped := &result.nodes[entry.Node]
		mapped.Kind = node.Kind
		mapped.MinDistanceFromObserved = node.MinDistanceFromObserved
		mapped.parent = node.parent
		mapped.distance = node.distance
		mapped.children = append([]int(nil), node.children...)
		switch node.Kind {
		case Observed:
			mapped.Observed = mapObserved(node.Observed)
		case Reconstructed:
			mapped.Reconstructed = mapReconstructed(node.Reconstructed)
		}
	}
	return result
}

func (t *Tree[T, E]) newNode(node Node[T, E]) int {
	index := len(t.nodes)
	node.parent = -1
	t.nodes = append(t.nodes, node)
	return index
}

func (t *Tree[T, E]) addChild(parent, child int, distance float64) {
	t.nodes[child].parent = parent
	t.nodes[child].distance = distance
	t.nodes[parent].children = append(t.nodes[parent].children, child)
}

func (t *Tree[T, E]) removeChild(parent, child int) {
	children := t.nodes[parent].children
	for i, c := range children {
		if c == child {
			t.nodes[parent].children = append(children[:i:i], children[i+1:]...)
			t.nodes[child].parent = -1
			return
		}
	}
	panic(fmt.Sprintf("node %v is not a child of node %v", child, parent))
}

// replaceChild rewrites the link from parent to what into a link to
// substitution.
func (t *Tree[T, E]) replaceChild(parent, what, substitution int, distance float64) {
	children := t.nodes[parent].children
	for i, child := range children {
		if child == what {
			children[i] = substitution
			t.nodes[substitution].parent = parent
			t.nodes[substitution].distance = distance
			t.nodes[what].parent = -1
			return
		}
	}
	panic(fmt.Sprintf("node %v is not a child of node %v", what, parent))
}
