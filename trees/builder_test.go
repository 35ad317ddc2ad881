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
	"math/rand"
	"sort"
	"strings"
	"testing"
)

// vectors are strings of digits; a delta has the target digit where
// the two vectors differ and '.' elsewhere.
type vectors struct {
	// wildcard digits in a child are replaced by the parent's digit
	// after a replacement
	wildcard byte
}

func (vectors) Distance(_ string, m string) (d float64) {
	for i := 0; i < len(m); i++ {
		if m[i] != '.' {
			d++
		}
	}
	return d
}

func (vectors) MutationsBetween(first, second string) string {
	result := []byte(second)
	for i := range result {
		if first[i] == second[i] {
			result[i] = '.'
		}
	}
	return string(result)
}

func (vectors) Mutate(base, m string) string {
	result := []byte(base)
	for i := range result {
		if m[i] != '.' {
			result[i] = m[i]
		}
	}
	return string(result)
}

func (vectors) FindCommonMutations(first, second string) string {
	result := []byte(first)
	for i := range result {
		if first[i] != second[i] {
			result[i] = '.'
		}
	}
	return string(result)
}

func (vectors) AsAncestor(observed string) string {
	return observed
}

func (v vectors) PostprocessDescendants(parent, child string) string {
	if v.wildcard == 0 {
		return child
	}
	result := []byte(child)
	for i := range result {
		if result[i] == v.wildcard {
			result[i] = parent[i]
		}
	}
	return string(result)
}

var newick = NewickPrinter[string, string]{
	Name: func(node *Node[string, string]) string {
		return Convert(node,
			func(observed string) string { return observed },
			func(reconstructed string) string { return "'" + reconstructed + "'" })
	},
	PrintDistances: true,
}

func build(behavior vectors, probe int, values ...string) *Builder[string, string, string] {
	builder := NewBuilder[string, string, string](strings.Repeat("0", len(values[0])), behavior, probe)
	for _, value := range values {
		builder.AddNode(value)
	}
	return builder
}

func TestNewick(t *testing.T) {
	for _, tc := range []struct {
		name     string
		values   []string
		expected string
	}{
		{"direct ancestor", []string{"110", "100"},
			"(((110:0)'110':1,100:0)'100':1)'000';"},
		{"second direct ancestor", []string{"101", "110", "100"},
			"(((101:0)'101':1,(110:0)'110':1,100:0)'100':1)'000';"},
		{"third direct ancestor", []string{"001", "100", "010", "000"},
			"((001:0)'001':1,(010:0)'010':1,(100:0)'100':1,000:0)'000';"},
		{"intersection", []string{"101", "110"},
			"(((101:0)'101':1,(110:0)'110':1)'100':1)'000';"},
		{"sibling replacement", []string{"100110", "111000", "000001", "000000"},
			"(((100110:0)'100110':2,(111000:0)'111000':2)'100000':1,(000001:0)'000001':1,000000:0)'000000';"},
	} {
		if result := newick.Print(build(vectors{}, 3, tc.values...).Tree()); result != tc.expected {
			t.Errorf("%v: expected %v, got %v", tc.name, tc.expected, result)
		}
	}
}

func TestProbeCountOfOne(t *testing.T) {
	expected := "(((101:0)'101':1,(110:0)'110':1,100:0)'100':1)'000';"
	if result := newick.Print(build(vectors{}, 1, "101", "110", "100").Tree()); result != expected {
		t.Errorf("expected %v, got %v", expected, result)
	}
}

// Decreasing and increasing distance from the root give the same tree
// for this input; the cluster processor uses decreasing order.
func TestInsertionOrder(t *testing.T) {
	expected := "(((100110:0)'100110':2,(111000:0)'111000':2)'100000':1,(000001:0)'000001':1,000000:0)'000000';"
	decreasing := []string{"100110", "111000", "000001", "000000"}
	increasing := []string{"000000", "000001", "100110", "111000"}
	for _, order := range [][]string{decreasing, increasing} {
		if result := newick.Print(build(vectors{}, 3, order...).Tree()); result != expected {
			t.Errorf("order %v: expected %v, got %v", order, expected, result)
		}
	}
}

func TestBestPlacement(t *testing.T) {
	builder := build(vectors{}, 3, "101")
	before := newick.Print(builder.Tree())
	placement := builder.BestPlacement("110")
	if after := newick.Print(builder.Tree()); after != before {
		t.Errorf("tree changed from %v to %v", before, after)
	}
	if c := placement.ChangeOfDistance(); c != 1 {
		t.Errorf("expected change of distance 1, got %v", c)
	}
	if p := placement.ParentContent(); p != "100" {
		t.Errorf("expected parent 100, got %v", p)
	}
	placement.Apply()
	expected := "(((101:0)'101':1,(110:0)'110':1)'100':1)'000';"
	if result := newick.Print(builder.Tree()); result != expected {
		t.Errorf("expected %v, got %v", expected, result)
	}
	if c := builder.BestPlacement("110").ChangeOfDistance(); c != 0 {
		t.Errorf("expected change of distance 0 for a present value, got %v", c)
	}
}

func TestPostprocessSplicesEqualNodes(t *testing.T) {
	tree := build(vectors{wildcard: '9'}, 1, "19", "10").Tree()
	expected := "((10:0,19:0)'10':1)'00';"
	if result := newick.Print(tree); result != expected {
		t.Errorf("expected %v, got %v", expected, result)
	}
	if n := tree.CountLeaves(); n != 2 {
		t.Errorf("expected 2 leaves, got %v", n)
	}
}

func TestSplicedChildrenMergeWithSiblings(t *testing.T) {
	behavior := vectors{wildcard: '9'}
	builder := NewBuilder[string, string, string]("0000", behavior, 1)
	tree := builder.tree
	reconstructed := func(parent int, value string, distance float64, observed bool) int {
		node := tree.newNode(Node[string, string]{Kind: Reconstructed, Reconstructed: value})
		tree.addChild(parent, node, distance)
		if observed {
			tree.addChild(node, tree.newNode(Node[string, string]{Kind: Observed, Observed: value}), 0)
		}
		return node
	}
	reconstructed(tree.Root(), "1100", 2, true)
	wildcard := reconstructed(tree.Root(), "9000", 1, false)
	reconstructed(wildcard, "1110", 2, true)

	builder.postprocess(tree.Root())
	expected := "(((1110:0)'1110':1,1100:0)'1100':2)'0000';"
	if result := newick.Print(tree); result != expected {
		t.Errorf("expected %v, got %v", expected, result)
	}
	checkTree(t, tree, behavior, []string{"1100", "1110"})
	builder.checkSiblings()
}

func checkTree(t *testing.T, tree *Tree[string, string], behavior vectors, observed []string) {
	t.Helper()
	if tree.Node(tree.Root()).Kind != Reconstructed {
		t.Error("root is not reconstructed")
	}
	var leaves []string
	for _, entry := range tree.AllNodes() {
		node := tree.Node(entry.Node)
		children := tree.Children(entry.Node)
		if len(children) == 0 {
			if node.Kind != Observed {
				t.Errorf("leaf %v is not observed", entry.Node)
			}
			leaves = append(leaves, node.Observed)
			continue
		}
		if node.Kind != Reconstructed {
			t.Errorf("inner node %v is not reconstructed", entry.Node)
			continue
		}
		for i, c1 := range children {
			if tree.Node(c1).Kind != Reconstructed {
				continue
			}
			m1 := behavior.MutationsBetween(node.Reconstructed, tree.Node(c1).Reconstructed)
			for _, c2 := range children[i+1:] {
				if tree.Node(c2).Kind != Reconstructed {
					continue
				}
				m2 := behavior.MutationsBetween(node.Reconstructed, tree.Node(c2).Reconstructed)
				if d := behavior.Distance(node.Reconstructed, behavior.FindCommonMutations(m1, m2)); d != 0 {
					t.Errorf("siblings %v and %v share mutations", c1, c2)
				}
			}
		}
	}
	if tree.CountLeaves() != len(observed) {
		t.Errorf("expected %v leaves, got %v", len(observed), tree.CountLeaves())
	}
	sort.Strings(leaves)
	expected := append([]string(nil), observed...)
	sort.Strings(expected)
	if strings.Join(leaves, ",") != strings.Join(expected, ",") {
		t.Errorf("expected leaves %v, got %v", expected, leaves)
	}
}

func TestInvariants(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	behavior := vectors{}
	for probe := 1; probe <= 3; probe++ {
		seen := map[string]bool{"00000000": true}
		builder := NewBuilder[string, string, string]("00000000", behavior, probe)
		var observed []string
		for len(observed) < 40 {
			value := make([]byte, 8)
			for i := range value {
				value[i] = byte('0' + rnd.Intn(3))
			}
			if seen[string(value)] {
				continue
			}
			seen[string(value)] = true
			observed = append(observed, string(value))
			builder.AddNode(string(value))
			checkTree(t, builder.Tree(), behavior, observed)
		}
	}
}

func TestTreeAPI(t *testing.T) {
	builder := build(vectors{}, 3, "101", "110")
	tree := builder.Tree()
	nodes := tree.AllNodes()
	if nodes[0].Node != tree.Root() || nodes[0].Parent != -1 {
		t.Errorf("unexpected first node %v", nodes[0])
	}
	for _, entry := range nodes[1:] {
		parent, distance, ok := tree.Parent(entry.Node)
		if !ok || parent != entry.Parent || distance != entry.Distance {
			t.Errorf("inconsistent parent for %v", entry)
		}
	}
	if _, _, ok := tree.Parent(tree.Root()); ok {
		t.Error("root has a parent")
	}
	if d := builder.DistanceFromRootToObserved("111"); d != 3 {
		t.Errorf("expected distance 3, got %v", d)
	}
	lengths := Map(tree,
		func(observed string) int { return len(observed) },
		func(reconstructed string) string { return strings.ReplaceAll(reconstructed, "0", "-") })
	if len(lengths.AllNodes()) != len(nodes) {
		t.Error("map changed the shape of the tree")
	}
	if root := lengths.Node(lengths.Root()).Reconstructed; root != "---" {
		t.Errorf("unexpected mapped root %v", root)
	}
	xml := XMLPrinter[string, string]{
		Label: func(tree *Tree[string, string], entry NodeWithParent) string {
			return newick.Name(tree.Node(entry.Node))
		},
	}.Print(tree)
	for _, s := range []string{`<node content="&#39;000&#39;">`, `<node content="101" distance="0">`, `distance="1"`} {
		if !strings.Contains(xml, s) {
			t.Errorf("expected %v in %v", s, xml)
		}
	}
}

func BenchmarkAddNode(b *testing.B) {
	rnd := rand.New(rand.NewSource(7))
	values := make([]string, 100)
	for i := range values {
		value := make([]byte, 16)
		for j := range value {
			value[j] = byte('0' + rnd.Intn(2))
		}
		values[i] = string(value)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		build(vectors{}, 1, values...)
	}
}
