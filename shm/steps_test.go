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
	"testing"

	"github.com/exascience/shmtrees/clones"
	"github.com/exascience/shmtrees/mutations"
)

func TestParseSteps(t *testing.T) {
	steps, err := ParseSteps("combine-trees, attach-clones-by-ndn")
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 2 || steps[0] != CombineTrees || steps[1] != AttachClonesByNDN {
		t.Errorf("unexpected steps %v", steps)
	}
	if s := FormatSteps(DefaultParameters().Steps); s != "attach-clones-by-distance-change,combine-trees,attach-clones-by-ndn" {
		t.Errorf("unexpected default steps %v", s)
	}
	if steps, err := ParseSteps(""); err != nil || len(steps) != 0 {
		t.Errorf("expected no steps, got %v %v", steps, err)
	}
	if _, err := ParseSteps("combine-trees,grow"); err == nil {
		t.Error("expected an error for an unknown step")
	}
}

func TestCombineTrees(t *testing.T) {
	f := newFixture()
	decomposed := DecomposeCluster([]*clones.Clone{
		f.clone(1, "SA1CSG0A", "", "CCGA"),
		f.clone(2, "SA1CST2A", "", "CCGA"),
		f.clone(3, "SA1CSA4G", "", "CCGA"),
		f.clone(4, "SA1CSC5G", "", "CCGA"),
		f.clone(5, "ST3ASA4G", "", "CCGA"),
		f.clone(6, "ST3ASC5G", "", "CCGA"),
	})
	processor := NewClusterProcessor(testParameters(0))
	first := processor.BuildTree(decomposed[0:2])
	second := processor.BuildTree(decomposed[2:4])
	third := processor.BuildTree(decomposed[4:6])

	if v := first.MostRecentCommonAncestor().VMutations(); !v.Equal(mutations.MustDecode("SA1C")) {
		t.Errorf("unexpected V mutations of the common ancestor %v", v)
	}
	if d := processor.distanceBetweenTrees(first, second); d != 0 {
		t.Errorf("expected distance 0, got %v", d)
	}
	if d := processor.distanceBetweenTrees(first, third); d <= processor.parameters.ThresholdForCombineTrees {
		t.Errorf("expected a distance above the threshold, got %v", d)
	}

	result := processor.ApplyStep(CombineTrees, []*CloneTree{first, second, third}, decomposed)
	if len(result) != 2 {
		t.Fatalf("expected 2 trees, got %v", len(result))
	}
	if n := result[0].ClonesCount(); n != 4 {
		t.Errorf("expected 4 clones in the combined tree, got %v", n)
	}
	if n := result[0].Tree.CountLeaves(); n != 4 {
		t.Errorf("expected 4 leaves in the combined tree, got %v", n)
	}
	if result[0].ID == first.ID || result[0].ID == second.ID {
		t.Error("expected a new identifier for the combined tree")
	}
	if result[1] != third {
		t.Error("expected the third tree to stay as it is")
	}
}

func TestAttachClonesByNDN(t *testing.T) {
	f := newFixture()
	cs := []*clones.Clone{
		f.clone(1, "SG0ASA1CST2A", "", "CCGA"),
		f.clone(2, "SG0ASA1CST2ASA4G", "", "CCGA"),
		f.clone(3, "", "", "CCGA"),
		f.clone(4, "", "", "TTAC"),
	}
	parameters := testParameters(2)
	parameters.Steps = nil
	ts := ProcessClusters(append([]*clones.Clone(nil), cs...), parameters)
	if len(ts) != 1 || ts[0].Tree.CountLeaves() != 2 {
		t.Fatal("expected a single tree of 2 clones without steps")
	}

	parameters.Steps = []Step{AttachClonesByNDN}
	ts = ProcessClusters(append([]*clones.Clone(nil), cs...), parameters)
	if len(ts) != 1 {
		t.Fatalf("expected 1 tree, got %v", len(ts))
	}
	tree := ts[0].Tree
	if n := tree.CountLeaves(); n != 3 {
		t.Errorf("expected 3 leaves, got %v", n)
	}
	if observedNode(tree, 3) < 0 {
		t.Error("expected the unmutated clone with the same NDN in the tree")
	}
	if observedNode(tree, 4) >= 0 {
		t.Error("expected the clone with a different NDN outside of the tree")
	}
}

func TestAttachClonesByDistanceChange(t *testing.T) {
	f := newFixture()
	cs := []*clones.Clone{
		f.clone(1, "SG0ASA1CST2A", "", "CCGA"),
		f.clone(2, "SG0ASA1CST2ASA4G", "", "CCGA"),
		f.clone(3, "SG0ASA1CSC5G", "", "CCGA"),
	}
	parameters := testParameters(2)
	parameters.Steps = []Step{AttachClonesByDistanceChange}
	parameters.ThresholdForFreeClones = 0.1
	ts := ProcessClusters(append([]*clones.Clone(nil), cs...), parameters)
	if len(ts) != 1 || ts[0].Tree.CountLeaves() != 2 {
		t.Fatal("expected the third clone to add too much distance")
	}

	parameters.ThresholdForFreeClones = DefaultParameters().ThresholdForFreeClones
	ts = ProcessClusters(append([]*clones.Clone(nil), cs...), parameters)
	if len(ts) != 1 {
		t.Fatalf("expected 1 tree, got %v", len(ts))
	}
	if n := ts[0].Tree.CountLeaves(); n != 3 {
		t.Fatalf("expected 3 leaves, got %v", n)
	}
	if n := ts[0].ClonesCount(); n != 3 {
		t.Errorf("expected 3 clones, got %v", n)
	}
	if v := ts[0].MostRecentCommonAncestor().VMutations(); !v.Equal(mutations.MustDecode("SG0ASA1C")) {
		t.Errorf("unexpected V mutations of the common ancestor %v", v)
	}

	parameters.MaxNDNDistanceForFreeClones = 0
	cs[2] = f.clone(3, "SG0ASA1CSC5G", "", "CCGT")
	if ts := ProcessClusters(append([]*clones.Clone(nil), cs...), parameters); len(ts) != 1 || ts[0].Tree.CountLeaves() != 2 {
		t.Error("expected the clone with a different NDN outside of the tree")
	}
}
