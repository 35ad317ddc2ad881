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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/exascience/shmtrees/internal"
	"github.com/exascience/shmtrees/mutations"
	"github.com/exascience/shmtrees/trees"
)

type treeNode = trees.Node[*ObservedClone, MutationsDescription]

func nodeName(node *treeNode) string {
	return trees.Convert(node,
		func(observed *ObservedClone) string { return strconv.Itoa(observed.Clone.ID) },
		func(d MutationsDescription) string { return "'" + d.CDR3() + "'" },
	)
}

// Newick renders trees with clone identifiers as leaf names and the
// CDR3 of reconstructed nodes as internal names.
var Newick = trees.NewickPrinter[*ObservedClone, MutationsDescription]{
	Name:           nodeName,
	PrintDistances: true,
}

// XML renders trees with the full sequence of every reconstructed
// node.
var XML = trees.XMLPrinter[*ObservedClone, MutationsDescription]{
	Label: func(t *trees.Tree[*ObservedClone, MutationsDescription], entry trees.NodeWithParent) string {
		return trees.Convert(t.Node(entry.Node),
			func(observed *ObservedClone) string { return "clone " + strconv.Itoa(observed.Clone.ID) },
			func(d MutationsDescription) string { return AncestorInfoBuilder{}.BuildAncestorInfo(d).Sequence },
		)
	},
}

// DebugInfo describes a reconstructed node of a tree.
type DebugInfo struct {
	TreeID   string
	VJBase   VJBase
	NodeID   int
	ParentID int // -1 for the root

	// CloneID is the clone attached at distance 0, or -1.
	CloneID int

	NDN                                        string
	VMutationsFromRoot, JMutationsFromRoot     mutations.Mutations
	NDNMutationsFromRoot                       mutations.Mutations
	VMutationsFromParent, JMutationsFromParent mutations.Mutations
	NDNMutationsFromParent                     mutations.Mutations
	DistanceFromParent                         float64
	DistanceFromRoot                           float64
}

// DebugInfos returns debug information for every reconstructed node of
// a tree, in pre-order.
func (processor *ClusterProcessor) DebugInfos(tree *CloneTree) (result []DebugInfo) {
	t := tree.Tree
	root := t.Node(t.Root()).Reconstructed
	for _, entry := range t.AllNodes() {
		node := t.Node(entry.Node)
		if node.Kind != trees.Reconstructed {
			continue
		}
		d := node.Reconstructed
		info := DebugInfo{
			TreeID:               tree.ID.String(),
			VJBase:               tree.VJBase,
			NodeID:               entry.Node,
			ParentID:             entry.Parent,
			CloneID:              -1,
			NDN:                  d.KnownNDN.BuildSequence(),
			VMutationsFromRoot:   d.VMutations(),
			JMutationsFromRoot:   d.JMutations(),
			NDNMutationsFromRoot: d.KnownNDN.Mutations(),
			DistanceFromRoot:     processor.Distance(root, d),
		}
		for _, child := range t.Children(entry.Node) {
			if c := t.Node(child); c.Kind == trees.Observed {
				if _, distance, _ := t.Parent(child); distance == 0 {
					info.CloneID = c.Observed.Clone.ID
					break
				}
			}
		}
		if entry.Parent >= 0 {
			parent := t.Node(entry.Parent).Reconstructed
			info.VMutationsFromParent = mutations.Difference(parent.VMutations(), info.VMutationsFromRoot)
			info.JMutationsFromParent = mutations.Difference(parent.JMutations(), info.JMutationsFromRoot)
			info.NDNMutationsFromParent = mutations.Difference(parent.KnownNDN.Mutations(), info.NDNMutationsFromRoot)
			info.DistanceFromParent = entry.Distance
		}
		result = append(result, info)
	}
	return result
}

var debugHeader = []string{
	"treeId", "VGene", "JGene", "CDR3Length", "nodeId", "parentId", "cloneId", "NDN",
	"VMutationsFromRoot", "JMutationsFromRoot", "NDNMutationsFromRoot",
	"VMutationsFromParent", "JMutationsFromParent", "NDNMutationsFromParent",
	"distanceFromParent", "distanceFromRoot",
}

func optionalID(id int) string {
	if id < 0 {
		return ""
	}
	return strconv.Itoa(id)
}

// WriteDebugInfos writes debug information as CSV with a header line.
func WriteDebugInfos(w io.Writer, infos []DebugInfo) error {
	out := csv.NewWriter(w)
	if err := out.Write(debugHeader); err != nil {
		return err
	}
	for _, info := range infos {
		if err := out.Write([]string{
			info.TreeID,
			*info.VJBase.VGene,
			*info.VJBase.JGene,
			strconv.Itoa(info.VJBase.CDR3Length),
			strconv.Itoa(info.NodeID),
			optionalID(info.ParentID),
			optionalID(info.CloneID),
			info.NDN,
			info.VMutationsFromRoot.Encode(),
			info.JMutationsFromRoot.Encode(),
			info.NDNMutationsFromRoot.Encode(),
			info.VMutationsFromParent.Encode(),
			info.JMutationsFromParent.Encode(),
			info.NDNMutationsFromParent.Encode(),
			internal.FormatFloat(info.DistanceFromParent),
			internal.FormatFloat(info.DistanceFromRoot),
		}); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

func writeFile(filename, contents string) error {
	if err := os.WriteFile(filename, []byte(contents), 0666); err != nil {
		return fmt.Errorf("writing %v: %w", filename, err)
	}
	return nil
}

// WriteTrees writes a Newick file and an XML file per tree, and a CSV
// file nodes.csv with the debug information of all trees, into dir.
func (processor *ClusterProcessor) WriteTrees(dir string, ts []*CloneTree) (err error) {
	if err = os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating output directory %v: %w", dir, err)
	}
	var infos []DebugInfo
	for _, tree := range ts {
		base := filepath.Join(dir, tree.ID.String())
		if err = writeFile(base+".nwk", Newick.Print(tree.Tree)+"\n"); err != nil {
			return err
		}
		if err = writeFile(base+".xml", XML.Print(tree.Tree)+"\n"); err != nil {
			return err
		}
		infos = append(infos, processor.DebugInfos(tree)...)
	}
	filename := filepath.Join(dir, "nodes.csv")
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating %v: %w", filename, err)
	}
	defer func() {
		if nerr := f.Close(); err == nil && nerr != nil {
			err = fmt.Errorf("closing %v: %w", filename, nerr)
		}
	}()
	if err = WriteDebugInfos(f, infos); err != nil {
		return fmt.Errorf("writing %v: %w", filename, err)
	}
	return nil
}
