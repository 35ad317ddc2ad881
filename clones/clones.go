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

// Package clones contains the clonotype data model and a parser for
// tab-separated clone tables.
package clones

import (
	"sort"

	psort "github.com/exascience/pargo/sort"

	"github.com/exascience/shmtrees/fasta"
	"github.com/exascience/shmtrees/intervals"
	"github.com/exascience/shmtrees/mutations"
	"github.com/exascience/shmtrees/utils"
)

// An Alignment of part of a clone to a germline gene. Mutations are
// absolute, in germline coordinates.
type Alignment struct {
	Sequence1Range intervals.Interval
	Mutations      mutations.Mutations
	Score          float64
}

// A Hit is the best germline gene for a clone, with the alignments
// against it ordered by germline position.
type Hit struct {
	Gene       *fasta.Gene
	Alignments []Alignment
}

// GeneName returns the name of the gene of the hit.
func (hit Hit) GeneName() utils.Symbol {
	return hit.Gene.Name
}

// MutationsCount returns the number of mutations in all alignments of
// the hit.
func (hit Hit) MutationsCount() (count int) {
	for _, alignment := range hit.Alignments {
		count += alignment.Mutations.Size()
	}
	return count
}

// Clone is a clonotype. Clones are immutable after parsing.
type Clone struct {
	ID         int
	Count      float64
	V, J       Hit
	CDR3       string
	Productive bool
}

// VJMutationsCount returns the number of V and J mutations of the clone.
func (clone *Clone) VJMutationsCount() int {
	return clone.V.MutationsCount() + clone.J.MutationsCount()
}

// FilterProductive returns the productive clones.
func FilterProductive(clones []*Clone) (result []*Clone) {
	for _, clone := range clones {
		if clone.Productive {
			result = append(result, clone)
		}
	}
	return result
}

// LessByVJBase orders clones by V gene name, J gene name and CDR3
// length, and clones with more V and J mutations first.
func LessByVJBase(clone1, clone2 *Clone) bool {
	if v1, v2 := *clone1.V.GeneName(), *clone2.V.GeneName(); v1 != v2 {
		return v1 < v2
	}
	if j1, j2 := *clone1.J.GeneName(), *clone2.J.GeneName(); j1 != j2 {
		return j1 < j2
	}
	if l1, l2 := len(clone1.CDR3), len(clone2.CDR3); l1 != l2 {
		return l1 < l2
	}
	return clone1.VJMutationsCount() > clone2.VJMutationsCount()
}

// SortByVJBase sorts clones with LessByVJBase.
func SortByVJBase(clones []*Clone) {
	sort.SliceStable(clones, func(i, j int) bool {
		return LessByVJBase(clones[i], clones[j])
	})
}

type stableCloneSorter []*Clone

func (s stableCloneSorter) SequentialSort(i, j int) {
	SortByVJBase(s[i:j])
}

func (s stableCloneSorter) NewTemp() psort.StableSorter {
	return stableCloneSorter(make([]*Clone, len(s)))
}

func (s stableCloneSorter) Len() int {
	return len(s)
}

func (s stableCloneSorter) Less(i, j int) bool {
	return LessByVJBase(s[i], s[j])
}

func (s stableCloneSorter) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := s, source.(stableCloneSorter)
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

// ParallelSortByVJBase sorts clones with LessByVJBase using a parallel
// stable sort.
func ParallelSortByVJBase(clones []*Clone) {
	psort.StableSort(stableCloneSorter(clones))
}
