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

package clones

import (
	"strings"
	"testing"

	"github.com/exascience/shmtrees/fasta"
)

func testLibrary() *fasta.Library {
	v := fasta.NewGene("V1", "ACGTACGTAC")
	v.SetPosition(fasta.CDR3Begin, 6)
	w := fasta.NewGene("V2", "ACGTACGTAC")
	w.SetPosition(fasta.CDR3Begin, 6)
	j := fasta.NewGene("J1", "TTGGCCAA")
	j.SetPosition(fasta.CDR3End, 3)
	return fasta.NewLibrary(v, w, j)
}

const table = "cloneId\tcount\tbestVGene\tbestJGene\tvAlignments\tjAlignments\tnSeqCDR3\tproductive\n" +
	"1\t10\tV1\tJ1\t0|10|SA0T|40\t0|8||40\tgtacgggttg\ttrue\n" +
	"2\t5\tV2\tJ1\t5|10||25;0|4|SG2A|11\t0|8|SC4G|35\tGTACGGGTTG\tfalse\n" +
	"3\t7\tV1\tJ1\t0|10|SA0TSC1G|40\t-\tGTACGGGTTG\ttrue\n"

func TestParseTable(t *testing.T) {
	clones, err := ParseTable(strings.NewReader(table), testLibrary())
	if err != nil {
		t.Fatal(err)
	}
	if len(clones) != 3 {
		t.Fatalf("expected 3 clones, got %v", len(clones))
	}
	first := clones[0]
	if first.ID != 1 || first.Count != 10 || first.CDR3 != "GTACGGGTTG" || !first.Productive {
		t.Errorf("unexpected first clone %+v", first)
	}
	if *first.V.GeneName() != "V1" || *first.J.GeneName() != "J1" {
		t.Errorf("unexpected genes %v %v", *first.V.GeneName(), *first.J.GeneName())
	}
	second := clones[1]
	if len(second.V.Alignments) != 2 || second.V.Alignments[0].Sequence1Range.Start != 0 {
		t.Errorf("alignments are not sorted: %+v", second.V.Alignments)
	}
	if second.VJMutationsCount() != 2 {
		t.Errorf("expected 2 mutations, got %v", second.VJMutationsCount())
	}
	if len(clones[2].J.Alignments) != 0 {
		t.Error("expected no J alignments")
	}
	if productive := FilterProductive(clones); len(productive) != 2 {
		t.Errorf("expected 2 productive clones, got %v", len(productive))
	}
}

func TestParseTableErrors(t *testing.T) {
	header := "cloneId\tcount\tbestVGene\tbestJGene\tvAlignments\tjAlignments\tnSeqCDR3\n"
	for _, input := range []string{
		"",
		"cloneId\tcount\n1\t2\n",
		header + "1\t10\tV9\tJ1\t\t\tACGT\n",
		header + "1\t10\tJ1\tJ1\t\t\tACGT\n",
		header + "1\t10\tV1\tJ1\t0|20||1\t\tACGT\n",
		header + "1\t10\tV1\tJ1\t0|4|SX0T|1\t\tACGT\n",
		header + "1\t10\tV1\tJ1\t\t\tACXT\n",
		header + "x\t10\tV1\tJ1\t\t\tACGT\n",
	} {
		if _, err := ParseTable(strings.NewReader(input), testLibrary()); err == nil {
			t.Errorf("expected an error for %q", input)
		}
	}
}

func TestSortByVJBase(t *testing.T) {
	clones, err := ParseTable(strings.NewReader(table), testLibrary())
	if err != nil {
		t.Fatal(err)
	}
	ParallelSortByVJBase(clones)
	var ids []int
	for _, clone := range clones {
		ids = append(ids, clone.ID)
	}
	// V1 before V2, and more mutated clones first
	if ids[0] != 3 || ids[1] != 1 || ids[2] != 2 {
		t.Errorf("unexpected order %v", ids)
	}
}
