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

package fasta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/exascience/shmtrees/utils"
)

const germline = `>IGHV1 CDR3Begin=6 extra
ACGTAC
gtnn

>IGHJ1	CDR3End=3
TGGGGC
`

func TestParseFasta(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "germline.fasta")
	if err := os.WriteFile(filename, []byte(germline), 0o644); err != nil {
		t.Fatal(err)
	}
	lib, err := ParseFasta(filename)
	if err != nil {
		t.Fatal(err)
	}
	if lib.Len() != 2 {
		t.Fatalf("expected 2 genes, got %v", lib.Names())
	}
	v, ok := lib.Gene(utils.Intern("IGHV1"))
	if !ok {
		t.Fatal("IGHV1 missing")
	}
	if v.Sequence != "ACGTACGTNN" {
		t.Errorf("unexpected sequence %v", v.Sequence)
	}
	if p, ok := v.Position(CDR3Begin); !ok || p != 6 {
		t.Errorf("unexpected CDR3Begin %v %v", p, ok)
	}
	if _, ok := v.Position(CDR3End); ok {
		t.Error("unexpected CDR3End for a V gene")
	}
	j, _ := lib.Gene(utils.Intern("IGHJ1"))
	if p, ok := j.Position(CDR3End); !ok || p != 3 {
		t.Errorf("unexpected CDR3End %v %v", p, ok)
	}
}

func TestParseErrors(t *testing.T) {
	for _, data := range []string{
		"",
		"ACGT\n",
		">V CDR3Begin=x\nACGT\n",
		">V CDR3Begin=10\nACGT\n",
		">V\nACXT\n",
		">V\nACGT\n>V\nACGT\n",
	} {
		if _, err := Parse([]byte(data)); err == nil {
			t.Errorf("expected an error for %q", data)
		}
	}
	if _, err := ParseFasta(filepath.Join(t.TempDir(), "missing.fasta")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestReferencePointByName(t *testing.T) {
	for _, p := range []ReferencePoint{CDR3Begin, CDR3End} {
		if q, ok := ReferencePointByName(p.String()); !ok || q != p {
			t.Errorf("lookup of %v failed", p)
		}
	}
	if _, ok := ReferencePointByName("FR4End"); ok {
		t.Error("unexpected reference point FR4End")
	}
}
