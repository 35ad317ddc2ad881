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
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/shmtrees/fasta"
	"github.com/exascience/shmtrees/mutations"
	"github.com/exascience/shmtrees/utils"
)

// Column names of a clone table. Productive is optional and defaults
// to true.
const (
	CloneIDColumn     = "cloneId"
	CountColumn       = "count"
	BestVGeneColumn   = "bestVGene"
	BestJGeneColumn   = "bestJGene"
	VAlignmentsColumn = "vAlignments"
	JAlignmentsColumn = "jAlignments"
	CDR3Column        = "nSeqCDR3"
	ProductiveColumn  = "productive"
)

var requiredColumns = []string{
	CloneIDColumn, CountColumn, BestVGeneColumn, BestJGeneColumn,
	VAlignmentsColumn, JAlignmentsColumn, CDR3Column,
}

type columns struct {
	index      map[string]int
	productive bool
	width      int
}

func parseHeader(header string) (*columns, error) {
	fields := strings.Split(strings.TrimRight(header, "\r\n"), "\t")
	cols := &columns{index: make(map[string]int, len(fields)), width: len(fields)}
	for i, field := range fields {
		cols.index[field] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols.index[name]; !ok {
			return nil, fmt.Errorf("missing column %v in clone table header", name)
		}
	}
	_, cols.productive = cols.index[ProductiveColumn]
	return cols, nil
}

// ParseAlignments parses alignments of the form begin|end|mutations|score,
// separated by semicolons.
func ParseAlignments(s string, gene *fasta.Gene) (result []Alignment, err error) {
	if s == "" || s == "-" {
		return nil, nil
	}
	for _, field := range strings.Split(s, ";") {
		parts := strings.Split(field, "|")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid alignment %v", field)
		}
		var alignment Alignment
		if alignment.Sequence1Range.Start, err = strconv.Atoi(parts[0]); err != nil {
			return nil, fmt.Errorf("invalid alignment begin in %v: %w", field, err)
		}
		if alignment.Sequence1Range.End, err = strconv.Atoi(parts[1]); err != nil {
			return nil, fmt.Errorf("invalid alignment end in %v: %w", field, err)
		}
		if r := alignment.Sequence1Range; r.Start < 0 || r.IsReverse() || r.End > len(gene.Sequence) {
			return nil, fmt.Errorf("alignment range %v outside of gene %v", r, *gene.Name)
		}
		if alignment.Mutations, err = mutations.Decode(parts[2]); err != nil {
			return nil, fmt.Errorf("invalid alignment mutations in %v: %w", field, err)
		}
		if alignment.Score, err = strconv.ParseFloat(parts[3], 64); err != nil {
			return nil, fmt.Errorf("invalid alignment score in %v: %w", field, err)
		}
		result = append(result, alignment)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Sequence1Range.Start < result[j].Sequence1Range.Start
	})
	return result, nil
}

func parseHit(name string, lib *fasta.Library, point fasta.ReferencePoint, alignments string) (hit Hit, err error) {
	gene, ok := lib.Gene(utils.Intern(name))
	if !ok {
		return hit, fmt.Errorf("unknown gene %v", name)
	}
	if _, ok := gene.Position(point); !ok {
		return hit, fmt.Errorf("gene %v has no %v", name, point)
	}
	hit.Gene = gene
	hit.Alignments, err = ParseAlignments(alignments, gene)
	return hit, err
}

func (cols *columns) parseClone(line string, lib *fasta.Library) (*Clone, error) {
	fields := strings.Split(strings.TrimRight(line, "\r"), "\t")
	if len(fields) < cols.width {
		return nil, fmt.Errorf("expected %v columns, got %v", cols.width, len(fields))
	}
	field := func(name string) string {
		return fields[cols.index[name]]
	}
	clone := &Clone{Productive: true}
	var err error
	if clone.ID, err = strconv.Atoi(field(CloneIDColumn)); err != nil {
		return nil, fmt.Errorf("invalid clone id: %w", err)
	}
	if clone.Count, err = strconv.ParseFloat(field(CountColumn), 64); err != nil {
		return nil, fmt.Errorf("invalid count for clone %v: %w", clone.ID, err)
	}
	if clone.V, err = parseHit(field(BestVGeneColumn), lib, fasta.CDR3Begin, field(VAlignmentsColumn)); err != nil {
		return nil, fmt.Errorf("clone %v: %w", clone.ID, err)
	}
	if clone.J, err = parseHit(field(BestJGeneColumn), lib, fasta.CDR3End, field(JAlignmentsColumn)); err != nil {
		return nil, fmt.Errorf("clone %v: %w", clone.ID, err)
	}
	cdr3 := []byte(field(CDR3Column))
	for i, c := range cdr3 {
		if c = mutations.ToUpper(c); !mutations.IsValid(c) {
			return nil, fmt.Errorf("clone %v: invalid nucleotide %q in CDR3", clone.ID, c)
		}
		cdr3[i] = c
	}
	clone.CDR3 = string(cdr3)
	if cols.productive {
		if clone.Productive, err = strconv.ParseBool(field(ProductiveColumn)); err != nil {
			return nil, fmt.Errorf("invalid productive flag for clone %v: %w", clone.ID, err)
		}
	}
	return clone, nil
}

// ParseTable parses a clone table in parallel. The order of the clones
// is the order of the lines.
func ParseTable(r io.Reader, lib *fasta.Library) (clones []*Clone, err error) {
	input := bufio.NewReader(r)
	header, err := input.ReadString('\n')
	if err != nil && (err != io.EOF || header == "") {
		return nil, fmt.Errorf("reading clone table header: %w", err)
	}
	cols, err := parseHeader(header)
	if err != nil {
		return nil, err
	}
	var p pipeline.Pipeline
	p.Source(pipeline.NewScanner(input))
	p.Add(pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
		strs := data.([]string)
		batch := make([]*Clone, 0, len(strs))
		for _, str := range strs {
			if strings.TrimSpace(str) == "" {
				continue
			}
			clone, err := cols.parseClone(str, lib)
			if err != nil {
				p.SetErr(fmt.Errorf("%w, while parsing clone table line %v", err, str))
				return batch
			}
			batch = append(batch, clone)
		}
		return batch
	})))
	p.Add(pipeline.Ord(pipeline.Receive(func(_ int, data interface{}) interface{} {
		clones = append(clones, data.([]*Clone)...)
		return data
	})))
	p.Run()
	if err = p.Err(); err != nil {
		return nil, err
	}
	return clones, nil
}

// ParseTableFile parses the clone table in the given file.
func ParseTableFile(filename string, lib *fasta.Library) (clones []*Clone, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening clone table: %w", err)
	}
	defer func() {
		if nerr := file.Close(); err == nil && nerr != nil {
			err = nerr
		}
	}()
	if clones, err = ParseTable(file, lib); err != nil {
		return nil, fmt.Errorf("clone table %v: %w", filename, err)
	}
	return clones, nil
}
