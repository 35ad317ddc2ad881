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

// Package fasta reads germline gene libraries from FASTA files.
package fasta

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/exascience/shmtrees/mutations"
	"github.com/exascience/shmtrees/utils"
)

// ReferencePoint names a position on a germline gene.
type ReferencePoint int

// Supported reference points.
const (
	CDR3Begin ReferencePoint = iota
	CDR3End
	nofReferencePoints
)

var referencePointNames = [nofReferencePoints]string{"CDR3Begin", "CDR3End"}

func (p ReferencePoint) String() string {
	if p >= 0 && p < nofReferencePoints {
		return referencePointNames[p]
	}
	return "ReferencePoint(" + strconv.Itoa(int(p)) + ")"
}

var (
	referencePointTableOnce sync.Once
	referencePointTable     map[string]ReferencePoint
)

// ReferencePointByName looks up a reference point by its name.
func ReferencePointByName(name string) (ReferencePoint, bool) {
	referencePointTableOnce.Do(func() {
		referencePointTable = make(map[string]ReferencePoint, nofReferencePoints)
		for p, name := range referencePointNames {
			referencePointTable[name] = ReferencePoint(p)
		}
	})
	p, ok := referencePointTable[name]
	return p, ok
}

// Gene is a germline gene with its reference points.
type Gene struct {
	Name     utils.Symbol
	Sequence string
	points   [nofReferencePoints]int
}

// NewGene returns a gene without reference points.
func NewGene(name, sequence string) *Gene {
	gene := &Gene{Name: utils.Intern(name), Sequence: sequence}
	for i := range gene.points {
		gene.points[i] = -1
	}
	return gene
}

// Position returns the position of a reference point in the gene.
func (gene *Gene) Position(p ReferencePoint) (int, bool) {
	position := gene.points[p]
	return position, position >= 0
}

// SetPosition sets the position of a reference point in the gene.
func (gene *Gene) SetPosition(p ReferencePoint, position int) {
	gene.points[p] = position
}

// Library maps gene names to genes.
type Library struct {
	genes map[utils.Symbol]*Gene
}

// NewLibrary returns a library for the given genes.
func NewLibrary(genes ...*Gene) *Library {
	lib := &Library{genes: make(map[utils.Symbol]*Gene, len(genes))}
	for _, gene := range genes {
		lib.genes[gene.Name] = gene
	}
	return lib
}

// Gene returns the gene with the given name.
func (lib *Library) Gene(name utils.Symbol) (*Gene, bool) {
	gene, ok := lib.genes[name]
	return gene, ok
}

// Len returns the number of genes in the library.
func (lib *Library) Len() int {
	return len(lib.genes)
}

// Names returns the sorted gene names of the library.
func (lib *Library) Names() []string {
	names := make([]string, 0, len(lib.genes))
	for name := range lib.genes {
		names = append(names, *name)
	}
	sort.Strings(names)
	return names
}

func isPrint(c byte) bool {
	return c >= '!' && c <= '~'
}

func fieldsFromHeader(b []byte) (fields [][]byte) {
	i := 1
	for {
		for ; i < len(b) && !isPrint(b[i]); i++ {
		}
		if i == len(b) {
			return fields
		}
		j := i + 1
		for ; j < len(b) && isPrint(b[j]); j++ {
		}
		fields = append(fields, b[i:j])
		i = j
	}
}

func geneFromHeader(b []byte) (*Gene, error) {
	fields := fieldsFromHeader(b)
	if len(fields) == 0 {
		return nil, fmt.Errorf("header without gene name")
	}
	gene := NewGene(string(fields[0]), "")
	for _, field := range fields[1:] {
		i := bytes.IndexByte(field, '=')
		if i < 0 {
			continue
		}
		p, ok := ReferencePointByName(string(field[:i]))
		if !ok {
			continue
		}
		position, err := strconv.Atoi(string(field[i+1:]))
		if err != nil || position < 0 {
			return nil, fmt.Errorf("invalid position for %v in header of %v: %q", p, *gene.Name, field[i+1:])
		}
		gene.SetPosition(p, position)
	}
	return gene, nil
}

// Parse parses FASTA formatted data into a library. Sequences are
// converted to upper case, and all IUPAC codes are accepted.
func Parse(data []byte) (*Library, error) {
	lib := NewLibrary()
	var (
		gene *Gene
		seq  []byte
	)
	finish := func() error {
		if gene == nil {
			return nil
		}
		gene.Sequence = string(seq)
		for p, position := range gene.points {
			if position > len(gene.Sequence) {
				return fmt.Errorf("%v of %v is beyond the end of the sequence", ReferencePoint(p), *gene.Name)
			}
		}
		if _, ok := lib.genes[gene.Name]; ok {
			return fmt.Errorf("duplicate gene %v", *gene.Name)
		}
		lib.genes[gene.Name] = gene
		return nil
	}
	for lineNumber := 1; len(data) > 0; lineNumber++ {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		line = bytes.TrimRight(line, "\r \t")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if err := finish(); err != nil {
				return nil, err
			}
			var err error
			if gene, err = geneFromHeader(line); err != nil {
				return nil, fmt.Errorf("line %v: %w", lineNumber, err)
			}
			seq = nil
			continue
		}
		if gene == nil {
			return nil, fmt.Errorf("line %v: missing first header", lineNumber)
		}
		for _, c := range line {
			c = mutations.ToUpper(c)
			if !mutations.IsValid(c) {
				return nil, fmt.Errorf("line %v: invalid nucleotide %q", lineNumber, c)
			}
			seq = append(seq, c)
		}
	}
	if err := finish(); err != nil {
		return nil, err
	}
	if lib.Len() == 0 {
		return nil, fmt.Errorf("no genes")
	}
	return lib, nil
}

// ParseFasta memory-maps a FASTA file and parses it into a library.
func ParseFasta(filename string) (lib *Library, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening germline library: %w", err)
	}
	defer func() {
		if nerr := file.Close(); err == nil && nerr != nil {
			err = fmt.Errorf("closing germline library %v: %w", filename, nerr)
		}
	}()
	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("germline library %v: %w", filename, err)
	}
	if stat.Size() == 0 {
		return nil, fmt.Errorf("empty germline library %v", filename)
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mapping germline library %v: %w", filename, err)
	}
	defer func() {
		if nerr := unix.Munmap(data); err == nil && nerr != nil {
			err = fmt.Errorf("unmapping germline library %v: %w", filename, nerr)
		}
	}()
	if lib, err = Parse(data); err != nil {
		return nil, fmt.Errorf("germline library %v: %w", filename, err)
	}
	return lib, nil
}
