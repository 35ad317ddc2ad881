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

package mutations

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/exascience/shmtrees/internal"
)

// Kind distinguishes substitutions, deletions and insertions.
type Kind uint8

const (
	Substitution Kind = iota
	Deletion
	Insertion
)

// Mutation is a single edit of a sequence. Position is always a
// position in the sequence being mutated (sequence1). An insertion at
// Position p is placed before the letter at p.
type Mutation struct {
	Kind     Kind
	Position int
	From, To byte
}

// NewSubstitution creates a substitution of from by to at position.
func NewSubstitution(position int, from, to byte) Mutation {
	return Mutation{Kind: Substitution, Position: position, From: from, To: to}
}

// NewDeletion creates a deletion of from at position.
func NewDeletion(position int, from byte) Mutation {
	return Mutation{Kind: Deletion, Position: position, From: from}
}

// NewInsertion creates an insertion of to before position.
func NewInsertion(position int, to byte) Mutation {
	return Mutation{Kind: Insertion, Position: position, To: to}
}

// IsInsertion is true for insertions.
func (m Mutation) IsInsertion() bool { return m.Kind == Insertion }

// IsDeletion is true for deletions.
func (m Mutation) IsDeletion() bool { return m.Kind == Deletion }

// IsSubstitution is true for substitutions.
func (m Mutation) IsSubstitution() bool { return m.Kind == Substitution }

// Move returns the mutation shifted by offset.
func (m Mutation) Move(offset int) Mutation {
	m.Position += offset
	return m
}

func (m Mutation) appendTo(buf []byte) []byte {
	switch m.Kind {
	case Substitution:
		buf = append(buf, 'S', m.From)
		buf = strconv.AppendInt(buf, int64(m.Position), 10)
		return append(buf, m.To)
	case Deletion:
		buf = append(buf, 'D', m.From)
		return strconv.AppendInt(buf, int64(m.Position), 10)
	case Insertion:
		buf = append(buf, 'I')
		buf = strconv.AppendInt(buf, int64(m.Position), 10)
		return append(buf, m.To)
	default:
		log.Panicf("invalid mutation kind %v", m.Kind)
		return nil
	}
}

func (m Mutation) String() string {
	return string(m.appendTo(nil))
}

// Mutations is a list of mutations ordered by position. Insertions at
// position p come before the substitution or deletion at p, of which
// there is at most one.
type Mutations []Mutation

// Size returns the number of mutations.
func (mutations Mutations) Size() int {
	return len(mutations)
}

// IsEmpty checks whether there are no mutations.
func (mutations Mutations) IsEmpty() bool {
	return len(mutations) == 0
}

// Equal compares two lists element by element.
func (mutations Mutations) Equal(other Mutations) bool {
	if len(mutations) != len(other) {
		return false
	}
	for i, m := range mutations {
		if m != other[i] {
			return false
		}
	}
	return true
}

// Encode renders mutations as a concatenation of SA12T, DA12 and I12A
// terms.
func (mutations Mutations) Encode() string {
	return internal.BuildString(func(buf []byte) []byte {
		for _, m := range mutations {
			buf = m.appendTo(buf)
		}
		return buf
	})
}

func (mutations Mutations) String() string {
	return "[" + mutations.Encode() + "]"
}

// Decode parses the output of Encode.
func Decode(s string) (Mutations, error) {
	var result Mutations
	parsePosition := func(i int) (int, int, error) {
		j := i
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j == i {
			return 0, i, fmt.Errorf("missing position at offset %v in mutations %v", i, s)
		}
		position, err := strconv.Atoi(s[i:j])
		return position, j, err
	}
	letter := func(i int) (byte, error) {
		if i >= len(s) || !IsValid(s[i]) {
			return 0, fmt.Errorf("missing nucleotide at offset %v in mutations %v", i, s)
		}
		return ToUpper(s[i]), nil
	}
	for i := 0; i < len(s); {
		switch s[i] {
		case 'S':
			from, err := letter(i + 1)
			if err != nil {
				return nil, err
			}
			position, j, err := parsePosition(i + 2)
			if err != nil {
				return nil, err
			}
			to, err := letter(j)
			if err != nil {
				return nil, err
			}
			result = append(result, NewSubstitution(position, from, to))
			i = j + 1
		case 'D':
			from, err := letter(i + 1)
			if err != nil {
				return nil, err
			}
			position, j, err := parsePosition(i + 2)
			if err != nil {
				return nil, err
			}
			result = append(result, NewDeletion(position, from))
			i = j
		case 'I':
			position, j, err := parsePosition(i + 1)
			if err != nil {
				return nil, err
			}
			to, err := letter(j)
			if err != nil {
				return nil, err
			}
			result = append(result, NewInsertion(position, to))
			i = j + 1
		case ' ', ',':
			i++
		default:
			return nil, fmt.Errorf("invalid mutation type %q at offset %v in mutations %v", s[i], i, s)
		}
	}
	if !result.isSorted() {
		return nil, fmt.Errorf("mutations %v are not sorted by position", s)
	}
	return result, nil
}

// MustDecode is Decode with panics in place of errors.
func MustDecode(s string) Mutations {
	result, err := Decode(s)
	if err != nil {
		log.Panic(err)
	}
	return result
}

func (mutations Mutations) isSorted() bool {
	for i := 1; i < len(mutations); i++ {
		prev, next := mutations[i-1], mutations[i]
		if prev.Position > next.Position {
			return false
		}
		if prev.Position == next.Position && !prev.IsInsertion() {
			return false
		}
	}
	return true
}

// Mutate applies the mutations to seq.
func (mutations Mutations) Mutate(seq string) string {
	var sb strings.Builder
	sb.Grow(len(seq) + len(mutations))
	p := 0
	for _, m := range mutations {
		if m.Position < p || m.Position > len(seq) {
			log.Panicf("mutation %v does not apply to sequence of length %v", m, len(seq))
		}
		sb.WriteString(seq[p:m.Position])
		p = m.Position
		switch m.Kind {
		case Substitution:
			sb.WriteByte(m.To)
			p++
		case Deletion:
			p++
		case Insertion:
			sb.WriteByte(m.To)
		}
	}
	sb.WriteString(seq[p:])
	return sb.String()
}

// Move shifts all positions by offset.
func (mutations Mutations) Move(offset int) Mutations {
	if offset == 0 || len(mutations) == 0 {
		return mutations
	}
	result := make(Mutations, len(mutations))
	for i, m := range mutations {
		result[i] = m.Move(offset)
	}
	return result
}

// Concat appends other, whose positions must not precede the last
// position of mutations.
func (mutations Mutations) Concat(other Mutations) Mutations {
	if len(other) == 0 {
		return mutations
	}
	if len(mutations) == 0 {
		return other
	}
	result := make(Mutations, 0, len(mutations)+len(other))
	result = append(append(result, mutations...), other...)
	if internal.PedanticMode && !result.isSorted() {
		log.Panicf("concatenation of unordered mutations %v and %v", mutations, other)
	}
	return result
}

// LengthDelta returns the length of the mutated sequence minus the
// length of the original sequence.
func (mutations Mutations) LengthDelta() (delta int) {
	for _, m := range mutations {
		switch m.Kind {
		case Insertion:
			delta++
		case Deletion:
			delta--
		}
	}
	return
}

// CountInsertionsAt counts the insertions at position.
func (mutations Mutations) CountInsertionsAt(position int) (count int) {
	for _, m := range mutations {
		if m.Position > position {
			break
		}
		if m.Position == position && m.IsInsertion() {
			count++
		}
	}
	return
}

// Invert returns the mutations that turn the mutated sequence back into
// the original one.
func (mutations Mutations) Invert() Mutations {
	if len(mutations) == 0 {
		return mutations
	}
	result := make(Mutations, 0, len(mutations))
	delta := 0
	for _, m := range mutations {
		switch m.Kind {
		case Substitution:
			result = append(result, NewSubstitution(m.Position+delta, m.To, m.From))
		case Deletion:
			result = append(result, NewInsertion(m.Position+delta, m.From))
			delta--
		case Insertion:
			result = append(result, NewDeletion(m.Position+delta, m.To))
			delta++
		}
	}
	return result
}

// ConvertToSeq2Position maps a position in the original sequence to the
// corresponding position in the mutated sequence. If the letter at
// position is deleted, the result is -p-1, where p is the position of
// the next remaining letter in the mutated sequence.
func (mutations Mutations) ConvertToSeq2Position(position int) int {
	result := position
	for _, m := range mutations {
		if m.Position > position {
			break
		}
		switch m.Kind {
		case Deletion:
			if m.Position == position {
				return -result - 1
			}
			result--
		case Insertion:
			result++
		}
	}
	return result
}

// PositionIfNucleotideWasDeleted turns a result of ConvertToSeq2Position
// back into a valid position.
func PositionIfNucleotideWasDeleted(position int) int {
	switch {
	case position < -1:
		return -(position + 1)
	case position == -1:
		return 0
	default:
		return position
	}
}

// ExtractAbsoluteMutations keeps the mutations inside [lower, upper].
// Insertions at lower are kept only if includeFirstInserts is set, and
// insertions at upper only if includeLastInserts is set. Substitutions
// and deletions at upper belong to the next range.
func (mutations Mutations) ExtractAbsoluteMutations(lower, upper int, includeFirstInserts, includeLastInserts bool) Mutations {
	var result Mutations
	for _, m := range mutations {
		switch {
		case m.Position < lower:
			continue
		case m.Position > upper:
			return result
		case m.Position == lower && m.IsInsertion():
			if includeFirstInserts && (lower < upper || includeLastInserts) {
				result = append(result, m)
			}
		case m.Position == upper:
			if m.IsInsertion() && includeLastInserts {
				result = append(result, m)
			}
		default:
			result = append(result, m)
		}
	}
	return result
}
