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
	"math"
	"sync"
)

type int32Matrix struct {
	cols  int
	array []int32
}

func (m *int32Matrix) ensureSize(rows, cols int) {
	m.cols = cols
	totalSize := rows * cols
	if totalSize <= cap(m.array) {
		m.array = m.array[:totalSize]
	} else {
		m.array = make([]int32, totalSize)
	}
}

func (m *int32Matrix) at(row, col int) int32 {
	return m.array[row*m.cols+col]
}

func (m *int32Matrix) setAt(row, col int, value int32) {
	m.array[row*m.cols+col] = value
}

type globalAlignmentMatrices struct {
	best, insertion, deletion int32Matrix
}

var globalAlignmentMatricesPool = sync.Pool{New: func() interface{} { return &globalAlignmentMatrices{} }}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

/*
AlignGlobal aligns seq1[from1:from1+length1] against
seq2[from2:from2+length2] end to end with affine gap penalties
(Gotoh). The result are the mutations that turn the seq1 range into
the seq2 range, with positions in seq1 coordinates.

Empty ranges produce a single gap, or no mutations if both are empty.
*/
func AlignGlobal(scoring *AffineGapScoring, seq1, seq2 string, from1, length1, from2, length2 int) Mutations {
	if length1 < 0 || length2 < 0 {
		return nil
	}
	a := seq1[from1 : from1+length1]
	b := seq2[from2 : from2+length2]

	m := globalAlignmentMatricesPool.Get().(*globalAlignmentMatrices)
	defer globalAlignmentMatricesPool.Put(m)

	rows, cols := length1+1, length2+1
	m.best.ensureSize(rows, cols)
	m.insertion.ensureSize(rows, cols)
	m.deletion.ensureSize(rows, cols)

	const lowInitValue = math.MinInt32 / 2
	open, extend := scoring.GapOpen, scoring.GapExtend

	m.best.setAt(0, 0, 0)
	m.insertion.setAt(0, 0, lowInitValue)
	m.deletion.setAt(0, 0, lowInitValue)
	for j := 1; j < cols; j++ {
		gap := open + int32(j-1)*extend
		m.best.setAt(0, j, gap)
		m.insertion.setAt(0, j, gap)
		m.deletion.setAt(0, j, lowInitValue)
	}
	for i := 1; i < rows; i++ {
		gap := open + int32(i-1)*extend
		m.best.setAt(i, 0, gap)
		m.deletion.setAt(i, 0, gap)
		m.insertion.setAt(i, 0, lowInitValue)
	}

	for i := 1; i < rows; i++ {
		for j := 1; j < cols; j++ {
			insertion := max32(m.best.at(i, j-1)+open, m.insertion.at(i, j-1)+extend)
			deletion := max32(m.best.at(i-1, j)+open, m.deletion.at(i-1, j)+extend)
			diagonal := m.best.at(i-1, j-1) + scoring.Score(a[i-1], b[j-1])
			m.insertion.setAt(i, j, insertion)
			m.deletion.setAt(i, j, deletion)
			m.best.setAt(i, j, max32(diagonal, max32(insertion, deletion)))
		}
	}

	var reversed Mutations
	const (
		inBest = iota
		inInsertion
		inDeletion
	)
	state := inBest
	for i, j := length1, length2; i > 0 || j > 0; {
		switch state {
		case inBest:
			switch {
			case i > 0 && j > 0 && m.best.at(i, j) == m.best.at(i-1, j-1)+scoring.Score(a[i-1], b[j-1]):
				if a[i-1] != b[j-1] {
					reversed = append(reversed, NewSubstitution(from1+i-1, a[i-1], b[j-1]))
				}
				i--
				j--
			case i > 0 && m.best.at(i, j) == m.deletion.at(i, j):
				state = inDeletion
			default:
				state = inInsertion
			}
		case inDeletion:
			reversed = append(reversed, NewDeletion(from1+i-1, a[i-1]))
			if m.deletion.at(i, j) == m.best.at(i-1, j)+open {
				state = inBest
			}
			i--
		case inInsertion:
			reversed = append(reversed, NewInsertion(from1+i, b[j-1]))
			if m.insertion.at(i, j) == m.best.at(i, j-1)+open {
				state = inBest
			}
			j--
		}
	}

	result := make(Mutations, len(reversed))
	for k, mutation := range reversed {
		result[len(reversed)-1-k] = mutation
	}
	return result
}
