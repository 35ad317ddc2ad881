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
	"github.com/exascience/shmtrees/intervals"
)

// AffineGapScoring scores alignments with a substitution matrix over
// nucleotide codes, and gaps of length k with GapOpen + (k-1)*GapExtend.
type AffineGapScoring struct {
	matrix             [16][16]int32
	GapOpen, GapExtend int32
}

// newSubstitutionMatrix fills in scores for basic nucleotides, and
// derives scores for wildcards by averaging over the nucleotides they
// stand for. The nucleotides of the second code weigh asymmetry times
// more than those of the first code.
func newSubstitutionMatrix(match, mismatch, asymmetry int32) (matrix [16][16]int32) {
	for from := 1; from < 16; from++ {
		for to := 1; to < 16; to++ {
			fromCode, toCode := maskToCode[from], maskToCode[to]
			if IsBasic(fromCode) && IsBasic(toCode) {
				if from == to {
					matrix[from][to] = match
				} else {
					matrix[from][to] = mismatch
				}
				continue
			}
			var sum int32
			for _, basic := range basicCodes(toCode) {
				if Matches(fromCode, basic) {
					sum += match
				} else {
					sum += mismatch
				}
			}
			for _, basic := range basicCodes(fromCode) {
				if Matches(toCode, basic) {
					sum += match * asymmetry
				} else {
					sum += mismatch * asymmetry
				}
			}
			matrix[from][to] = sum / (int32(BasicSize(toCode)) + int32(BasicSize(fromCode))*asymmetry)
		}
	}
	return matrix
}

var (
	nucleotideBLASTScoring = &AffineGapScoring{
		matrix:    newSubstitutionMatrix(5, -4, 1),
		GapOpen:   -10,
		GapExtend: -1,
	}
	linearNucleotideBLASTScoring = &AffineGapScoring{
		matrix:    newSubstitutionMatrix(5, -4, 1),
		GapOpen:   -14,
		GapExtend: -14,
	}
	ndnScoring = &AffineGapScoring{
		matrix:    newSubstitutionMatrix(5, -4, 4),
		GapOpen:   -10,
		GapExtend: -1,
	}
)

// NucleotideBLASTScoring is the default scoring for V and J genes.
func NucleotideBLASTScoring() *AffineGapScoring { return nucleotideBLASTScoring }

// LinearNucleotideBLASTScoring scores every gap letter with -14.
func LinearNucleotideBLASTScoring() *AffineGapScoring { return linearNucleotideBLASTScoring }

// NDNScoring makes a known letter aligned against an unknown one score
// better than the reverse, so that alignments of reconstructed NDN
// segments prefer to keep known letters.
func NDNScoring() *AffineGapScoring { return ndnScoring }

// Score returns the score of aligning from (sequence1) against to.
func (scoring *AffineGapScoring) Score(from, to byte) int32 {
	return scoring.matrix[codeToMask[from]][codeToMask[to]]
}

// MaxScore is the score of seq aligned against itself.
func (scoring *AffineGapScoring) MaxScore(seq string) (score int) {
	for i := 0; i < len(seq); i++ {
		score += int(scoring.Score(seq[i], seq[i]))
	}
	return score
}

// CalculateScore scores the alignment of range r of sequence1 against
// its mutated version. Only mutations inside r are taken into account.
func (scoring *AffineGapScoring) CalculateScore(sequence1 string, r intervals.Interval, mutations Mutations) (score int) {
	p := r.Start
	last := Mutation{Kind: Substitution, Position: -2}
	for _, m := range mutations {
		if m.Position < r.Start || m.Position > r.End || (m.Position == r.End && !m.IsInsertion()) {
			continue
		}
		for ; p < m.Position; p++ {
			score += int(scoring.Score(sequence1[p], sequence1[p]))
		}
		switch m.Kind {
		case Substitution:
			score += int(scoring.Score(m.From, m.To))
			p++
		case Deletion:
			if last.IsDeletion() && last.Position == m.Position-1 {
				score += int(scoring.GapExtend)
			} else {
				score += int(scoring.GapOpen)
			}
			p++
		case Insertion:
			if last.IsInsertion() && last.Position == m.Position {
				score += int(scoring.GapExtend)
			} else {
				score += int(scoring.GapOpen)
			}
		}
		last = m
	}
	for ; p < r.End; p++ {
		score += int(scoring.Score(sequence1[p], sequence1[p]))
	}
	return score
}
