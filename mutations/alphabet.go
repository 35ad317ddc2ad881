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

// Nucleotide codes are upper-case IUPAC letters. Every code stands for
// a set of basic nucleotides, represented as a 4-bit mask.
const (
	maskA = 1 << iota
	maskC
	maskG
	maskT
)

// N is the code for a completely unknown nucleotide.
const N = byte('N')

var codeToMask, maskToCode = buildAlphabet()

func buildAlphabet() (codeToMask [256]uint8, maskToCode [16]byte) {
	for _, entry := range []struct {
		code byte
		mask uint8
	}{
		{'A', maskA}, {'C', maskC}, {'G', maskG}, {'T', maskT},
		{'R', maskA | maskG}, {'Y', maskC | maskT}, {'S', maskC | maskG},
		{'W', maskA | maskT}, {'K', maskG | maskT}, {'M', maskA | maskC},
		{'B', maskC | maskG | maskT}, {'D', maskA | maskG | maskT},
		{'H', maskA | maskC | maskT}, {'V', maskA | maskC | maskG},
		{'N', maskA | maskC | maskG | maskT},
	} {
		codeToMask[entry.code] = entry.mask
		codeToMask[entry.code+'a'-'A'] = entry.mask
		maskToCode[entry.mask] = entry.code
	}
	return codeToMask, maskToCode
}

// IsValid checks whether code is a nucleotide or wildcard code.
func IsValid(code byte) bool {
	return codeToMask[code] != 0
}

// IsBasic checks whether code is one of A, C, G or T.
func IsBasic(code byte) bool {
	switch code {
	case 'A', 'C', 'G', 'T':
		return true
	default:
		return false
	}
}

// IsWildcard checks whether code stands for more than one nucleotide.
func IsWildcard(code byte) bool {
	return IsValid(code) && !IsBasic(code)
}

// BasicSize returns the number of basic nucleotides code stands for.
func BasicSize(code byte) int {
	m := codeToMask[code]
	return int(m&1 + m>>1&1 + m>>2&1 + m>>3&1)
}

// Matches checks whether the basic nucleotide is covered by code.
func Matches(code, basic byte) bool {
	return codeToMask[code]&codeToMask[basic] != 0
}

// matchesStrictly checks whether the nucleotides of second are all
// covered by the wildcard first.
func matchesStrictly(first, second byte) bool {
	fm, sm := codeToMask[first], codeToMask[second]
	return (fm^sm)&sm == 0
}

// Union returns the code standing for all nucleotides of both codes.
func Union(first, second byte) byte {
	return maskToCode[codeToMask[first]|codeToMask[second]]
}

// ToUpper normalizes a code to upper case.
func ToUpper(code byte) byte {
	if code >= 'a' && code <= 'z' {
		return code - 'a' + 'A'
	}
	return code
}

// UnknownSequence returns a sequence of n unknown nucleotides.
func UnknownSequence(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = N
	}
	return string(buf)
}

func basicCodes(code byte) (result []byte) {
	for _, basic := range []byte("ACGT") {
		if Matches(code, basic) {
			result = append(result, basic)
		}
	}
	return result
}
