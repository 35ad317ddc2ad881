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
	"strings"
)

// AncestorInfo is the full sequence of a node, with the position of
// its CDR3.
type AncestorInfo struct {
	Sequence           string
	CDR3Begin, CDR3End int
}

// CDR3 returns the CDR3 part of the sequence.
func (info AncestorInfo) CDR3() string {
	return info.Sequence[info.CDR3Begin:info.CDR3End]
}

// AncestorInfoBuilder builds sequences of tree nodes.
type AncestorInfoBuilder struct{}

// BuildAncestorInfo concatenates the built fragments of a description.
func (AncestorInfoBuilder) BuildAncestorInfo(d MutationsDescription) (info AncestorInfo) {
	var sb strings.Builder
	for _, fragment := range d.VMutationsWithoutCDR3 {
		sb.WriteString(fragment.BuildSequence())
	}
	info.CDR3Begin = sb.Len()
	sb.WriteString(d.CDR3())
	info.CDR3End = sb.Len()
	for _, fragment := range d.JMutationsWithoutCDR3 {
		sb.WriteString(fragment.BuildSequence())
	}
	info.Sequence = sb.String()
	return info
}
