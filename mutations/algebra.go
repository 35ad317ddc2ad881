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

// CombineWith composes two edits: mutations turns sequence1 into
// sequence2, next turns sequence2 into sequence3, and the result turns
// sequence1 into sequence3. Positions of next are sequence2 positions.
func (mutations Mutations) CombineWith(next Mutations) Mutations {
	if len(next) == 0 {
		return mutations
	}
	if len(mutations) == 0 {
		return next
	}
	var result Mutations
	// i walks sequence1, j walks sequence2, k walks next
	i, j, k := 0, 0, 0
	emitBefore := func(limit int) {
		for ; k < len(next) && next[k].Position < limit; k++ {
			result = append(result, next[k].Move(i-j))
		}
	}
	emitInsertionsAt := func(position int) {
		for ; k < len(next) && next[k].Position == j && next[k].IsInsertion(); k++ {
			result = append(result, NewInsertion(position, next[k].To))
		}
	}
	for _, m := range mutations {
		stretchEnd := j + m.Position - i
		emitBefore(stretchEnd)
		i, j = m.Position, stretchEnd
		switch m.Kind {
		case Insertion:
			emitInsertionsAt(i)
			if k < len(next) && next[k].Position == j {
				if n := next[k]; n.IsSubstitution() {
					result = append(result, NewInsertion(i, n.To))
				}
				k++
			} else {
				result = append(result, m)
			}
			j++
		case Deletion:
			// a letter deleted and inserted again is kept
			match := -1
			for q := k; q < len(next) && next[q].Position == j && next[q].IsInsertion(); q++ {
				if next[q].To == m.From {
					match = q
					break
				}
			}
			if match < 0 {
				result = append(result, m)
			} else {
				for ; k < match; k++ {
					result = append(result, NewInsertion(i, next[k].To))
				}
				k++
			}
			i++
		case Substitution:
			emitInsertionsAt(i)
			if k < len(next) && next[k].Position == j {
				switch n := next[k]; n.Kind {
				case Substitution:
					if n.To != m.From {
						result = append(result, NewSubstitution(i, m.From, n.To))
					}
				case Deletion:
					result = append(result, NewDeletion(i, m.From))
				}
				k++
			} else {
				result = append(result, m)
			}
			i++
			j++
		}
	}
	for ; k < len(next); k++ {
		result = append(result, next[k].Move(i-j))
	}
	return result
}

// Difference returns the mutations that turn from.Mutate(seq) into
// to.Mutate(seq), in coordinates of from.Mutate(seq).
func Difference(from, to Mutations) Mutations {
	return from.Invert().CombineWith(to)
}

// group is the set of mutations at one position: a run of insertions
// followed by at most one substitution or deletion.
type group struct {
	position  int
	inserted  []byte
	rest      Mutation
	hasRest   bool
	remaining Mutations
}

func nextGroup(mutations Mutations) (g group) {
	g.position = mutations[0].Position
	k := 0
	for ; k < len(mutations) && mutations[k].Position == g.position && mutations[k].IsInsertion(); k++ {
		g.inserted = append(g.inserted, mutations[k].To)
	}
	if k < len(mutations) && mutations[k].Position == g.position {
		g.rest, g.hasRest = mutations[k], true
		k++
	}
	g.remaining = mutations[k:]
	return g
}

// Intersection returns the mutations both sets have in common. Letters
// inserted at the same position are aligned against each other, and
// unchanged ones are common. A substitution of an unknown nucleotide on
// both sides is common with the union of both results as target, and
// an inserted letter aligned against an unknown nucleotide is common as
// an insertion of N.
func Intersection(first, second Mutations) (result Mutations) {
	for len(first) > 0 && len(second) > 0 {
		switch {
		case first[0].Position < second[0].Position:
			first = nextGroup(first).remaining
		case second[0].Position < first[0].Position:
			second = nextGroup(second).remaining
		default:
			g1, g2 := nextGroup(first), nextGroup(second)
			first, second = g1.remaining, g2.remaining
			result = append(result, intersectInsertions(g1.position, g1.inserted, g2.inserted)...)
			if g1.hasRest && g2.hasRest {
				if m, ok := intersectMutation(g1.rest, g2.rest); ok {
					result = append(result, m)
				}
			}
		}
	}
	return result
}

// IntersectionCount is len(Intersection(first, second)).
func IntersectionCount(first, second Mutations) int {
	return len(Intersection(first, second))
}

func intersectInsertions(position int, inserted1, inserted2 []byte) (result Mutations) {
	if len(inserted1) == 0 || len(inserted2) == 0 {
		return nil
	}
	if string(inserted1) == string(inserted2) {
		for _, letter := range inserted1 {
			result = append(result, NewInsertion(position, letter))
		}
		return result
	}
	alignment := AlignGlobal(LinearNucleotideBLASTScoring(), string(inserted1), string(inserted2), 0, len(inserted1), 0, len(inserted2))
	a := 0
	for q, letter := range inserted1 {
		for a < len(alignment) && alignment[a].Position < q {
			a++
		}
		for a < len(alignment) && alignment[a].Position == q && alignment[a].IsInsertion() {
			a++
		}
		if a < len(alignment) && alignment[a].Position == q {
			m := alignment[a]
			if m.IsSubstitution() && (m.From == N || m.To == N) {
				result = append(result, NewInsertion(position, N))
			}
			continue
		}
		result = append(result, NewInsertion(position, letter))
	}
	return result
}

func intersectMutation(m1, m2 Mutation) (Mutation, bool) {
	if m1 == m2 {
		return m1, true
	}
	if m1.IsSubstitution() && m2.IsSubstitution() && m1.From == N && m2.From == N {
		if union := Union(m1.To, m2.To); union != N {
			return NewSubstitution(m1.Position, N, union), true
		}
	}
	return Mutation{}, false
}

// Without returns the mutations of first that do not occur in second.
func Without(first, second Mutations) (result Mutations) {
	occurrences := make(map[Mutation]int, len(second))
	for _, m := range second {
		occurrences[m]++
	}
	for _, m := range first {
		if occurrences[m] > 0 {
			occurrences[m]--
			continue
		}
		result = append(result, m)
	}
	return result
}

// FindNDNCommonAncestor computes the most probable common ancestor of
// two edits of the same NDN. Where both substitute a letter by
// different codes, the ancestor keeps a code that covers both.
func FindNDNCommonAncestor(first, second Mutations) (result Mutations) {
	byPosition := make(map[int]Mutations, len(first))
	for _, m := range first {
		byPosition[m.Position] = append(byPosition[m.Position], m)
	}
	for _, m := range second {
		candidates := byPosition[m.Position]
		found := -1
		for c, candidate := range candidates {
			if candidate == m {
				found = c
				break
			}
		}
		if found >= 0 {
			result = append(result, m)
			byPosition[m.Position] = append(candidates[:found:found], candidates[found+1:]...)
			continue
		}
		if !m.IsSubstitution() {
			continue
		}
		for _, candidate := range candidates {
			if candidate.IsSubstitution() {
				if to := combine(m.To, candidate.To); to != m.From {
					result = append(result, NewSubstitution(m.Position, m.From, to))
				}
				break
			}
		}
	}
	return result
}

func combine(first, second byte) byte {
	switch {
	case first == second:
		return first
	case IsWildcard(first) && matchesStrictly(first, second):
		return second
	case IsWildcard(second) && matchesStrictly(second, first):
		return first
	default:
		return Union(first, second)
	}
}

// ConcreteNDNChild recalculates the NDN edit of a child after its
// parent changed. A child wildcard that covers the parent letter
// resolves to the parent letter, so that no mutation is needed between
// the two; any other child wildcard widens to include the parent letter.
func ConcreteNDNChild(parent, child Mutations) (result Mutations) {
	parentSubstitutions := make(map[int]Mutation, len(parent))
	for _, m := range parent {
		if m.IsSubstitution() {
			parentSubstitutions[m.Position] = m
		}
	}
	for _, m := range child {
		p, ok := parentSubstitutions[m.Position]
		if !ok || !m.IsSubstitution() {
			result = append(result, m)
			continue
		}
		if to := concreteChild(p.To, m.To); to != m.From {
			result = append(result, NewSubstitution(m.Position, m.From, to))
		}
	}
	return result
}

func concreteChild(parent, child byte) byte {
	switch {
	case parent == child:
		return child
	case IsWildcard(child):
		if matchesStrictly(child, parent) {
			return parent
		}
		return Union(parent, child)
	default:
		return child
	}
}

// ProjectRange maps a range of the original sequence to the range of
// the mutated sequence. Insertions at the lower boundary are part of
// the projected range.
func ProjectRange(mutations Mutations, r intervals.Interval) intervals.Interval {
	from := PositionIfNucleotideWasDeleted(mutations.ConvertToSeq2Position(r.Start)) - mutations.CountInsertionsAt(r.Start)
	to := PositionIfNucleotideWasDeleted(mutations.ConvertToSeq2Position(r.End))
	return intervals.Interval{Start: from, End: to}
}

// BuildSequence mutates sequence1 and returns the part that corresponds
// to range r of sequence1.
func BuildSequence(sequence1 string, mutations Mutations, r intervals.Interval) string {
	projected := ProjectRange(mutations, r)
	return mutations.Mutate(sequence1)[projected.Start:projected.End]
}
