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

package trees

import (
	"bytes"
	"encoding/xml"
	"log"
	"sort"
	"strings"

	"github.com/exascience/shmtrees/internal"
)

// NewickPrinter renders trees in Newick format. Children are ordered by
// their rendered text, so that equal trees print equally.
type NewickPrinter[T, E any] struct {
	Name              func(node *Node[T, E]) string
	PrintDistances    bool
	PrintOnlyLeafName bool
}

// Print renders a tree, terminated by a semicolon.
func (p NewickPrinter[T, E]) Print(t *Tree[T, E]) string {
	var sb strings.Builder
	p.print(&sb, t, t.Root())
	sb.WriteByte(';')
	return sb.String()
}

func (p NewickPrinter[T, E]) print(sb *strings.Builder, t *Tree[T, E], index int) {
	node := t.Node(index)
	if len(node.children) > 0 {
		rendered := make([]string, 0, len(node.children))
		for _, child := range node.children {
			var csb strings.Builder
			p.print(&csb, t, child)
			if p.PrintDistances {
				csb.WriteByte(':')
				csb.WriteString(internal.FormatFloat(t.Node(child).distance))
			}
			rendered = append(rendered, csb.String())
		}
		sort.Strings(rendered)
		sb.WriteByte('(')
		sb.WriteString(strings.Join(rendered, ","))
		sb.WriteByte(')')
		if p.PrintOnlyLeafName {
			return
		}
	}
	sb.WriteString(p.Name(node))
}

// XMLPrinter renders trees as nested node elements in pre-order.
type XMLPrinter[T, E any] struct {
	Label func(t *Tree[T, E], entry NodeWithParent) string
}

// Print renders a tree.
func (p XMLPrinter[T, E]) Print(t *Tree[T, E]) string {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	var encode func(entry NodeWithParent)
	encode = func(entry NodeWithParent) {
		start := xml.StartElement{
			Name: xml.Name{Local: "node"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "content"}, Value: p.Label(t, entry)}},
		}
		if entry.Parent >= 0 {
			start.Attr = append(start.Attr, xml.Attr{
				Name:  xml.Name{Local: "distance"},
				Value: internal.FormatFloat(entry.Distance),
			})
		}
		if err := enc.EncodeToken(start); err != nil {
			log.Panic(err)
		}
		for _, child := range t.Children(entry.Node) {
			encode(NodeWithParent{Node: child, Parent: entry.Node, Distance: t.Node(child).distance})
		}
		if err := enc.EncodeToken(start.End()); err != nil {
			log.Panic(err)
		}
	}
	encode(NodeWithParent{Node: t.Root(), Parent: -1})
	if err := enc.Flush(); err != nil {
		log.Panic(err)
	}
	return buf.String()
}
