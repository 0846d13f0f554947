package syntax

import (
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Edit replaces source bytes [Start, End) with Text. Start == End is an insertion.
type Edit struct {
	Start int
	End   int
	Text  string

	seq int
}

// Document is one parsed source file plus the edits recorded against it.
// The tree is read-only; rewrites are expressed as edits over the original
// bytes and materialized by Generate.
type Document struct {
	Path    string
	Dialect Dialect

	source []byte
	tree   *sitter.Tree
	edits  []Edit
}

// Root returns the program node.
func (d *Document) Root() *sitter.Node {
	return d.tree.RootNode()
}

// Source returns the original text.
func (d *Document) Source() string {
	return string(d.source)
}

// Text returns the original text covered by n.
func (d *Document) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(d.source)
}

// Walk visits every node in source order. Returning false skips children.
func (d *Document) Walk(fn func(n *sitter.Node) bool) {
	walk(d.Root(), fn)
}

// FindAll returns every node whose type is one of types, in source order.
func (d *Document) FindAll(types ...string) []*sitter.Node {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []*sitter.Node
	d.Walk(func(n *sitter.Node) bool {
		if want[n.Type()] {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Ancestor returns the nearest ancestor of n with one of the given types.
func Ancestor(n *sitter.Node, types ...string) *sitter.Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		for _, t := range types {
			if p.Type() == t {
				return p
			}
		}
	}
	return nil
}

// Replace records a replacement of n's text.
func (d *Document) Replace(n *sitter.Node, text string) {
	d.ReplaceRange(int(n.StartByte()), int(n.EndByte()), text)
}

// ReplaceRange records a replacement of source bytes [start, end).
func (d *Document) ReplaceRange(start, end int, text string) {
	d.edits = append(d.edits, Edit{Start: start, End: end, Text: text, seq: len(d.edits)})
}

// InsertBefore records an insertion immediately before n.
func (d *Document) InsertBefore(n *sitter.Node, text string) {
	d.InsertAt(int(n.StartByte()), text)
}

// InsertAfter records an insertion immediately after n.
func (d *Document) InsertAfter(n *sitter.Node, text string) {
	d.InsertAt(int(n.EndByte()), text)
}

// InsertAt records an insertion at a byte offset.
func (d *Document) InsertAt(offset int, text string) {
	d.ReplaceRange(offset, offset, text)
}

// Remove records the deletion of n's text.
func (d *Document) Remove(n *sitter.Node) {
	d.Replace(n, "")
}

// Edits returns a copy of the recorded edits in recording order.
func (d *Document) Edits() []Edit {
	return append([]Edit(nil), d.edits...)
}

// EditCount is the number of structural edits recorded so far.
func (d *Document) EditCount() int {
	return len(d.edits)
}

// Generate applies the recorded edits to the original text. With no edits the
// original text is returned unchanged. Edits must lie inside the source and
// must not overlap; insertions at the same offset are emitted in recording
// order, ahead of a replacement starting at that offset.
func (d *Document) Generate() (string, error) {
	if len(d.edits) == 0 {
		return string(d.source), nil
	}

	edits := d.Edits()
	sort.SliceStable(edits, func(i, j int) bool {
		a, b := edits[i], edits[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		aIns, bIns := a.Start == a.End, b.Start == b.End
		if aIns != bIns {
			return aIns
		}
		return a.seq < b.seq
	})

	var sb strings.Builder
	sb.Grow(len(d.source))
	last := 0
	for _, e := range edits {
		if e.Start < 0 || e.End > len(d.source) || e.Start > e.End {
			return "", fmt.Errorf("edit [%d,%d) outside source of %d bytes", e.Start, e.End, len(d.source))
		}
		if e.Start < last {
			return "", fmt.Errorf("edit [%d,%d) overlaps a previous edit ending at %d", e.Start, e.End, last)
		}
		sb.Write(d.source[last:e.Start])
		sb.WriteString(e.Text)
		last = e.End
	}
	sb.Write(d.source[last:])
	return sb.String(), nil
}

// Close releases the tree. The document must not be used afterwards.
func (d *Document) Close() {
	if d.tree != nil {
		d.tree.Close()
		d.tree = nil
	}
}
