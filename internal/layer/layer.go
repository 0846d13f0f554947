// Package layer describes pipeline stages: their identity, ordering and the
// transform functions they offer.
package layer

import (
	"fmt"
	"path/filepath"
	"sort"

	"neurolint/internal/syntax"
)

// ID identifies a layer. IDs 1-7 also define pipeline order.
type ID int

const (
	MinID ID = 1
	MaxID ID = 7
)

// Valid reports whether id is inside the supported range.
func (id ID) Valid() bool {
	return id >= MinID && id <= MaxID
}

func (id ID) String() string {
	return fmt.Sprintf("layer-%d", int(id))
}

// ASTFunc rewrites a parsed document by recording edits on it. Recording no
// edits means the tree is unchanged.
type ASTFunc func(doc *syntax.Document) error

// PatternFunc rewrites source text directly and reports how many
// substitutions it made.
type PatternFunc func(src string) (out string, changes int, err error)

// Descriptor is the capability record for one layer. The coordinator branches
// on which functions are present, never on a concrete layer type.
type Descriptor struct {
	ID          ID
	Name        string
	Description string

	// SupportsAST means AST is tried first. When false only Pattern is used.
	SupportsAST bool
	AST         ASTFunc
	Pattern     PatternFunc

	// FilePatterns are base-name globs the layer is meant for. Empty matches
	// every file. Only consulted in single-file mode.
	FilePatterns []string
}

// HasAST reports whether the AST path can be attempted.
func (d Descriptor) HasAST() bool {
	return d.SupportsAST && d.AST != nil
}

// HasPattern reports whether a pattern transform exists.
func (d Descriptor) HasPattern() bool {
	return d.Pattern != nil
}

// AppliesTo reports whether path matches the layer's FilePatterns.
func (d Descriptor) AppliesTo(path string) bool {
	if len(d.FilePatterns) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, pattern := range d.FilePatterns {
		if ok, err := filepath.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// Label is "<id> <name>" for logs and reports.
func (d Descriptor) Label() string {
	if d.Name == "" {
		return d.ID.String()
	}
	return fmt.Sprintf("%d %s", int(d.ID), d.Name)
}

// Sorted returns a copy of descs in ascending ID order. Later duplicates of an
// ID are dropped.
func Sorted(descs []Descriptor) []Descriptor {
	seen := make(map[ID]bool, len(descs))
	out := make([]Descriptor, 0, len(descs))
	for _, d := range descs {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortIDs returns ids sorted ascending with duplicates removed.
func SortIDs(ids []ID) []ID {
	seen := make(map[ID]bool, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
