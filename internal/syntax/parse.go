// Package syntax parses JavaScript/TypeScript/JSX sources with tree-sitter and
// regenerates text from recorded byte-range edits.
//
// Regeneration never re-prints the tree. Untouched bytes, including comments,
// blank lines and formatting, are copied verbatim from the original text, so a
// rewrite only produces diff noise where an edit was made.
package syntax

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"neurolint/internal/logging"
)

// Dialect selects the tree-sitter grammar.
type Dialect int

const (
	// TSX accepts TypeScript types, JSX, decorators, class fields, spread,
	// dynamic import, optional chaining and nullish coalescing.
	TSX Dialect = iota
	// TypeScript is used for .ts files, where `<T>expr` casts conflict with JSX.
	TypeScript
)

func (d Dialect) String() string {
	switch d {
	case TypeScript:
		return "typescript"
	default:
		return "tsx"
	}
}

// DialectFor picks the grammar for a file path. Unknown or empty paths get TSX,
// the most permissive grammar.
func DialectFor(path string) Dialect {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return TypeScript
	default:
		return TSX
	}
}

func (d Dialect) language() *sitter.Language {
	if d == TypeScript {
		return typescript.GetLanguage()
	}
	return tsx.GetLanguage()
}

// SyntaxError reports the first ERROR or MISSING node in a parse.
type SyntaxError struct {
	Line    int // 1-based
	Column  int // 1-based
	Missing string
	Snippet string
}

func (e *SyntaxError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("%d:%d: missing %q", e.Line, e.Column, e.Missing)
	}
	return fmt.Sprintf("%d:%d: unexpected %q", e.Line, e.Column, e.Snippet)
}

// Parse parses code into a Document. Fragments are accepted: tree-sitter has
// no module-level restrictions on import/export placement or top-level return.
// Any error-recovery node in the tree is reported as *SyntaxError and the
// partial tree is discarded.
//
// Each call builds its own parser, so Parse is safe for concurrent use and the
// returned tree is owned exclusively by the caller.
func Parse(code, path string) (*Document, error) {
	dialect := DialectFor(path)
	src := []byte(code)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(dialect.language())

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter %s parse: %w", dialect, err)
	}

	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, fmt.Errorf("tree-sitter %s parse: nil root node", dialect)
	}
	if root.HasError() {
		serr := firstError(root, src)
		tree.Close()
		logging.ASTDebug("Parse %s (%s) failed: %v", path, dialect, serr)
		return nil, serr
	}

	return &Document{
		Path:    path,
		Dialect: dialect,
		source:  src,
		tree:    tree,
	}, nil
}

// firstError finds the earliest ERROR or MISSING node below root.
func firstError(root *sitter.Node, src []byte) *SyntaxError {
	var found *sitter.Node
	walk(root, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			found = n
			return false
		}
		return n.HasError()
	})

	if found == nil {
		return &SyntaxError{Line: 1, Column: 1, Snippet: "<unknown>"}
	}

	pt := found.StartPoint()
	serr := &SyntaxError{Line: int(pt.Row) + 1, Column: int(pt.Column) + 1}
	if found.IsMissing() {
		serr.Missing = found.Type()
		return serr
	}
	snippet := found.Content(src)
	if i := strings.IndexByte(snippet, '\n'); i >= 0 {
		snippet = snippet[:i]
	}
	if len(snippet) > 40 {
		snippet = snippet[:40]
	}
	serr.Snippet = snippet
	return serr
}

// walk visits n and its descendants in source order. Returning false from fn
// skips the node's children.
func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), fn)
	}
}
