package layers

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"neurolint/internal/syntax"
)

// namedChildren returns n's named children.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// unwrapParens strips parenthesized_expression wrappers.
func unwrapParens(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" && n.NamedChildCount() > 0 {
		n = n.NamedChild(0)
	}
	return n
}

func isJSX(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "jsx_element", "jsx_self_closing_element":
		return true
	}
	return false
}

// openingTag returns the node that carries a JSX element's name and attributes.
func openingTag(el *sitter.Node) *sitter.Node {
	if el == nil {
		return nil
	}
	if el.Type() == "jsx_self_closing_element" || el.Type() == "jsx_opening_element" {
		return el
	}
	for _, c := range namedChildren(el) {
		if c.Type() == "jsx_opening_element" {
			return c
		}
	}
	return nil
}

// tagName is the element name, or "" for fragments.
func tagName(doc *syntax.Document, tag *sitter.Node) string {
	if tag == nil {
		return ""
	}
	return doc.Text(tag.ChildByFieldName("name"))
}

// attrName returns the name of a jsx_attribute.
func attrName(doc *syntax.Document, attr *sitter.Node) string {
	if attr == nil || attr.Type() != "jsx_attribute" || attr.ChildCount() == 0 {
		return ""
	}
	return doc.Text(attr.Child(0))
}

// hasAttr reports whether the tag sets name explicitly.
func hasAttr(doc *syntax.Document, tag *sitter.Node, name string) bool {
	for _, c := range namedChildren(tag) {
		if attrName(doc, c) == name {
			return true
		}
	}
	return false
}

// hasSpread reports whether the tag spreads props, which may set any attribute.
func hasSpread(doc *syntax.Document, tag *sitter.Node) bool {
	for _, c := range namedChildren(tag) {
		if c.Type() == "jsx_expression" && strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(doc.Text(c), "{")), "...") {
			return true
		}
	}
	return false
}

// insertAttr adds ` attr` right after the tag name.
func insertAttr(doc *syntax.Document, tag *sitter.Node, attr string) bool {
	name := tag.ChildByFieldName("name")
	if name == nil {
		return false
	}
	doc.InsertAfter(name, " "+attr)
	return true
}

// returnedJSX finds the JSX element a function body evaluates to: either an
// expression body or the argument of a return in a statement block.
func returnedJSX(body *sitter.Node) *sitter.Node {
	body = unwrapParens(body)
	if isJSX(body) {
		return body
	}
	if body == nil || body.Type() != "statement_block" {
		return nil
	}
	for _, stmt := range namedChildren(body) {
		if stmt.Type() != "return_statement" || stmt.NamedChildCount() == 0 {
			continue
		}
		if el := unwrapParens(stmt.NamedChild(0)); isJSX(el) {
			return el
		}
	}
	return nil
}

func isFunction(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "arrow_function", "function", "function_expression":
		return true
	}
	return false
}
