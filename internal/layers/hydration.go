package layers

import (
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"neurolint/internal/layer"
	"neurolint/internal/logging"
	"neurolint/internal/syntax"
)

const windowCheck = `typeof window !== "undefined"`

// Hydration is layer 4: guard browser storage access so server rendering
// does not touch client-only globals.
func Hydration() layer.Descriptor {
	return layer.Descriptor{
		ID:           4,
		Name:         "hydration",
		Description:  "Guard localStorage/sessionStorage access with a typeof window check",
		SupportsAST:  true,
		AST:          hydrationAST,
		Pattern:      hydrationPattern,
		FilePatterns: []string{"*.tsx", "*.jsx", "*.ts", "*.js"},
	}
}

var storageGlobals = map[string]bool{"localStorage": true, "sessionStorage": true}

var effectHooks = map[string]bool{
	"useEffect":             true,
	"useLayoutEffect":       true,
	"React.useEffect":       true,
	"React.useLayoutEffect": true,
}

type byteRange struct{ start, end uint32 }

func (r byteRange) contains(n *sitter.Node) bool {
	return n.StartByte() >= r.start && n.EndByte() <= r.end
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func hydrationAST(doc *syntax.Document) error {
	var wrapped []byteRange

	for _, m := range doc.FindAll("member_expression") {
		obj := m.ChildByFieldName("object")
		if obj == nil || obj.Type() != "identifier" || !storageGlobals[doc.Text(obj)] {
			continue
		}

		target := m
		parent := m.Parent()
		if parent != nil && parent.Type() == "call_expression" && sameNode(parent.ChildByFieldName("function"), m) {
			target = parent
		} else if parent != nil && parent.Type() == "assignment_expression" {
			continue
		}

		if covered(wrapped, target) || guarded(doc, target) {
			continue
		}

		if stmt := target.Parent(); stmt != nil && stmt.Type() == "expression_statement" && sameNode(stmt.NamedChild(0), target) {
			doc.Replace(stmt, fmt.Sprintf("if (%s) { %s }", windowCheck, ensureSemicolon(doc.Text(stmt))))
			wrapped = append(wrapped, byteRange{stmt.StartByte(), stmt.EndByte()})
			continue
		}
		doc.Replace(target, fmt.Sprintf("(%s ? %s : null)", windowCheck, doc.Text(target)))
		wrapped = append(wrapped, byteRange{target.StartByte(), target.EndByte()})
	}

	logging.LayersDebug("hydration: %d guard(s) in %s", doc.EditCount(), doc.Path)
	return nil
}

func ensureSemicolon(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if strings.HasSuffix(stmt, ";") {
		return stmt
	}
	return stmt + ";"
}

func covered(ranges []byteRange, n *sitter.Node) bool {
	for _, r := range ranges {
		if r.contains(n) {
			return true
		}
	}
	return false
}

var windowGuardRe = regexp.MustCompile(`typeof\s+window`)

// guarded reports whether n already runs only in the browser: under a
// typeof window check, inside an effect callback or inside a JSX event
// handler.
func guarded(doc *syntax.Document, n *sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "if_statement", "ternary_expression":
			if windowGuardRe.MatchString(doc.Text(p.ChildByFieldName("condition"))) {
				return true
			}
		case "binary_expression":
			left := p.ChildByFieldName("left")
			if doc.Text(p.ChildByFieldName("operator")) == "&&" && left != nil && !covers(left, n) &&
				windowGuardRe.MatchString(doc.Text(left)) {
				return true
			}
		case "call_expression":
			if effectHooks[doc.Text(p.ChildByFieldName("function"))] {
				return true
			}
		case "jsx_attribute":
			if name := attrName(doc, p); strings.HasPrefix(name, "on") {
				return true
			}
		case "statement_block", "program":
			if exitsEarly(doc, p, n) {
				return true
			}
		}
	}
	return false
}

var serverCheckRe = regexp.MustCompile(`typeof\s+window\s*===?\s*['"]undefined['"]`)

// exitsEarly reports whether a statement of block before n is
// `if (typeof window === "undefined") return` (or throw), with or without
// braces.
func exitsEarly(doc *syntax.Document, block, n *sitter.Node) bool {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		stmt := block.NamedChild(i)
		if stmt.EndByte() > n.StartByte() {
			return false
		}
		if stmt.Type() != "if_statement" || stmt.ChildByFieldName("alternative") != nil {
			continue
		}
		cond := doc.Text(stmt.ChildByFieldName("condition"))
		if !serverCheckRe.MatchString(cond) || strings.Contains(cond, "&&") {
			continue
		}
		body := stmt.ChildByFieldName("consequence")
		if body != nil && body.Type() == "statement_block" && body.NamedChildCount() > 0 {
			body = body.NamedChild(0)
		}
		if body != nil && (body.Type() == "return_statement" || body.Type() == "throw_statement") {
			return true
		}
	}
	return false
}

func covers(outer, inner *sitter.Node) bool {
	return inner.StartByte() >= outer.StartByte() && inner.EndByte() <= outer.EndByte()
}

var storageCallRe = regexp.MustCompile(`\b(localStorage|sessionStorage)\.(getItem|setItem|removeItem|clear|key)\(([^()]*)\)`)

func hydrationPattern(src string) (string, int, error) {
	lines := strings.Split(src, "\n")
	changes := 0
	for i, line := range lines {
		if windowGuardRe.MatchString(line) {
			continue
		}
		locs := storageCallRe.FindAllStringIndex(line, -1)
		if len(locs) == 0 {
			continue
		}
		var sb strings.Builder
		last := 0
		for _, loc := range locs {
			if loc[0] > 0 && line[loc[0]-1] == '.' {
				continue // window.localStorage
			}
			sb.WriteString(line[last:loc[0]])
			fmt.Fprintf(&sb, "(%s ? %s : null)", windowCheck, line[loc[0]:loc[1]])
			last = loc[1]
			changes++
		}
		sb.WriteString(line[last:])
		lines[i] = sb.String()
	}
	return strings.Join(lines, "\n"), changes, nil
}
