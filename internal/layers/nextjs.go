package layers

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"neurolint/internal/layer"
	"neurolint/internal/logging"
	"neurolint/internal/syntax"
)

const useClient = "'use client';\n\n"

// NextJS is layer 5: App Router client directive placement.
func NextJS() layer.Descriptor {
	return layer.Descriptor{
		ID:           5,
		Name:         "nextjs",
		Description:  "Add or hoist the 'use client' directive for components using hooks or event handlers",
		SupportsAST:  true,
		AST:          nextjsAST,
		Pattern:      nextjsPattern,
		FilePatterns: []string{"*.tsx", "*.jsx", "*.js"},
	}
}

var clientHooks = map[string]bool{
	"useState": true, "useEffect": true, "useLayoutEffect": true, "useReducer": true,
	"useRef": true, "useContext": true, "useCallback": true, "useMemo": true,
	"useTransition": true, "useDeferredValue": true, "useImperativeHandle": true,
	"useSyncExternalStore": true, "useOptimistic": true,
}

var (
	serverExportRe = regexp.MustCompile(`\bexport\s+(const\s+metadata\b|(async\s+)?function\s+generateMetadata\b|const\s+(revalidate|dynamic)\b)`)
	eventAttrRe    = regexp.MustCompile(`^on[A-Z]`)
)

func directiveValue(doc *syntax.Document, stmt *sitter.Node) (string, bool) {
	if stmt == nil || stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
		return "", false
	}
	str := stmt.NamedChild(0)
	if str.Type() != "string" {
		return "", false
	}
	return strings.Trim(doc.Text(str), `'"`), true
}

func nextjsAST(doc *syntax.Document) error {
	if serverExportRe.MatchString(doc.Source()) {
		return nil
	}

	var (
		first     *sitter.Node
		prologue  = true
		misplaced []*sitter.Node
	)
	for _, stmt := range namedChildren(doc.Root()) {
		if stmt.Type() == "comment" {
			continue
		}
		if first == nil {
			first = stmt
		}
		value, isDirective := directiveValue(doc, stmt)
		switch {
		case prologue && isDirective && value == "use client":
			return nil
		case prologue && isDirective && value == "use server":
			return nil
		case prologue && isDirective:
		case isDirective && value == "use client":
			misplaced = append(misplaced, stmt)
		default:
			prologue = false
		}
	}

	if first == nil || !needsClient(doc) {
		return nil
	}

	src := doc.Source()
	for _, stmt := range misplaced {
		end := int(stmt.EndByte())
		if end < len(src) && src[end] == '\n' {
			end++
		}
		doc.ReplaceRange(int(stmt.StartByte()), end, "")
	}
	doc.InsertBefore(first, useClient)

	logging.LayersDebug("nextjs: added 'use client' to %s (%d misplaced removed)", doc.Path, len(misplaced))
	return nil
}

// needsClient reports whether the module calls client hooks or wires JSX
// event handlers.
func needsClient(doc *syntax.Document) bool {
	found := false
	doc.Walk(func(n *sitter.Node) bool {
		if found {
			return false
		}
		switch n.Type() {
		case "call_expression":
			name := doc.Text(n.ChildByFieldName("function"))
			name = strings.TrimPrefix(name, "React.")
			if clientHooks[name] {
				found = true
			}
		case "jsx_attribute":
			if eventAttrRe.MatchString(attrName(doc, n)) {
				found = true
			}
		}
		return true
	})
	return found
}

var (
	clientUsageRe      = regexp.MustCompile(`\b(React\.)?(useState|useEffect|useLayoutEffect|useReducer|useRef|useContext|useCallback|useMemo|useTransition|useDeferredValue|useImperativeHandle|useSyncExternalStore|useOptimistic)\s*\(|\son[A-Z]\w*\s*=\s*\{`)
	leadingDirectiveRe = regexp.MustCompile(`^(\s*(//[^\n]*|/\*[\s\S]*?\*/)\s*)*['"]use (client|server)['"]`)
	anyUseClientRe     = regexp.MustCompile(`(?m)^[ \t]*['"]use client['"];?[ \t]*\n?`)
)

func nextjsPattern(src string) (string, int, error) {
	if leadingDirectiveRe.MatchString(src) || serverExportRe.MatchString(src) || !clientUsageRe.MatchString(src) {
		return src, 0, nil
	}
	src = anyUseClientRe.ReplaceAllString(src, "")
	return useClient + src, 1, nil
}
