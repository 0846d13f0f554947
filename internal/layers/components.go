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

// Components is layer 3: list keys and image alt text.
func Components() layer.Descriptor {
	return layer.Descriptor{
		ID:           3,
		Name:         "components",
		Description:  "Add missing key props in .map() rendering and alt text on <img>",
		SupportsAST:  true,
		AST:          componentsAST,
		Pattern:      componentsPattern,
		FilePatterns: []string{"*.tsx", "*.jsx", "*.js"},
	}
}

func componentsAST(doc *syntax.Document) error {
	for _, call := range doc.FindAll("call_expression") {
		addMapKey(doc, call)
	}
	for _, tag := range doc.FindAll("jsx_self_closing_element", "jsx_opening_element") {
		if tagName(doc, tag) != "img" || hasAttr(doc, tag, "alt") || hasSpread(doc, tag) {
			continue
		}
		insertAttr(doc, tag, `alt=""`)
	}
	logging.LayersDebug("components: %d edit(s) in %s", doc.EditCount(), doc.Path)
	return nil
}

// addMapKey handles `xs.map(cb)` where cb returns a JSX element with no key.
func addMapKey(doc *syntax.Document, call *sitter.Node) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "member_expression" || doc.Text(fn.ChildByFieldName("property")) != "map" {
		return
	}
	args := namedChildren(call.ChildByFieldName("arguments"))
	if len(args) == 0 || !isFunction(args[0]) {
		return
	}
	cb := args[0]

	tag := openingTag(returnedJSX(cb.ChildByFieldName("body")))
	if tag == nil || tagName(doc, tag) == "" {
		return // fragments cannot take a key
	}
	if hasAttr(doc, tag, "key") || hasSpread(doc, tag) {
		return
	}

	index, ok := indexParam(doc, cb)
	if !ok {
		return
	}
	insertAttr(doc, tag, fmt.Sprintf("key={%s}", index))
}

// indexParam returns the name of the callback's index parameter, adding an
// `index` parameter when the callback declares fewer than two.
func indexParam(doc *syntax.Document, cb *sitter.Node) (string, bool) {
	if p := cb.ChildByFieldName("parameter"); p != nil {
		doc.Replace(p, "("+doc.Text(p)+", index)")
		return "index", true
	}

	params := cb.ChildByFieldName("parameters")
	if params == nil {
		return "", false
	}
	var list []*sitter.Node
	for _, c := range namedChildren(params) {
		if c.Type() != "comment" {
			list = append(list, c)
		}
	}

	switch len(list) {
	case 0:
		doc.InsertAt(int(params.EndByte())-1, "_item, index")
		return "index", true
	case 1:
		doc.InsertAfter(list[0], ", index")
		return "index", true
	}

	second := list[1]
	switch second.Type() {
	case "required_parameter", "optional_parameter":
		second = second.ChildByFieldName("pattern")
	}
	if second == nil || second.Type() != "identifier" {
		return "", false
	}
	return doc.Text(second), true
}

var (
	mapCallbackRe = regexp.MustCompile(`\.map\(\s*(?:\(([^()]*)\)|([A-Za-z_$][\w$]*))\s*=>\s*(\(?\s*)<([A-Za-z][\w.]*)`)
	identRe       = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
	imgOpenRe     = regexp.MustCompile(`<img\b([^>]*)>`)
	altRe         = regexp.MustCompile(`\balt\s*=`)
	keyRe         = regexp.MustCompile(`\bkey\s*=`)
)

func componentsPattern(src string) (string, int, error) {
	out, keys := patternMapKeys(src)
	out, alts := patternImgAlt(out)
	return out, keys + alts, nil
}

func patternMapKeys(src string) (string, int) {
	matches := mapCallbackRe.FindAllStringSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return src, 0
	}

	var sb strings.Builder
	last, changes := 0, 0
	for _, m := range matches {
		tagEnd := m[9]
		rest := src[tagEnd:]
		if gt := strings.IndexByte(rest, '>'); gt >= 0 {
			rest = rest[:gt]
		}
		if keyRe.MatchString(rest) || strings.Contains(rest, "{...") {
			continue
		}

		var params, index string
		switch {
		case m[2] >= 0:
			inner := src[m[2]:m[3]]
			parts := strings.Split(inner, ",")
			switch {
			case strings.TrimSpace(inner) == "":
				params, index = "(_item, index)", "index"
			case len(parts) == 1:
				params, index = "("+strings.TrimRight(inner, " \t")+", index)", "index"
			default:
				name := strings.TrimSpace(strings.SplitN(parts[1], ":", 2)[0])
				if !identRe.MatchString(name) {
					continue
				}
				params, index = "("+inner+")", name
			}
		default:
			params, index = "("+src[m[4]:m[5]]+", index)", "index"
		}

		sb.WriteString(src[last:m[0]])
		fmt.Fprintf(&sb, ".map(%s => %s<%s key={%s}", params, src[m[6]:m[7]], src[m[8]:m[9]], index)
		last = m[1]
		changes++
	}
	sb.WriteString(src[last:])
	return sb.String(), changes
}

func patternImgAlt(src string) (string, int) {
	changes := 0
	out := imgOpenRe.ReplaceAllStringFunc(src, func(tag string) string {
		if altRe.MatchString(tag) || strings.Contains(tag, "{...") {
			return tag
		}
		changes++
		return `<img alt=""` + tag[len("<img"):]
	})
	return out, changes
}
