package validation

import (
	"fmt"
	"strings"
)

// balance is the delimiter report for one text.
type balance struct {
	errors int
	first  string
}

func (b *balance) fail(src string, off int, format string, args ...interface{}) {
	b.errors++
	if b.first == "" {
		line, col := position(src, off)
		b.first = fmt.Sprintf("%s at line %d, column %d", fmt.Sprintf(format, args...), line, col)
	}
}

func position(src string, off int) (int, int) {
	if off > len(src) {
		off = len(src)
	}
	line := strings.Count(src[:off], "\n") + 1
	col := off - strings.LastIndexByte(src[:off], '\n')
	return line, col
}

const (
	modeCode     = iota
	modeTemplate // template literal text
	modeTag      // inside <Tag ...>
	modeChildren // JSX text between an opening and a closing tag
)

type frame struct {
	open byte
	off  int
	// owned frames were opened by `${` or a JSX `{` and pop the mode above
	// them when closed
	owned bool
	owner int
}

var closerFor = map[byte]byte{'{': '}', '(': ')', '[': ']'}

// regexKeywords may directly precede a regex literal or a JSX element.
var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "case": true, "do": true, "else": true,
	"in": true, "of": true, "new": true, "delete": true, "void": true,
	"throw": true, "yield": true, "await": true, "instanceof": true,
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// scanDelimiters checks that {, ( and [ are matched and correctly nested,
// ignoring delimiters inside strings, template text, comments, regex
// literals and JSX text. An element that never closes is usually a
// TypeScript cast or type parameter list, so the text is then rescanned
// without JSX.
func scanDelimiters(src string) balance {
	b, jsxOpen := scan(src, true)
	if jsxOpen {
		b, _ = scan(src, false)
	}
	return b
}

// scan reports the balance of src and whether a JSX element or tag was
// left open at end of input.
func scan(src string, jsx bool) (balance, bool) {
	var (
		b     balance
		stack []frame
		modes = []int{modeCode}
		prev  byte   // last significant byte in code
		word  string // last identifier in code
	)

	mode := func() int { return modes[len(modes)-1] }
	pop := func() { modes = modes[:len(modes)-1] }

	exprAllowed := func() bool {
		if prev == 0 {
			return true
		}
		if isIdent(prev) || prev == ')' || prev == ']' || prev == '}' || prev == '"' || prev == '\'' || prev == '`' {
			return regexKeywords[word] && isIdent(prev)
		}
		return true
	}

	// tagStart reports whether the '<' at i opens a JSX element rather than
	// a comparison or a type parameter list such as <T,> or <T extends U>.
	tagStart := func(i int) bool {
		j := i + 1
		if j < len(src) && src[j] == '>' {
			return true
		}
		if j >= len(src) || !isLetter(src[j]) {
			return false
		}
		for j < len(src) && (isIdent(src[j]) || src[j] == '.' || src[j] == '-' || src[j] == ':') {
			j++
		}
		rest := strings.TrimLeft(src[j:], " \t\r\n")
		return !strings.HasPrefix(rest, ",") && !strings.HasPrefix(rest, "extends ")
	}

	// closingTag returns the index of the '>' ending the closing tag at i.
	closingTag := func(i int) int {
		end := strings.IndexByte(src[i:], '>')
		if end < 0 {
			return len(src)
		}
		return i + end
	}

	openOwned := func(off, owner int) {
		stack = append(stack, frame{open: '{', off: off, owned: true, owner: owner})
		modes = append(modes, modeCode)
		prev, word = '{', ""
	}

	closeFrame := func(c byte, off int) {
		if n := len(stack); n > 0 && closerFor[stack[n-1].open] == c {
			stack = stack[:n-1]
			return
		}
		if len(stack) == 0 {
			b.fail(src, off, "unexpected %q", c)
			return
		}
		top := stack[len(stack)-1]
		b.fail(src, off, "mismatched %q closing %q", c, top.open)
		for i := len(stack) - 1; i >= 0 && !stack[i].owned; i-- {
			if closerFor[stack[i].open] == c {
				stack = stack[:i]
				return
			}
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]

		switch mode() {
		case modeTemplate:
			switch {
			case c == '\\':
				i++
			case c == '`':
				pop()
				prev, word = '`', ""
			case c == '$' && i+1 < len(src) && src[i+1] == '{':
				openOwned(i+1, modeTemplate)
				i++
			}
			continue

		case modeTag:
			switch {
			case c == '\'' || c == '"':
				i = skipAttr(src, i)
			case c == '{':
				openOwned(i, modeTag)
			case c == '/' && i+1 < len(src) && src[i+1] == '>':
				pop()
				i++
				prev, word = ')', ""
			case c == '>':
				modes[len(modes)-1] = modeChildren
			}
			continue

		case modeChildren:
			switch {
			case c == '{':
				openOwned(i, modeChildren)
			case c == '<' && i+1 < len(src) && src[i+1] == '/':
				i = closingTag(i)
				pop()
				prev, word = ')', ""
			case c == '<':
				modes = append(modes, modeTag)
			}
			continue
		}

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			continue

		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			continue

		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				b.fail(src, i, "unterminated block comment")
				i = len(src)
				continue
			}
			i += end + 3
			continue

		case jsx && c == '<' && exprAllowed() && tagStart(i):
			modes = append(modes, modeTag)
			continue

		case c == '/' && prev != '<' && !(i+1 < len(src) && src[i+1] == '>') && exprAllowed():
			i = skipRegex(src, i)
			prev, word = '/', ""
			continue

		case c == '\'' || c == '"':
			i = skipQuoted(src, i)
			prev, word = c, ""
			continue

		case c == '`':
			modes = append(modes, modeTemplate)
			continue

		case c == '{' || c == '(' || c == '[':
			stack = append(stack, frame{open: c, off: i})

		case c == '}':
			if n := len(stack); n > 0 && stack[n-1].owned {
				stack = stack[:n-1]
				pop()
				prev, word = '}', ""
				continue
			}
			closeFrame(c, i)

		case c == ')' || c == ']':
			closeFrame(c, i)
		}

		if isIdent(c) {
			start := i
			for i+1 < len(src) && isIdent(src[i+1]) {
				i++
			}
			word = src[start : i+1]
		} else {
			word = ""
		}
		prev = src[i]
	}

	jsxOpen := false
	for _, m := range modes[1:] {
		switch m {
		case modeTemplate:
			b.fail(src, len(src), "unterminated template literal")
		case modeTag, modeChildren:
			jsxOpen = true
		}
	}
	for _, f := range stack {
		switch {
		case f.owned && f.owner == modeTemplate:
			b.fail(src, f.off, "unclosed template expression")
		case f.owned:
			b.fail(src, f.off, "unclosed JSX expression")
		default:
			b.fail(src, f.off, "unmatched %q", f.open)
		}
	}
	return b, jsxOpen
}

// skipQuoted returns the index of the closing quote, or of the newline or
// end of input that terminates an unclosed string.
func skipQuoted(src string, i int) int {
	q := src[i]
	for i++; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case q:
			return i
		case '\n':
			return i
		}
	}
	return len(src)
}

// skipAttr returns the index of the quote closing a JSX attribute string.
// Attribute strings have no escapes and may span lines.
func skipAttr(src string, i int) int {
	end := strings.IndexByte(src[i+1:], src[i])
	if end < 0 {
		return len(src)
	}
	return i + 1 + end
}

// skipRegex returns the index of the closing slash of a regex literal.
// Slashes inside a character class do not terminate it.
func skipRegex(src string, i int) int {
	inClass := false
	for i++; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				return i
			}
		case '\n':
			return i
		}
	}
	return len(src)
}
