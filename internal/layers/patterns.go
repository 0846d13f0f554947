package layers

import (
	"regexp"
	"strings"

	"neurolint/internal/layer"
)

// Patterns is layer 2: textual clean-ups that need no parse.
func Patterns() layer.Descriptor {
	return layer.Descriptor{
		ID:          2,
		Name:        "patterns",
		Description: "Decode HTML entities and remove console debugging statements",
		Pattern: func(src string) (string, int, error) {
			out, entities := decodeEntities(src)
			out, calls := stripConsole(out)
			return out, entities + calls, nil
		},
	}
}

var entityRe = regexp.MustCompile(`^&(quot|#34|#39|#x27|apos|amp);`)

var entityChars = map[string]byte{
	"&quot;": '"',
	"&#34;":  '"',
	"&#39;":  '\'',
	"&#x27;": '\'',
	"&apos;": '\'',
	"&amp;":  '&',
}

// decodeEntities replaces encoded quotes and ampersands. A decoded quote that
// would terminate the string literal it sits in is emitted escaped.
// &lt; and &gt; are left alone because decoding them inside JSX text would
// change the markup.
func decodeEntities(src string) (string, int) {
	if !strings.Contains(src, "&") {
		return src, 0
	}

	var (
		sb      strings.Builder
		quote   byte
		changes int
	)
	sb.Grow(len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && quote != 0 && i+1 < len(src):
			sb.WriteByte(c)
			sb.WriteByte(src[i+1])
			i++
			continue
		case c == '&':
			if m := entityRe.FindString(src[i:]); m != "" {
				ch := entityChars[m]
				if quote != 0 && ch == quote {
					sb.WriteByte('\\')
				}
				sb.WriteByte(ch)
				i += len(m) - 1
				changes++
				continue
			}
		case quote == 0 && (c == '\'' || c == '"' || c == '`'):
			quote = c
		case quote != 0 && c == quote:
			quote = 0
		case c == '\n' && quote != '`':
			quote = 0
		}
		sb.WriteByte(c)
	}
	return sb.String(), changes
}

var consoleCallRe = regexp.MustCompile(`\bconsole\.(log|debug|info)\s*\(`)

// stripConsole removes console.log/debug/info calls that stand as their own
// statements. A statement alone on its line takes the line with it.
func stripConsole(src string) (string, int) {
	locs := consoleCallRe.FindAllStringIndex(src, -1)
	if len(locs) == 0 {
		return src, 0
	}

	var sb strings.Builder
	last, changes := 0, 0
	for _, loc := range locs {
		start := loc[0]
		if start < last || !statementStart(src, start) {
			continue
		}
		closeParen := matchParen(src, loc[1]-1)
		if closeParen < 0 {
			continue
		}
		end := closeParen + 1
		for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
			end++
		}
		if end < len(src) && src[end] == ';' {
			end++
		}

		lineStart := strings.LastIndexByte(src[:start], '\n') + 1
		lineEnd := strings.IndexByte(src[end:], '\n')
		if lineEnd < 0 {
			lineEnd = len(src)
		} else {
			lineEnd += end
		}
		if strings.TrimSpace(src[lineStart:start]) == "" && strings.TrimSpace(src[end:lineEnd]) == "" {
			start = lineStart
			end = lineEnd
			if end < len(src) {
				end++ // newline
			}
		} else {
			for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
				end++
			}
		}
		if start < last {
			continue
		}

		sb.WriteString(src[last:start])
		last = end
		changes++
	}
	sb.WriteString(src[last:])
	return sb.String(), changes
}

// statementStart reports whether offset begins a statement: only whitespace
// since the previous statement boundary, and not inside a line comment.
func statementStart(src string, offset int) bool {
	lineStart := strings.LastIndexByte(src[:offset], '\n') + 1
	if strings.Contains(src[lineStart:offset], "//") {
		return false
	}
	for j := offset - 1; j >= 0; j-- {
		switch src[j] {
		case ' ', '\t', '\r':
			continue
		case '\n', ';', '{', '}':
			return true
		default:
			return false
		}
	}
	return true
}

// matchParen returns the index of the ')' closing the '(' at open, skipping
// string and template literals, or -1.
func matchParen(src string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
