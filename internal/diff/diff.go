// Package diff renders line diffs between a file's original code and the code
// a pipeline run proposes, for dry-run previews and the CLI report.
package diff

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/zeebo/xxh3"
)

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded
	LineRemoved
)

func (t LineType) prefix() string {
	switch t {
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// Line is a single line in a hunk. LineNum is the old line number for
// context and removals, the new line number for additions.
type Line struct {
	LineNum int
	Content string
	Type    LineType
}

// Hunk represents a group of changes
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff is the diff of one file.
type FileDiff struct {
	Path    string
	Hunks   []Hunk
	Added   int
	Removed int
}

// Changed reports whether any line differs.
func (d *FileDiff) Changed() bool {
	return d.Added > 0 || d.Removed > 0
}

// Unified renders the diff in unified format.
func (d *FileDiff) Unified() string {
	if !d.Changed() {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", d.Path, d.Path)
	for _, h := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			sb.WriteString(l.Type.prefix())
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

type cacheKey struct {
	before uint64
	after  uint64
}

// Engine computes diffs and memoizes recent results. Watch mode recomputes
// the same before/after pairs whenever an editor re-saves a file.
type Engine struct {
	dmp          *diffmatchpatch.DiffMatchPatch
	cache        *lru.Cache[cacheKey, *FileDiff]
	contextLines int
}

// NewEngine creates an engine with the given context width and cache size.
func NewEngine(contextLines, cacheSize int) (*Engine, error) {
	if contextLines < 0 {
		contextLines = 3
	}
	cache, err := lru.New[cacheKey, *FileDiff](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("diff cache: %w", err)
	}
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // accuracy over speed; inputs are single source files
	return &Engine{dmp: dmp, cache: cache, contextLines: contextLines}, nil
}

// Compute diffs before against after.
func (e *Engine) Compute(path, before, after string) *FileDiff {
	key := cacheKey{xxh3.Hash([]byte(before)), xxh3.Hash([]byte(after))}
	if cached, ok := e.cache.Get(key); ok {
		result := *cached
		result.Path = path
		return &result
	}

	fd := &FileDiff{Path: path}
	if before != after {
		// Line-level reduction avoids newline boundary artifacts in the ops.
		a, b, lineArray := e.dmp.DiffLinesToChars(before, after)
		diffs := e.dmp.DiffMain(a, b, false)
		diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

		ops := diffsToOperations(diffs)
		for _, op := range ops {
			switch op.typ {
			case LineAdded:
				fd.Added++
			case LineRemoved:
				fd.Removed++
			}
		}
		fd.Hunks = groupIntoHunks(ops, e.contextLines)
	}

	e.cache.Add(key, fd)
	result := *fd
	return &result
}

// operation represents a single line operation
type operation struct {
	typ     LineType
	oldLine int
	newLine int
	content string
}

func diffsToOperations(diffs []diffmatchpatch.Diff) []operation {
	var ops []operation
	oldLine, newLine := 0, 0

	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		lines := strings.Split(d.Text, "\n")
		if lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}

		for _, line := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, operation{typ: LineContext, oldLine: oldLine, newLine: newLine, content: line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, operation{typ: LineRemoved, oldLine: oldLine, newLine: -1, content: line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, operation{typ: LineAdded, oldLine: -1, newLine: newLine, content: line})
				newLine++
			}
		}
	}
	return ops
}

// groupIntoHunks groups operations into hunks with contextLines of context
// on each side; changes closer than twice that share a hunk.
func groupIntoHunks(ops []operation, contextLines int) []Hunk {
	var (
		hunks   []Hunk
		current *Hunk
		lastIdx = -1
	)

	for i, op := range ops {
		if op.typ != LineContext {
			if current == nil {
				start := i - contextLines
				if start < 0 {
					start = 0
				}
				current = &Hunk{}
				current.OldStart, current.NewStart = startLines(ops, start)
				for j := start; j < i; j++ {
					current.Lines = append(current.Lines, Line{LineNum: ops[j].oldLine + 1, Content: ops[j].content, Type: LineContext})
				}
			}
			lastIdx = i
		}
		if current == nil {
			continue
		}

		lineNum := op.oldLine + 1
		if op.typ == LineAdded {
			lineNum = op.newLine + 1
		}
		current.Lines = append(current.Lines, Line{LineNum: lineNum, Content: op.content, Type: op.typ})

		if op.typ == LineContext && i-lastIdx >= 2*contextLines+1 {
			// too far from the last change: trim trailing context and close
			excess := i - lastIdx - contextLines
			current.Lines = current.Lines[:len(current.Lines)-excess]
			hunks = append(hunks, countHunk(*current))
			current = nil
		}
	}

	if current != nil {
		// drop trailing context beyond contextLines
		trailing := 0
		for j := len(current.Lines) - 1; j >= 0 && current.Lines[j].Type == LineContext; j-- {
			trailing++
		}
		if trailing > contextLines {
			current.Lines = current.Lines[:len(current.Lines)-(trailing-contextLines)]
		}
		hunks = append(hunks, countHunk(*current))
	}
	return hunks
}

// startLines returns 1-based old/new line numbers for the op at idx.
func startLines(ops []operation, idx int) (int, int) {
	var oldStart, newStart int
	for j := idx; j < len(ops); j++ {
		if oldStart == 0 && ops[j].oldLine >= 0 {
			oldStart = ops[j].oldLine + 1
		}
		if newStart == 0 && ops[j].newLine >= 0 {
			newStart = ops[j].newLine + 1
		}
		if oldStart != 0 && newStart != 0 {
			break
		}
	}
	return oldStart, newStart
}

func countHunk(h Hunk) Hunk {
	h.OldCount, h.NewCount = 0, 0
	for _, l := range h.Lines {
		if l.Type != LineAdded {
			h.OldCount++
		}
		if l.Type != LineRemoved {
			h.NewCount++
		}
	}
	return h
}
