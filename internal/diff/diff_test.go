package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(3, 16)
	require.NoError(t, err)
	return e
}

func TestCompute_SimpleAddition(t *testing.T) {
	d := newEngine(t).Compute("a.js", "line1\nline2\nline3", "line1\nline2\nline2.5\nline3")

	require.Len(t, d.Hunks, 1)
	assert.Equal(t, 1, d.Added)
	assert.Equal(t, 0, d.Removed)
	assert.True(t, d.Changed())

	want := "--- a/a.js\n+++ b/a.js\n@@ -1,3 +1,4 @@\n line1\n line2\n+line2.5\n line3\n"
	assert.Equal(t, want, d.Unified())
}

func TestCompute_SimpleDeletion(t *testing.T) {
	d := newEngine(t).Compute("a.js", "line1\nline2\nline3\nline4", "line1\nline2\nline4")

	require.Len(t, d.Hunks, 1)
	assert.Equal(t, 0, d.Added)
	assert.Equal(t, 1, d.Removed)

	hasRemoval := false
	for _, l := range d.Hunks[0].Lines {
		if l.Type == LineRemoved && l.Content == "line3" {
			hasRemoval = true
			assert.Equal(t, 3, l.LineNum)
		}
	}
	assert.True(t, hasRemoval, "expected removed line 'line3'")
}

func TestCompute_ConsoleRemoval(t *testing.T) {
	before := "function f() {\n  console.log('x');\n  return 1;\n}\n"
	after := "function f() {\n  return 1;\n}\n"

	d := newEngine(t).Compute("src/f.js", before, after)
	assert.Contains(t, d.Unified(), "-  console.log('x');\n")
	assert.Equal(t, 1, d.Removed)
}

func TestCompute_Unchanged(t *testing.T) {
	d := newEngine(t).Compute("a.js", "same\n", "same\n")
	assert.False(t, d.Changed())
	assert.Empty(t, d.Hunks)
	assert.Empty(t, d.Unified())
}

func TestCompute_SeparateHunks(t *testing.T) {
	var before, after []string
	for i := 0; i < 30; i++ {
		line := "line" + string(rune('a'+i%26))
		before = append(before, line)
		switch i {
		case 2:
			after = append(after, "changed-top")
		case 25:
			after = append(after, "changed-bottom")
		default:
			after = append(after, line)
		}
	}

	d := newEngine(t).Compute("big.js", strings.Join(before, "\n"), strings.Join(after, "\n"))
	require.Len(t, d.Hunks, 2)
	assert.Equal(t, 2, d.Added)
	assert.Equal(t, 2, d.Removed)

	for _, h := range d.Hunks {
		assert.LessOrEqual(t, len(h.Lines), 2+2*3, "hunk keeps at most three lines of context per side")
		assert.Equal(t, h.OldCount, h.NewCount)
	}
	assert.Equal(t, 23, d.Hunks[1].OldStart)
}

func TestCompute_CacheReturnsCopies(t *testing.T) {
	e := newEngine(t)
	first := e.Compute("a.js", "x\n", "y\n")
	second := e.Compute("b.js", "x\n", "y\n")

	assert.Equal(t, "a.js", first.Path)
	assert.Equal(t, "b.js", second.Path)
	assert.Equal(t, first.Hunks, second.Hunks)
}

func TestNewEngine_InvalidCache(t *testing.T) {
	_, err := NewEngine(3, 0)
	assert.Error(t, err)
}
