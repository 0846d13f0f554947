package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurolint/internal/layer"
	"neurolint/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPickLayers(t *testing.T) {
	assert.Nil(t, pickLayers(nil, nil))
	if diff := cmp.Diff([]layer.ID{3, 1}, pickLayers([]int{3, 1}, []int{2})); diff != "" {
		t.Fatalf("flag layers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]layer.ID{2}, pickLayers(nil, []int{2})); diff != "" {
		t.Fatalf("configured layers mismatch (-want +got):\n%s", diff)
	}
}

func TestInit(t *testing.T) {
	ws := t.TempDir()

	out, err := execute(t, "init", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	assert.FileExists(t, filepath.Join(ws, ".neurolint", "config.yaml"))

	_, err = execute(t, "init", "-w", ws)
	assert.Error(t, err)

	_, err = execute(t, "init", "-w", ws, "--force")
	assert.NoError(t, err)
}

func TestFix_DryRunLeavesFile(t *testing.T) {
	ws := t.TempDir()
	src := "console.log('x');\nconst a = 1;\n"
	path := writeSource(t, ws, "src/a.js", src)

	out, err := execute(t, "fix", "-w", ws, "--layers", "2", "--dry-run", "--diff", "--stats", "--no-history", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, src, string(data))

	assert.Contains(t, out, path)
	assert.Contains(t, out, "-console.log('x');")
	assert.Contains(t, out, "Strategy statistics")
	assert.Contains(t, out, "1 file(s)")
}

func TestFix_WritesAndRecordsHistory(t *testing.T) {
	ws := t.TempDir()
	path := writeSource(t, ws, "src/a.js", "console.log('x');\nconst a = 1;\n")

	_, err := execute(t, "fix", "-w", ws, "--layers", "2,9", filepath.Join(ws, "src"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "const a = 1;\n", string(data))

	out, err := execute(t, "history", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.Contains(t, out, "Layer outcomes")

	st, err := store.Open(filepath.Join(ws, ".neurolint", "history.db"))
	require.NoError(t, err)
	runs, err := st.RecentRuns(1)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Len(t, runs, 1)

	out, err = execute(t, "history", "-w", ws, "--run", runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "patterns")
	assert.Contains(t, out, "unknown layer")

	_, err = execute(t, "history", "-w", ws, "--run", "missing")
	assert.Error(t, err)
}

func TestFix_MissingPath(t *testing.T) {
	ws := t.TempDir()
	_, err := execute(t, "fix", "-w", ws, "--no-history", filepath.Join(ws, "nope.js"))
	assert.Error(t, err)
}

func TestRecommend(t *testing.T) {
	ws := t.TempDir()
	path := writeSource(t, ws, "app/page.tsx", "export default function Page() {\n  const [a] = useState(0);\n  return <img src=\"a.png\" />;\n}\n")

	out, err := execute(t, "recommend", "-w", ws, path)
	require.NoError(t, err)
	assert.Contains(t, out, "layers: 3,5")
}

func TestLayers(t *testing.T) {
	out, err := execute(t, "layers", "-w", t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"config", "patterns", "components", "hydration", "nextjs", "testing", "adaptive"} {
		assert.Contains(t, out, name)
	}
	assert.True(t, strings.Contains(out, "ast+pattern"))
}
