package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"neurolint/internal/layer"
	"neurolint/internal/layers"
	"neurolint/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newPipeline(t *testing.T, descs ...layer.Descriptor) *pipeline.Pipeline {
	t.Helper()
	if len(descs) == 0 {
		cat, err := layers.Default(nil)
		require.NoError(t, err)
		return pipeline.New(cat, nil, nil, nil)
	}
	return pipeline.New(layer.MustCatalog(descs...), nil, nil, nil)
}

type failingRecorder struct{ calls atomic.Int32 }

func (f *failingRecorder) SaveRun(*pipeline.Run) error {
	f.calls.Add(1)
	return errors.New("disk full")
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "a.js"), "")
	writeFile(t, filepath.Join(dir, "src", "b.tsx"), "")
	writeFile(t, filepath.Join(dir, "src", "notes.md"), "")
	writeFile(t, filepath.Join(dir, "node_modules", "lib", "c.js"), "")
	writeFile(t, filepath.Join(dir, "src", "gen.min.js"), "")
	writeFile(t, filepath.Join(dir, "README"), "")

	got, err := Collect(
		[]string{dir, filepath.Join(dir, "README"), filepath.Join(dir, "src", "a.js")},
		[]string{".js", ".tsx"},
		[]string{"node_modules", "*.min.js"},
	)
	require.NoError(t, err)

	want := []string{
		filepath.Join(dir, "README"),
		filepath.Join(dir, "src", "a.js"),
		filepath.Join(dir, "src", "b.tsx"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("collected files mismatch (-want +got):\n%s", diff)
	}
}

func TestCollect_MissingPath(t *testing.T) {
	_, err := Collect([]string{filepath.Join(t.TempDir(), "nope")}, nil, nil)
	assert.Error(t, err)
}

func TestProcess_WritesChanges(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.js")
	b := filepath.Join(dir, "b.js")
	writeFile(t, a, "console.log('debug');\nconst a = 1;\n")
	writeFile(t, b, "const b = 2;\n")

	rec := &MemoryRecorder{}
	p := New(newPipeline(t), rec, Options{Layers: []layer.ID{2}, Concurrency: 2})
	report, err := p.Process(context.Background(), []string{dir})
	require.NoError(t, err)

	require.Len(t, report.Files, 2)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 0, report.Errored)
	assert.Equal(t, "const a = 1;\n", readFile(t, a))
	assert.Equal(t, "const b = 2;\n", readFile(t, b))
	assert.Len(t, rec.Runs(), 2)
	assert.NotEmpty(t, report.ID)
	assert.Contains(t, report.Summary(), "2 file(s)")
}

func TestProcess_DryRunLeavesFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.js")
	src := "console.log('debug');\nconst a = 1;\n"
	writeFile(t, a, src)

	p := New(newPipeline(t), nil, Options{Layers: []layer.ID{2}, DryRun: true})
	report, err := p.Process(context.Background(), []string{a})
	require.NoError(t, err)

	require.Len(t, report.Files, 1)
	fr := report.Files[0]
	assert.False(t, fr.Written)
	assert.True(t, fr.Run.Changed())
	assert.Equal(t, "const a = 1;\n", fr.Run.ProposedCode)
	assert.Equal(t, src, readFile(t, a))
}

func TestProcess_SelectorWhenNoLayers(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "page.jsx")
	writeFile(t, a, "const x = <img src=\"a.png\" />;\n")

	p := New(newPipeline(t), nil, Options{})
	report, err := p.Process(context.Background(), []string{a})
	require.NoError(t, err)

	run := report.Files[0].Run
	require.NotNil(t, run.Recommendation)
	assert.True(t, run.Recommendation.Contains(3))
	assert.Contains(t, readFile(t, a), `alt=""`)
}

func TestProcess_FailuresDoNotAbortSiblings(t *testing.T) {
	dir := t.TempDir()
	var names []string
	for _, n := range []string{"a.js", "b.js", "c.js", "d.js"} {
		writeFile(t, filepath.Join(dir, n), "const v = 1;\n")
		names = append(names, n)
	}

	boom := layer.Descriptor{
		ID:   1,
		Name: "boom",
		Pattern: func(src string) (string, int, error) {
			if strings.Contains(src, "1") {
				panic("layer exploded")
			}
			return src, 0, nil
		},
	}
	mark := layer.Descriptor{
		ID:   2,
		Name: "mark",
		Pattern: func(src string) (string, int, error) {
			return src + "// ok\n", 1, nil
		},
	}

	rec := &failingRecorder{}
	p := New(newPipeline(t, boom, mark), rec, Options{Layers: []layer.ID{1, 2}, Concurrency: 3})
	report, err := p.Process(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, len(names), report.Partial)
	assert.Equal(t, len(names), report.Written)
	for _, fr := range report.Files {
		assert.NoError(t, fr.Err)
		assert.Error(t, fr.RecordErr)
		assert.Equal(t, pipeline.StatusFailed, fr.Run.Attempts[0].Status)
		assert.Equal(t, pipeline.StatusSucceeded, fr.Run.Attempts[1].Status)
		assert.Equal(t, "const v = 1;\n// ok\n", readFile(t, fr.Path))
	}
	assert.Equal(t, int32(len(names)), rec.calls.Load())
}

func TestProcess_UnreadableFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.js")
	writeFile(t, good, "const a = 1;\n")

	p := New(newPipeline(t), nil, Options{Layers: []layer.ID{2}})
	res := p.ProcessFile(context.Background(), filepath.Join(dir, "gone.js"))
	assert.Error(t, res.Err)
	assert.Nil(t, res.Run)

	res = p.ProcessFile(context.Background(), good)
	assert.NoError(t, res.Err)
}

func TestProcess_CancelledBeforeStart(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.js"), "console.log(1);\n")
	writeFile(t, filepath.Join(dir, "b.js"), "console.log(2);\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(newPipeline(t), nil, Options{Layers: []layer.ID{2}})
	report, err := p.Process(ctx, []string{dir})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, report.Cancelled)
	assert.Equal(t, 0, report.Written)
	assert.Equal(t, "console.log(1);\n", readFile(t, filepath.Join(dir, "a.js")))
}

func TestProcess_CancelBetweenFiles(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.js", "b.js", "c.js"} {
		writeFile(t, filepath.Join(dir, n), "let v;\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen atomic.Int32
	stopper := layer.Descriptor{
		ID:   1,
		Name: "stopper",
		Pattern: func(src string) (string, int, error) {
			if seen.Add(1) == 1 {
				cancel()
			}
			return src + "// done\n", 1, nil
		},
	}

	p := New(newPipeline(t, stopper), nil, Options{Layers: []layer.ID{1}, Concurrency: 1})
	report, err := p.Process(ctx, []string{dir})
	assert.ErrorIs(t, err, context.Canceled)

	// The file in flight when cancellation arrived still completes.
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 2, report.Cancelled)
	assert.Equal(t, "let v;\n// done\n", readFile(t, filepath.Join(dir, "a.js")))
	assert.Equal(t, int32(1), seen.Load())
}
