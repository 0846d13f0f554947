package watch

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"neurolint/internal/batch"
	"neurolint/internal/layer"
	"neurolint/internal/layers"
	"neurolint/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fsnotify's Windows backend leaves goroutines goleak cannot track")
	}
}

func newProcessor(t *testing.T) *batch.Processor {
	t.Helper()
	cat, err := layers.Default(nil)
	require.NoError(t, err)
	return batch.New(pipeline.New(cat, nil, nil, nil), nil, batch.Options{Layers: []layer.ID{2}})
}

func newWatcher(t *testing.T, root string, opts Options) *Watcher {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = 50 * time.Millisecond
	}
	if opts.Extensions == nil {
		opts.Extensions = []string{".js", ".tsx"}
	}
	if opts.Exclude == nil {
		opts.Exclude = []string{"node_modules"}
	}
	w, err := New(root, newProcessor(t), opts)
	require.NoError(t, err)
	return w
}

type fakeHistory struct {
	mu    sync.Mutex
	paths map[string]bool
}

func (f *fakeHistory) WroteContent(path, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paths[path], nil
}

func TestWatcher_StartStop(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "app"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "x"), 0755))

	w := newWatcher(t, root, Options{})
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()), "second Start is a no-op")
	assert.True(t, w.IsWatching())

	dirs := w.WatchedDirs()
	assert.Contains(t, dirs, filepath.Join(root, "src", "app"))
	assert.NotContains(t, dirs, filepath.Join(root, "node_modules"))

	w.Stop()
	w.Stop()
	assert.False(t, w.IsWatching())
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	skipOnWindows(t)
	w := newWatcher(t, t.TempDir(), Options{})
	w.Stop()
	assert.False(t, w.IsWatching())
}

func TestWatcher_FixesChangedFile(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	sub := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(sub, 0755))

	var (
		mu      sync.Mutex
		results []batch.FileResult
	)
	w := newWatcher(t, root, Options{OnResult: func(fr batch.FileResult) {
		mu.Lock()
		results = append(results, fr)
		mu.Unlock()
	}})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(sub, "a.js")
	require.NoError(t, os.WriteFile(path, []byte("console.log('x');\nconst a = 1;\n"), 0644))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && string(data) == "const a = 1;\n"
	}, 5*time.Second, 20*time.Millisecond)

	// The watcher's own write comes back as an event and must not trigger
	// another run.
	require.Eventually(t, func() bool {
		return w.Stats().Suppressed >= 1
	}, 5*time.Second, 20*time.Millisecond)

	stats := w.Stats()
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, 1, stats.Written)
	assert.Equal(t, 0, stats.Errors)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	assert.True(t, results[0].Written)
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	w := newWatcher(t, root, Options{})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	nested := filepath.Join(root, "pages")
	require.NoError(t, os.Mkdir(nested, 0755))
	require.Eventually(t, func() bool {
		for _, d := range w.WatchedDirs() {
			if d == nested {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresExcludedAndForeignFiles(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0755))

	w := newWatcher(t, root, Options{})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	src := "console.log('x');\n"
	vendored := filepath.Join(root, "node_modules", "lib.js")
	notes := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(vendored, []byte(src), 0644))
	require.NoError(t, os.WriteFile(notes, []byte(src), 0644))

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 0, w.Stats().Runs)

	data, err := os.ReadFile(notes)
	require.NoError(t, err)
	assert.Equal(t, src, string(data))
}

func TestWatcher_HistorySuppressesOwnOutput(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	path := filepath.Join(root, "a.js")
	history := &fakeHistory{paths: map[string]bool{path: true}}

	w := newWatcher(t, root, Options{History: history})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	src := "console.log('x');\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	require.Eventually(t, func() bool {
		return w.Stats().Suppressed >= 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, w.Stats().Runs)

	w.ResetStats()
	assert.Equal(t, Stats{}, w.Stats())
}

func TestWatcher_ContextCancel(t *testing.T) {
	skipOnWindows(t)
	ctx, cancel := context.WithCancel(context.Background())
	w := newWatcher(t, t.TempDir(), Options{})
	require.NoError(t, w.Start(ctx))

	cancel()
	require.Eventually(t, func() bool { return !w.IsWatching() }, 5*time.Second, 10*time.Millisecond,
		"the event loop should stop reporting as watching once its context is done")
	require.NoError(t, w.Start(context.Background()))
	assert.False(t, w.IsWatching(), "a stopped watcher does not restart")

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

func TestWatcher_Relevant(t *testing.T) {
	w := &Watcher{root: "/repo", opts: Options{
		Extensions: []string{".js", ".TSX"},
		Exclude:    []string{"node_modules", "*.min.js"},
	}}

	assert.True(t, w.relevant("/repo/src/a.js"))
	assert.True(t, w.relevant("/repo/src/page.tsx"))
	assert.False(t, w.relevant("/repo/src/readme.md"))
	assert.False(t, w.relevant("/repo/node_modules/x/a.js"))
	assert.False(t, w.relevant("/repo/dist/app.min.js"))
}
