package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurolint/internal/layer"
	"neurolint/internal/pipeline"
	"neurolint/internal/transform"
)

func openTestStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id, path string, started time.Time) *pipeline.Run {
	return &pipeline.Run{
		ID:               id,
		FilePath:         path,
		OriginalCode:     "console.log(1);\nconst a = 1;\n",
		CurrentCode:      "const a = 1;\n",
		ProposedCode:     "const a = 1;\n",
		TotalChanges:     1,
		LayersSucceeded:  1,
		LayersRolledBack: 1,
		StartedAt:        started,
		Duration:         3 * time.Millisecond,
		Attempts: []pipeline.Attempt{
			{
				LayerID: 2, LayerName: "patterns", Strategy: transform.StrategyPattern,
				Status: pipeline.StatusSucceeded, Success: true, Changes: 1, Duration: time.Millisecond,
			},
			{
				LayerID: 3, LayerName: "components", Strategy: transform.StrategyPattern,
				Status: pipeline.StatusRolledBack, Error: "validation failed: output is empty",
				ASTError: "parse failed", Duration: 2 * time.Millisecond,
			},
		},
	}
}

func TestRunStore_SaveAndRead(t *testing.T) {
	s := openTestStore(t)
	started := time.Unix(1700000000, 0)
	require.NoError(t, s.SaveRun(sampleRun("run-1", "src/a.js", started)))

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	r := runs[0]
	assert.Equal(t, "run-1", r.ID)
	assert.Equal(t, "src/a.js", r.FilePath)
	assert.Equal(t, 1, r.TotalChanges)
	assert.Equal(t, 1, r.LayersSucceeded)
	assert.Equal(t, 1, r.LayersRolledBack)
	assert.False(t, r.DryRun)
	assert.False(t, r.Recommended)
	assert.True(t, r.Changed())
	assert.Equal(t, 3*time.Millisecond, r.Duration)
	assert.True(t, started.Equal(r.StartedAt))
	assert.Equal(t, Hash("const a = 1;\n"), r.OutputHash)

	attempts, err := s.Attempts("run-1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 2, attempts[0].LayerID)
	assert.Equal(t, "succeeded", attempts[0].Status)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, 3, attempts[1].LayerID)
	assert.Equal(t, "rolled_back", attempts[1].Status)
	assert.Equal(t, "parse failed", attempts[1].ASTError)
	assert.Equal(t, "pattern", attempts[1].Strategy)
}

func TestRunStore_SaveReplaces(t *testing.T) {
	s := openTestStore(t)
	run := sampleRun("run-1", "a.js", time.Now())
	require.NoError(t, s.SaveRun(run))

	run.Attempts = run.Attempts[:1]
	run.LayersRolledBack = 0
	require.NoError(t, s.SaveRun(run))

	runs, err := s.RecentRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 0, runs[0].LayersRolledBack)

	attempts, err := s.Attempts("run-1")
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestRunStore_RecentOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	base := time.Unix(1700000000, 0)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.SaveRun(sampleRun(id, "a.js", base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := s.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
}

func TestRunStore_RunsForFile(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.SaveRun(sampleRun("a1", "a.js", now)))
	require.NoError(t, s.SaveRun(sampleRun("b1", "b.js", now)))

	runs, err := s.RunsForFile("b.js", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "b1", runs[0].ID)
}

func TestRunStore_WroteContent(t *testing.T) {
	s := openTestStore(t)

	wrote, err := s.WroteContent("a.js", "const a = 1;\n")
	require.NoError(t, err)
	assert.False(t, wrote, "no history yet")

	require.NoError(t, s.SaveRun(sampleRun("r1", "a.js", time.Now())))
	wrote, err = s.WroteContent("a.js", "const a = 1;\n")
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = s.WroteContent("a.js", "const a = 2;\n")
	require.NoError(t, err)
	assert.False(t, wrote, "file edited since the run")

	dry := sampleRun("r2", "b.js", time.Now())
	dry.DryRun = true
	require.NoError(t, s.SaveRun(dry))
	wrote, err = s.WroteContent("b.js", "const a = 1;\n")
	require.NoError(t, err)
	assert.False(t, wrote, "dry runs never write")
}

func TestRunStore_LayerCounts(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveRun(sampleRun("r1", "a.js", time.Now())))
	require.NoError(t, s.SaveRun(sampleRun("r2", "b.js", time.Now())))

	counts, err := s.LayerCounts()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[2]["succeeded"])
	assert.Equal(t, 2, counts[3]["rolled_back"])
}

func TestRunStore_PipelineRun(t *testing.T) {
	s := openTestStore(t)
	cat := layer.MustCatalog(layer.Descriptor{
		ID:   2,
		Name: "noop",
		Pattern: func(src string) (string, int, error) {
			return src, 0, nil
		},
	})
	p := pipeline.New(cat, nil, nil, nil)
	run := p.ProcessFile("const a = 1;", "a.js", true, []layer.ID{2, 9}, pipeline.FileOptions{})

	require.NoError(t, s.SaveRun(run))
	attempts, err := s.Attempts(run.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 9, attempts[1].LayerID)
	assert.Equal(t, "failed", attempts[1].Status)
	assert.Contains(t, attempts[1].Error, "unknown layer")
}

func TestRunStore_ConcurrentSaves(t *testing.T) {
	s := openTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run := sampleRun(time.Now().String()+string(rune('a'+i)), "a.js", time.Now())
			assert.NoError(t, s.SaveRun(run))
		}(i)
	}
	wg.Wait()

	runs, err := s.RecentRuns(100)
	require.NoError(t, err)
	assert.Len(t, runs, 8)
}

func TestRunStore_Closed(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.SaveRun(sampleRun("x", "a.js", time.Now())), ErrClosed)
	_, err = s.RecentRuns(1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Error(t, s.SaveRun(nil))
}
