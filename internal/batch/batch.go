// Package batch runs the layer pipeline over many files concurrently.
//
// Files are independent: each one gets its own pipeline run, and a failure in
// one file never stops its siblings. Cancellation is honored between files,
// never inside one.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"neurolint/internal/layer"
	"neurolint/internal/logging"
	"neurolint/internal/pipeline"
)

// Recorder persists finished runs. *store.RunStore satisfies it.
type Recorder interface {
	SaveRun(run *pipeline.Run) error
}

// Options configures a batch.
type Options struct {
	// Layers to run; nil asks the selector per file.
	Layers     []layer.ID
	DryRun     bool
	SingleFile bool
	// Concurrency bounds the number of files in flight. Values below one
	// mean one.
	Concurrency int
	// Extensions and Exclude filter directory walks. Files named
	// explicitly are always processed.
	Extensions []string
	Exclude    []string
}

// FileResult is the outcome for one file.
type FileResult struct {
	Path    string
	Run     *pipeline.Run
	Written bool
	// Err is an I/O or cancellation error; layer failures live in Run.
	Err       error
	RecordErr error
}

// Report aggregates a batch.
type Report struct {
	ID        string
	Files     []FileResult
	StartedAt time.Time
	Duration  time.Duration

	Changed   int
	Written   int
	Partial   int
	Errored   int
	Cancelled int
}

// Summary returns a one-line description of the batch.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d file(s): %d changed, %d written, %d with layer failures, %d errored, %d cancelled in %v",
		len(r.Files), r.Changed, r.Written, r.Partial, r.Errored, r.Cancelled, r.Duration.Round(time.Millisecond))
}

// Processor runs batches against one pipeline.
type Processor struct {
	pipeline *pipeline.Pipeline
	recorder Recorder
	opts     Options
}

// New creates a processor. recorder may be nil.
func New(p *pipeline.Pipeline, recorder Recorder, opts Options) *Processor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Processor{pipeline: p, recorder: recorder, opts: opts}
}

// Process expands paths into source files and runs each through the
// pipeline. The returned error is non-nil only when paths cannot be expanded
// or ctx was cancelled; the report is always populated with whatever ran.
func (p *Processor) Process(ctx context.Context, paths []string) (*Report, error) {
	report := &Report{ID: uuid.NewString(), StartedAt: time.Now()}
	timer := logging.StartTimer(logging.CategoryBatch, "batch "+report.ID)

	files, err := Collect(paths, p.opts.Extensions, p.opts.Exclude)
	if err != nil {
		return report, err
	}
	logging.Batch("Batch %s: %d file(s), concurrency=%d, dry_run=%v", report.ID, len(files), p.opts.Concurrency, p.opts.DryRun)

	report.Files = make([]FileResult, len(files))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, path := range files {
		if ctx.Err() != nil {
			report.Files[i] = FileResult{Path: path, Err: ctx.Err()}
			continue
		}
		i, path := i, path
		g.Go(func() error {
			report.Files[i] = p.ProcessFile(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	for _, fr := range report.Files {
		switch {
		case errors.Is(fr.Err, context.Canceled) || errors.Is(fr.Err, context.DeadlineExceeded):
			report.Cancelled++
		case fr.Err != nil:
			report.Errored++
		default:
			if fr.Run.Changed() {
				report.Changed++
			}
			if fr.Run.PartialFailure() {
				report.Partial++
			}
		}
		if fr.Written {
			report.Written++
		}
	}
	report.Duration = timer.Stop()
	logging.Batch("Batch %s: %s", report.ID, report.Summary())

	return report, ctx.Err()
}

// ProcessFile reads, transforms, and (unless dry-run) writes one file.
func (p *Processor) ProcessFile(ctx context.Context, path string) FileResult {
	res := FileResult{Path: path}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		res.Err = err
		logging.BatchError("%s: %v", path, err)
		return res
	}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = err
		logging.BatchError("%s: %v", path, err)
		return res
	}

	run := p.pipeline.ProcessFile(string(data), path, p.opts.DryRun, p.opts.Layers,
		pipeline.FileOptions{SingleFile: p.opts.SingleFile})
	res.Run = run

	if !p.opts.DryRun && run.CurrentCode != run.OriginalCode {
		if err := os.WriteFile(path, []byte(run.CurrentCode), info.Mode().Perm()); err != nil {
			res.Err = fmt.Errorf("write %s: %w", path, err)
			logging.BatchError("%v", res.Err)
		} else {
			res.Written = true
			logging.BatchDebug("%s: wrote %d change(s)", path, run.TotalChanges)
		}
	}

	if p.recorder != nil {
		if err := p.recorder.SaveRun(run); err != nil {
			res.RecordErr = err
			logging.BatchError("%s: record run: %v", path, err)
		}
	}
	return res
}

// Collect expands files and directories into a sorted, de-duplicated file
// list. Directories are walked recursively; entries whose base name matches
// an exclude glob are skipped, and only files with one of extensions are
// kept (all files when extensions is empty).
func Collect(paths []string, extensions, exclude []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != root && excluded(d.Name(), exclude) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if hasExtension(path, extensions) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

func excluded(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// MemoryRecorder keeps runs in memory. Useful when history is disabled but a
// caller still wants the runs of the last batch.
type MemoryRecorder struct {
	mu   sync.Mutex
	runs []*pipeline.Run
}

// SaveRun implements Recorder.
func (m *MemoryRecorder) SaveRun(run *pipeline.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// Runs returns the recorded runs.
func (m *MemoryRecorder) Runs() []*pipeline.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*pipeline.Run(nil), m.runs...)
}
