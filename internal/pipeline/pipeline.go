// Package pipeline runs an ordered set of layers over one file, validating
// after every layer and rolling back any layer whose output is rejected.
//
// A failing or rolled-back layer never stops the run: later layers continue
// from the last validated code.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"neurolint/internal/layer"
	"neurolint/internal/logging"
	"neurolint/internal/selector"
	"neurolint/internal/transform"
	"neurolint/internal/validation"
)

// ErrUnknownLayer is recorded for requested layer IDs missing from the catalog.
var ErrUnknownLayer = errors.New("unknown layer")

// Options controls a single Run.
type Options struct {
	// DryRun executes every layer but leaves Run.CurrentCode at the original.
	DryRun bool
	// SingleFile skips layers whose FilePatterns do not match the file.
	SingleFile bool
}

// FileOptions are the ProcessFile options beyond dry-run.
type FileOptions struct {
	SingleFile bool
}

// Pipeline is the layer orchestrator. It holds no per-file state and may be
// shared by concurrent callers.
type Pipeline struct {
	catalog     layer.Catalog
	coordinator *transform.Coordinator
	validator   *validation.Validator
	selector    selector.Recommender
}

// New creates a pipeline. Nil collaborators get defaults; only the catalog
// is required.
func New(catalog layer.Catalog, coord *transform.Coordinator, v *validation.Validator, sel selector.Recommender) *Pipeline {
	if coord == nil {
		coord = transform.NewCoordinator(nil)
	}
	if v == nil {
		v = validation.New()
	}
	if sel == nil {
		sel = selector.New()
	}
	return &Pipeline{
		catalog:     catalog,
		coordinator: coord,
		validator:   v,
		selector:    sel,
	}
}

// Catalog returns the layer catalog.
func (p *Pipeline) Catalog() layer.Catalog {
	return p.catalog
}

// Coordinator returns the transformation coordinator and its stats.
func (p *Pipeline) Coordinator() *transform.Coordinator {
	return p.coordinator
}

// Recommend delegates to the configured selector.
func (p *Pipeline) Recommend(code, path string) selector.Recommendation {
	return p.selector.Recommend(code, path)
}

type step struct {
	id   layer.ID
	desc layer.Descriptor
	ok   bool
}

// Run executes layers against code in ascending ID order, regardless of the
// order given.
func (p *Pipeline) Run(code, path string, layers []layer.Descriptor, opts Options) *Run {
	sorted := layer.Sorted(layers)
	steps := make([]step, 0, len(sorted))
	for _, d := range sorted {
		steps = append(steps, step{id: d.ID, desc: d, ok: true})
	}
	return p.execute(p.newRun(code, path, opts), steps, opts)
}

// ProcessFile resolves layerIDs against the catalog and runs them. A nil
// layerIDs asks the selector which layers apply. Duplicate IDs collapse;
// unknown IDs become failed attempts.
func (p *Pipeline) ProcessFile(code, path string, dryRun bool, layerIDs []layer.ID, fopts FileOptions) *Run {
	opts := Options{DryRun: dryRun, SingleFile: fopts.SingleFile}
	run := p.newRun(code, path, opts)

	if layerIDs == nil {
		rec := p.selector.Recommend(code, path)
		run.Recommendation = &rec
		layerIDs = rec.Layers
		logging.PipelineDebug("%s: selector picked %v", path, layerIDs)
	}

	ids := layer.SortIDs(layerIDs)
	steps := make([]step, 0, len(ids))
	for _, id := range ids {
		d, ok := p.catalog.Lookup(id)
		steps = append(steps, step{id: id, desc: d, ok: ok})
	}
	return p.execute(run, steps, opts)
}

func (p *Pipeline) newRun(code, path string, opts Options) *Run {
	return &Run{
		ID:           uuid.NewString(),
		FilePath:     path,
		OriginalCode: code,
		CurrentCode:  code,
		DryRun:       opts.DryRun,
		StartedAt:    time.Now(),
	}
}

func (p *Pipeline) execute(run *Run, steps []step, opts Options) *Run {
	timer := logging.StartTimer(logging.CategoryPipeline, "run "+run.FilePath)
	current := run.CurrentCode

	for _, s := range steps {
		att := p.runStep(run, s, current, opts)
		if att.Status == StatusSucceeded {
			current = att.OutputCode
		}
		run.Attempts = append(run.Attempts, att)
	}

	run.ProposedCode = current
	if opts.DryRun {
		run.CurrentCode = run.OriginalCode
	} else {
		run.CurrentCode = current
	}
	run.Duration = timer.Stop()

	if run.PartialFailure() {
		logging.PipelineWarn("%s", run.Summary())
	} else {
		logging.Pipeline("%s", run.Summary())
	}
	return run
}

func (p *Pipeline) runStep(run *Run, s step, current string, opts Options) Attempt {
	start := time.Now()
	att := Attempt{
		LayerID:    s.id,
		LayerName:  s.desc.Name,
		Strategy:   transform.StrategyNone,
		InputCode:  current,
		OutputCode: current,
	}

	if !s.ok {
		att.Status = StatusFailed
		att.Err = fmt.Errorf("layer %d: %w", s.id, ErrUnknownLayer)
		att.Error = att.Err.Error()
		run.LayersFailed++
		logging.PipelineWarn("%s: %v", run.FilePath, att.Err)
		return finish(&att, start)
	}

	if opts.SingleFile && !s.desc.AppliesTo(run.FilePath) {
		att.Status = StatusSkipped
		run.LayersSkipped++
		logging.PipelineDebug("%s: layer %d does not apply, skipped", run.FilePath, s.id)
		return finish(&att, start)
	}

	res := p.coordinator.Transform(transform.Input{Code: current, Path: run.FilePath}, s.desc)
	att.Strategy = res.Strategy
	if res.ASTErr != nil {
		att.ASTError = res.ASTErr.Error()
	}

	if !res.Success {
		att.Status = StatusFailed
		att.Err = res.Err
		att.Error = res.Err.Error()
		run.LayersFailed++
		logging.PipelineWarn("%s: layer %d failed: %v", run.FilePath, s.id, res.Err)
		return finish(&att, start)
	}

	att.OutputCode = res.Code
	verdict := p.validator.Validate(current, res.Code)
	if !verdict.Valid {
		att.Status = StatusRolledBack
		att.Err = verdict.Err()
		att.Error = att.Err.Error()
		run.LayersRolledBack++
		logging.PipelineWarn("%s: layer %d rolled back: %s", run.FilePath, s.id, verdict.Reason)
		return finish(&att, start)
	}

	att.Status = StatusSucceeded
	att.Success = true
	att.Changes = res.Changes
	run.TotalChanges += res.Changes
	run.LayersSucceeded++
	logging.PipelineDebug("%s: layer %d ok via %s, %d change(s)", run.FilePath, s.id, res.Strategy, res.Changes)
	return finish(&att, start)
}

func finish(att *Attempt, start time.Time) Attempt {
	att.Duration = time.Since(start)
	return *att
}
