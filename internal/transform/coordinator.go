package transform

import (
	"neurolint/internal/layer"
	"neurolint/internal/logging"
)

// Result is the outcome of one layer on one text. On failure Code is the
// unchanged input.
type Result struct {
	Code     string
	Success  bool
	Strategy Strategy
	Changes  int
	Err      error
	// ASTErr keeps the AST failure that triggered a pattern fallback.
	ASTErr error
}

// Coordinator decides between the AST and pattern strategies for a layer and
// records the outcome in its Stats.
type Coordinator struct {
	ast     ASTExecutor
	pattern PatternExecutor
	stats   *Stats
}

// NewCoordinator creates a coordinator that reports into stats. A nil stats
// gets a private instance.
func NewCoordinator(stats *Stats) *Coordinator {
	if stats == nil {
		stats = &Stats{}
	}
	return &Coordinator{stats: stats}
}

// Stats returns the counters this coordinator updates.
func (c *Coordinator) Stats() *Stats {
	return c.stats
}

// Transform runs desc against in. It never mutates anything but its counters.
func (c *Coordinator) Transform(in Input, desc layer.Descriptor) Result {
	c.stats.Total.Add(1)

	if !desc.HasAST() && !desc.HasPattern() {
		c.stats.Failures.Add(1)
		err := &MissingTransformError{Layer: desc.ID}
		logging.CoordinatorWarn("%v", err)
		return Result{Code: in.Code, Strategy: StrategyNone, Err: err}
	}

	if !desc.SupportsAST {
		return c.runPattern(in, desc, nil)
	}

	out, changes, astErr := c.ast.Transform(in, desc)
	if astErr == nil {
		c.stats.ASTSuccesses.Add(1)
		logging.CoordinatorDebug("layer %d: ast ok, %d change(s)", desc.ID, changes)
		return Result{Code: out, Success: true, Strategy: StrategyAST, Changes: changes}
	}

	if !desc.HasPattern() || !FallbackEligible(astErr) {
		c.stats.Failures.Add(1)
		err := &NoFallbackError{Layer: desc.ID, ASTErr: astErr}
		logging.CoordinatorWarn("%v", err)
		return Result{Code: in.Code, Strategy: StrategyNone, Err: err, ASTErr: astErr}
	}

	logging.Coordinator("layer %d: ast failed, falling back to pattern: %v", desc.ID, astErr)
	return c.runPattern(in, desc, astErr)
}

func (c *Coordinator) runPattern(in Input, desc layer.Descriptor, astErr error) Result {
	out, changes, err := c.pattern.Transform(in, desc)
	if err != nil {
		c.stats.Failures.Add(1)
		logging.CoordinatorWarn("layer %d: pattern failed: %v", desc.ID, err)
		return Result{Code: in.Code, Strategy: StrategyPattern, Err: err, ASTErr: astErr}
	}

	if astErr != nil {
		c.stats.PatternFallbacks.Add(1)
	} else {
		c.stats.PatternDirect.Add(1)
	}
	return Result{Code: out, Success: true, Strategy: StrategyPattern, Changes: changes, ASTErr: astErr}
}
