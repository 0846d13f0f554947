package transform

import "sync/atomic"

// Stats counts coordinator outcomes. Counters only ever increase until Reset
// and are safe to update from concurrent pipeline runs.
type Stats struct {
	ASTSuccesses     atomic.Int64
	PatternFallbacks atomic.Int64
	PatternDirect    atomic.Int64
	Failures         atomic.Int64
	Total            atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	ASTSuccesses     int64 `json:"ast_successes"`
	PatternFallbacks int64 `json:"pattern_fallbacks"`
	PatternDirect    int64 `json:"pattern_direct"`
	Failures         int64 `json:"failures"`
	Total            int64 `json:"total"`
}

// Snapshot reads every counter.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ASTSuccesses:     s.ASTSuccesses.Load(),
		PatternFallbacks: s.PatternFallbacks.Load(),
		PatternDirect:    s.PatternDirect.Load(),
		Failures:         s.Failures.Load(),
		Total:            s.Total.Load(),
	}
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.ASTSuccesses.Store(0)
	s.PatternFallbacks.Store(0)
	s.PatternDirect.Store(0)
	s.Failures.Store(0)
	s.Total.Store(0)
}

// FallbackRate is the share of AST attempts that ended on the pattern path.
func (s StatsSnapshot) FallbackRate() float64 {
	attempted := s.ASTSuccesses + s.PatternFallbacks
	if attempted == 0 {
		return 0
	}
	return float64(s.PatternFallbacks) / float64(attempted)
}
