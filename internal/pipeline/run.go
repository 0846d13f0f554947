package pipeline

import (
	"fmt"
	"time"

	"neurolint/internal/layer"
	"neurolint/internal/selector"
	"neurolint/internal/transform"
)

// Status is the final outcome of one layer attempt.
type Status string

const (
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
	StatusSkipped    Status = "skipped"
)

// Attempt records one layer's execution against one file.
type Attempt struct {
	LayerID   layer.ID           `json:"layer_id"`
	LayerName string             `json:"layer_name"`
	Strategy  transform.Strategy `json:"strategy"`
	Status    Status             `json:"status"`
	Success   bool               `json:"success"`
	Error     string             `json:"error,omitempty"`
	// ASTError is the AST failure that preceded a pattern fallback, if any.
	ASTError string `json:"ast_error,omitempty"`
	// InputCode is what the layer received. OutputCode is what it produced,
	// including output that validation later rejected.
	InputCode  string        `json:"-"`
	OutputCode string        `json:"-"`
	Changes    int           `json:"changes"`
	Duration   time.Duration `json:"duration"`

	Err error `json:"-"`
}

// Run is the report for one file across all requested layers. It is owned by
// the call that produced it.
type Run struct {
	ID       string `json:"id"`
	FilePath string `json:"file_path"`

	OriginalCode string `json:"-"`
	// CurrentCode is the final code: the last validated output, or
	// OriginalCode in dry-run mode.
	CurrentCode string `json:"-"`
	// ProposedCode is the last validated output regardless of dry-run.
	ProposedCode string `json:"-"`
	DryRun       bool   `json:"dry_run"`

	Attempts []Attempt `json:"attempts"`

	TotalChanges     int `json:"total_changes"`
	LayersSucceeded  int `json:"layers_succeeded"`
	LayersFailed     int `json:"layers_failed"`
	LayersRolledBack int `json:"layers_rolled_back"`
	LayersSkipped    int `json:"layers_skipped"`

	// Recommendation is set when the layer list came from the selector.
	Recommendation *selector.Recommendation `json:"recommendation,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Changed reports whether the run produced code different from the input,
// whether or not it was committed.
func (r *Run) Changed() bool {
	return r.ProposedCode != r.OriginalCode
}

// PartialFailure reports whether any layer failed or was rolled back.
func (r *Run) PartialFailure() bool {
	return r.LayersFailed > 0 || r.LayersRolledBack > 0
}

// Summary is a one-line description for logs and the CLI.
func (r *Run) Summary() string {
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	return fmt.Sprintf("%s: %d succeeded, %d failed, %d rolled back, %d skipped, %d change(s)%s",
		r.FilePath, r.LayersSucceeded, r.LayersFailed, r.LayersRolledBack, r.LayersSkipped, r.TotalChanges, mode)
}

// Attempt returns the attempt for id, if that layer ran.
func (r *Run) Attempt(id layer.ID) (Attempt, bool) {
	for _, a := range r.Attempts {
		if a.LayerID == id {
			return a, true
		}
	}
	return Attempt{}, false
}
