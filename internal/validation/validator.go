// Package validation is the structural safety net run after every layer.
// It is deliberately shallow: delimiter balance plus caller-supplied checks,
// never a second full parse.
package validation

import (
	"strings"

	"neurolint/internal/logging"
)

// Verdict is the validator's decision for one layer output.
type Verdict struct {
	Valid  bool
	Reason string
}

// Err returns a *Failure for an invalid verdict, nil otherwise.
func (v Verdict) Err() error {
	if v.Valid {
		return nil
	}
	return &Failure{Reason: v.Reason}
}

// Failure is the error form of a rejected verdict.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string {
	return "validation failed: " + f.Reason
}

// Check is an additional structural check. It returns a non-empty reason to
// reject after.
type Check func(before, after string) string

// Validator decides whether a layer's output may replace its input.
type Validator struct {
	checks []Check
}

// New creates a validator running the built-in checks followed by extra.
func New(extra ...Check) *Validator {
	return &Validator{checks: extra}
}

// Validate accepts or rejects after as the successor of before.
//
// Identical texts are always valid. Otherwise blank output and output with
// any unmatched or mismatched delimiter are rejected, whatever the state of
// before.
func (v *Validator) Validate(before, after string) Verdict {
	if before == after {
		return Verdict{Valid: true}
	}
	if strings.TrimSpace(after) == "" {
		return v.reject("output is empty")
	}
	if got := scanDelimiters(after); got.errors > 0 {
		return v.reject(got.first)
	}

	for _, check := range v.checks {
		if reason := check(before, after); reason != "" {
			return v.reject(reason)
		}
	}
	return Verdict{Valid: true}
}

func (v *Validator) reject(reason string) Verdict {
	logging.Validator("rejected: %s", reason)
	return Verdict{Valid: false, Reason: reason}
}

// Balanced reports whether code has matched, correctly nested delimiters.
func Balanced(code string) bool {
	return scanDelimiters(code).errors == 0
}
