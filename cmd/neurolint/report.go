package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"neurolint/internal/batch"
	"neurolint/internal/diff"
	"neurolint/internal/layer"
	"neurolint/internal/pipeline"
	"neurolint/internal/selector"
	"neurolint/internal/store"
	"neurolint/internal/transform"
)

// Semantic colors
var (
	colorSuccess     = lipgloss.Color("#8BC34A")
	colorWarning     = lipgloss.Color("#FFC107")
	colorDestructive = lipgloss.Color("#e53935")
	colorInfo        = lipgloss.Color("#2196F3")
	colorMuted       = lipgloss.Color("#8a94a6")
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorDestructive)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
)

func statusStyle(s pipeline.Status) lipgloss.Style {
	switch s {
	case pipeline.StatusSucceeded:
		return successStyle
	case pipeline.StatusRolledBack:
		return warnStyle
	case pipeline.StatusFailed:
		return errorStyle
	default:
		return mutedStyle
	}
}

func renderFileResult(fr batch.FileResult) string {
	var sb strings.Builder
	switch {
	case fr.Err != nil:
		fmt.Fprintf(&sb, "%s %s: %v\n", errorStyle.Render("✗"), fr.Path, fr.Err)
		return sb.String()
	case fr.Run.PartialFailure():
		fmt.Fprintf(&sb, "%s %s\n", warnStyle.Render("!"), fr.Path)
	case fr.Run.Changed():
		fmt.Fprintf(&sb, "%s %s\n", successStyle.Render("✓"), fr.Path)
	default:
		fmt.Fprintf(&sb, "%s %s\n", mutedStyle.Render("·"), fr.Path)
	}

	for _, a := range fr.Run.Attempts {
		line := fmt.Sprintf("    %-2d %-14s %-11s %-8s", int(a.LayerID), a.LayerName, a.Status, a.Strategy)
		if a.Changes > 0 {
			line += fmt.Sprintf(" %d change(s)", a.Changes)
		}
		if a.Error != "" {
			line += " " + a.Error
		}
		sb.WriteString(statusStyle(a.Status).Render(line))
		sb.WriteByte('\n')
	}
	if fr.Run.Recommendation != nil && len(fr.Run.Recommendation.Layers) == 0 {
		sb.WriteString(mutedStyle.Render("    no layers recommended"))
		sb.WriteByte('\n')
	}
	if fr.Written {
		sb.WriteString(infoStyle.Render("    written"))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func renderReport(r *batch.Report) string {
	var sb strings.Builder
	for _, fr := range r.Files {
		sb.WriteString(renderFileResult(fr))
	}
	sb.WriteString(headerStyle.Render(r.Summary()))
	sb.WriteByte('\n')
	return sb.String()
}

func renderDiff(d *diff.FileDiff) string {
	if !d.Changed() {
		return ""
	}
	var sb strings.Builder
	for _, line := range strings.SplitAfter(d.Unified(), "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			sb.WriteString(headerStyle.Render(strings.TrimSuffix(line, "\n")) + "\n")
		case strings.HasPrefix(line, "@@"):
			sb.WriteString(infoStyle.Render(strings.TrimSuffix(line, "\n")) + "\n")
		case strings.HasPrefix(line, "+"):
			sb.WriteString(successStyle.Render(strings.TrimSuffix(line, "\n")) + "\n")
		case strings.HasPrefix(line, "-"):
			sb.WriteString(errorStyle.Render(strings.TrimSuffix(line, "\n")) + "\n")
		default:
			sb.WriteString(line)
		}
	}
	fmt.Fprintf(&sb, "%s\n", mutedStyle.Render(fmt.Sprintf("%d added, %d removed", d.Added, d.Removed)))
	return sb.String()
}

func renderStats(s transform.StatsSnapshot) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Strategy statistics"))
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "  transforms         %d\n", s.Total)
	fmt.Fprintf(&sb, "  ast                %d\n", s.ASTSuccesses)
	fmt.Fprintf(&sb, "  pattern fallback   %d\n", s.PatternFallbacks)
	fmt.Fprintf(&sb, "  pattern only       %d\n", s.PatternDirect)
	fmt.Fprintf(&sb, "  failed             %d\n", s.Failures)
	fmt.Fprintf(&sb, "  fallback rate      %.1f%%\n", 100*s.FallbackRate())
	return sb.String()
}

func renderRecommendation(path string, rec selector.Recommendation) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(path))
	sb.WriteByte('\n')
	if len(rec.Layers) == 0 {
		sb.WriteString(mutedStyle.Render("  no layers recommended"))
		sb.WriteByte('\n')
		return sb.String()
	}
	ids := make([]string, len(rec.Layers))
	for i, id := range rec.Layers {
		ids[i] = fmt.Sprint(int(id))
	}
	fmt.Fprintf(&sb, "  layers: %s\n", strings.Join(ids, ","))
	for _, reason := range rec.Reasons {
		fmt.Fprintf(&sb, "  %s %s\n", infoStyle.Render("•"), reason)
	}
	return sb.String()
}

func renderLayers(descs []layer.Descriptor) string {
	var sb strings.Builder
	for _, d := range descs {
		mode := "pattern"
		switch {
		case d.HasAST() && d.HasPattern():
			mode = "ast+pattern"
		case d.HasAST():
			mode = "ast"
		}
		fmt.Fprintf(&sb, "%s %-14s %s\n", headerStyle.Render(fmt.Sprintf("%d", int(d.ID))), d.Name, mutedStyle.Render(mode))
		if d.Description != "" {
			fmt.Fprintf(&sb, "  %s\n", d.Description)
		}
		if len(d.FilePatterns) > 0 {
			fmt.Fprintf(&sb, "  files: %s\n", strings.Join(d.FilePatterns, ", "))
		}
	}
	return sb.String()
}

func renderHistory(runs []store.RunRecord) string {
	if len(runs) == 0 {
		return mutedStyle.Render("No runs recorded") + "\n"
	}
	var sb strings.Builder
	for _, r := range runs {
		mark := mutedStyle.Render("·")
		switch {
		case r.LayersFailed > 0 || r.LayersRolledBack > 0:
			mark = warnStyle.Render("!")
		case r.Changed():
			mark = successStyle.Render("✓")
		}
		dry := ""
		if r.DryRun {
			dry = " (dry run)"
		}
		fmt.Fprintf(&sb, "%s %s %s %s: %d change(s), %d ok, %d failed, %d rolled back%s\n",
			mark,
			mutedStyle.Render(r.StartedAt.Format(time.DateTime)),
			mutedStyle.Render(r.ID),
			r.FilePath, r.TotalChanges, r.LayersSucceeded, r.LayersFailed, r.LayersRolledBack, dry)
	}
	return sb.String()
}

func renderAttempts(runID string, attempts []store.AttemptRecord) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Run " + runID))
	sb.WriteByte('\n')
	for _, a := range attempts {
		line := fmt.Sprintf("  %-2d %-14s %-11s %-8s %v", a.LayerID, a.LayerName, a.Status, a.Strategy, a.Duration.Round(time.Microsecond))
		if a.Error != "" {
			line += " " + a.Error
		}
		if a.ASTError != "" {
			line += " (ast: " + a.ASTError + ")"
		}
		sb.WriteString(statusStyle(pipeline.Status(a.Status)).Render(line))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func renderLayerCounts(counts map[int]map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Layer outcomes"))
	sb.WriteByte('\n')
	for _, id := range ids {
		c := counts[id]
		fmt.Fprintf(&sb, "  %-2d %s %s %s %s\n", id,
			successStyle.Render(fmt.Sprintf("%d ok", c[string(pipeline.StatusSucceeded)])),
			errorStyle.Render(fmt.Sprintf("%d failed", c[string(pipeline.StatusFailed)])),
			warnStyle.Render(fmt.Sprintf("%d rolled back", c[string(pipeline.StatusRolledBack)])),
			mutedStyle.Render(fmt.Sprintf("%d skipped", c[string(pipeline.StatusSkipped)])))
	}
	return sb.String()
}
