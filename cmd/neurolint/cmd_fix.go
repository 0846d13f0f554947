package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"neurolint/internal/batch"
	"neurolint/internal/diff"
	"neurolint/internal/layer"
)

func newFixCmd() *cobra.Command {
	var (
		layerFlags []int
		dryRun     bool
		singleFile bool
		showDiff   bool
		showStats  bool
		noHistory  bool
	)

	cmd := &cobra.Command{
		Use:   "fix [paths...]",
		Short: "Run fix layers over files and directories",
		Long: `Runs the requested layers over every matching source file.

Without --layers the configured default layers are used; with no configured
default, each file gets the layers the selector recommends for it.

Examples:
  neurolint fix src/
  neurolint fix --layers 2,3 --dry-run --diff app/page.tsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				args = []string{e.workspace}
			}

			opts := batch.Options{
				Layers:      pickLayers(layerFlags, e.cfg.Pipeline.Layers),
				DryRun:      dryRun || e.cfg.Pipeline.DryRun,
				SingleFile:  singleFile || e.cfg.Pipeline.SingleFile,
				Concurrency: e.cfg.GetConcurrency(),
				Extensions:  e.cfg.Pipeline.Extensions,
				Exclude:     e.cfg.Pipeline.Exclude,
			}

			var recorder batch.Recorder
			if !noHistory {
				st, err := e.openStore()
				if err != nil {
					logger.Warn("Run history unavailable", zap.Error(err))
				} else if st != nil {
					defer st.Close()
					recorder = st
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("Fixing", zap.Strings("paths", args), zap.Bool("dry_run", opts.DryRun))
			report, err := batch.New(e.pipeline, recorder, opts).Process(ctx, args)
			if report != nil {
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderReport(report))
				if showDiff {
					engine, derr := diff.NewEngine(3, 64)
					if derr != nil {
						return derr
					}
					for _, fr := range report.Files {
						if fr.Run != nil && fr.Run.Changed() {
							fmt.Fprint(out, renderDiff(engine.Compute(fr.Path, fr.Run.OriginalCode, fr.Run.ProposedCode)))
						}
					}
				}
				if showStats {
					fmt.Fprint(out, renderStats(e.stats.Snapshot()))
				}
			}
			if err != nil {
				return err
			}
			if report.Errored > 0 {
				return fmt.Errorf("%d file(s) could not be processed", report.Errored)
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVarP(&layerFlags, "layers", "l", nil, "Layers to run, e.g. 1,3,5 (default: configured or recommended)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing files")
	cmd.Flags().BoolVar(&singleFile, "single-file", false, "Skip layers whose file patterns do not match each file")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Print a unified diff of proposed changes")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print AST/pattern strategy statistics")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record runs in the history database")
	return cmd
}

// pickLayers returns the flag layers, else the configured layers, else nil
// (ask the selector).
func pickLayers(flags, configured []int) []layer.ID {
	src := flags
	if len(src) == 0 {
		src = configured
	}
	if len(src) == 0 {
		return nil
	}
	ids := make([]layer.ID, len(src))
	for i, n := range src {
		ids[i] = layer.ID(n)
	}
	return ids
}
