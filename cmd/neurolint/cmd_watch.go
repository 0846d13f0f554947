package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"neurolint/internal/batch"
	"neurolint/internal/metrics"
	"neurolint/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		layerFlags  []int
		dryRun      bool
		metricsAddr string
		initial     bool
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-run fix layers whenever source files change",
		Long: `Watches a directory tree and runs the pipeline on each file once its
changes settle (watch.debounce in config). Writes made by neurolint itself
are recognized and ignored.

With --metrics-addr (or metrics.addr in config) coordinator statistics are
served in Prometheus format.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			root := e.workspace
			if len(args) == 1 {
				root = args[0]
			}

			st, err := e.openStore()
			if err != nil {
				logger.Warn("Run history unavailable", zap.Error(err))
			}
			var (
				recorder batch.Recorder
				history  watch.History
			)
			if st != nil {
				defer st.Close()
				recorder, history = st, st
			}

			reg, err := metrics.NewRegistry(e.stats)
			if err != nil {
				return err
			}
			if metricsAddr == "" {
				metricsAddr = e.cfg.Metrics.Addr
			}
			if metricsAddr != "" {
				server := metrics.SetupEndpoint(metricsAddr, e.cfg.Metrics.Path, reg)
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = server.Shutdown(ctx)
				}()
				logger.Info("Serving metrics", zap.String("addr", metricsAddr))
			}

			proc := batch.New(e.pipeline, recorder, batch.Options{
				Layers:      pickLayers(layerFlags, e.cfg.Pipeline.Layers),
				DryRun:      dryRun || e.cfg.Pipeline.DryRun,
				SingleFile:  e.cfg.Pipeline.SingleFile,
				Concurrency: e.cfg.GetConcurrency(),
				Extensions:  e.cfg.Pipeline.Extensions,
				Exclude:     e.cfg.Pipeline.Exclude,
			})

			out := cmd.OutOrStdout()
			w, err := watch.New(root, proc, watch.Options{
				Debounce:   e.cfg.GetDebounce(),
				Extensions: e.cfg.Pipeline.Extensions,
				Exclude:    e.cfg.Pipeline.Exclude,
				History:    history,
				OnResult: func(fr batch.FileResult) {
					reg.Runs.ObserveRun(fr.Run)
					fmt.Fprint(out, renderFileResult(fr))
				},
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if initial {
				report, err := proc.Process(ctx, []string{root})
				if report != nil {
					for _, fr := range report.Files {
						reg.Runs.ObserveRun(fr.Run)
					}
					fmt.Fprint(out, renderReport(report))
				}
				if err != nil {
					return err
				}
			}

			if err := w.Start(ctx); err != nil {
				w.Stop()
				return err
			}
			logger.Info("Watching", zap.String("root", root), zap.Duration("debounce", e.cfg.GetDebounce()))
			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", root)

			<-ctx.Done()
			w.Stop()

			s := w.Stats()
			fmt.Fprintf(out, "Stopped: %d run(s), %d written, %d own write(s) ignored, %d error(s)\n",
				s.Runs, s.Written, s.Suppressed, s.Errors)
			fmt.Fprint(out, renderStats(e.stats.Snapshot()))
			return nil
		},
	}

	cmd.Flags().IntSliceVarP(&layerFlags, "layers", "l", nil, "Layers to run (default: configured or recommended)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing files")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
	cmd.Flags().BoolVar(&initial, "initial", false, "Process every file once before watching")
	return cmd
}
