package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"neurolint/internal/config"
)

func newRecommendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <file>",
		Short: "Show which layers a file needs and why",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			rec := e.pipeline.Recommend(string(data), args[0])
			fmt.Fprint(cmd.OutOrStdout(), renderRecommendation(args[0], rec))
			return nil
		},
	}
}

func newLayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "List the available fix layers",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderLayers(e.pipeline.Catalog().Layers()))
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		runID string
		file  string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded pipeline runs",
		Long: `Lists recent runs from the history database, newest first.

Examples:
  neurolint history --limit 50
  neurolint history --file src/app/page.tsx
  neurolint history --run 6f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			st, err := e.openStore()
			if err != nil {
				return err
			}
			if st == nil {
				return fmt.Errorf("run history is disabled (store.enabled: false)")
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if runID != "" {
				attempts, err := st.Attempts(runID)
				if err != nil {
					return err
				}
				if len(attempts) == 0 {
					return fmt.Errorf("no run %s", runID)
				}
				fmt.Fprint(out, renderAttempts(runID, attempts))
				return nil
			}

			runs, err := st.RecentRuns(limit)
			if file != "" {
				runs, err = st.RunsForFile(file, limit)
			}
			if err != nil {
				return err
			}
			fmt.Fprint(out, renderHistory(runs))

			counts, err := st.LayerCounts()
			if err != nil {
				return err
			}
			fmt.Fprint(out, renderLayerCounts(counts))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the layer attempts of one run")
	cmd.Flags().StringVar(&file, "file", "", "Only runs for this file path")
	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .neurolint/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(resolveWorkspace())
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}
