package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	Long:  `List stored runs, newest first, with their phase and result counts.`,
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a stored run",
	Long: `Show a stored run: its decision ledger, how each topic was negotiated
and the terminal result of every generation request.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var (
	runsLimit int
	runsJSON  bool
	showJSON  bool
)

func init() {
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)

	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs (0 for all)")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "print runs as JSON")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "print the report as JSON")
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := requireStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	runs, err := st.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if runsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}
	renderRuns(out, runs, time.Now())
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := requireStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	rep, err := st.LoadRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if showJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	renderReport(out, rep)
	return nil
}
