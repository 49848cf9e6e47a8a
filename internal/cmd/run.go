package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/mission"
	"github.com/Iron-Ham/montage/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [mission]",
	Short: "Negotiate and generate a mission",
	Long: `Run a mission end to end: analyze it, negotiate every open topic with
the persona panel, plan the generation requests and execute them against the
configured provider chains.

The mission can be given as an argument or as a YAML file:

  mission: Explain how vaccines train the immune system
  duration: 30
  surface: tiktok
  audience: teens
  overrides:
    tone: playful

Flags override the matching file fields. The report is stored in the run
database unless --no-store is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runFile     string
	runDuration int
	runSurface  string
	runAudience string
	runTopics   []string
	runOverride map[string]string
	runJSON     bool
	runNoStore  bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "YAML mission file")
	runCmd.Flags().IntVarP(&runDuration, "duration", "d", 0, "target duration in seconds")
	runCmd.Flags().StringVarP(&runSurface, "surface", "s", "", "target surface (youtube, shorts, tiktok, reels, instagram, web)")
	runCmd.Flags().StringVar(&runAudience, "audience", "", "target audience")
	runCmd.Flags().StringSliceVar(&runTopics, "topic", nil, "negotiate only these topics (repeatable)")
	runCmd.Flags().StringToStringVar(&runOverride, "set", nil, "pin a topic value, e.g. --set tone=calm")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the report as JSON")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "do not store the report")
}

// missionRequest assembles the mission from the file, the argument and flags.
func missionRequest(cmd *cobra.Command, args []string) (mission.Request, error) {
	var req mission.Request
	if runFile != "" {
		data, err := os.ReadFile(runFile)
		if err != nil {
			return req, fmt.Errorf("failed to read mission file: %w", err)
		}
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("failed to parse mission file %s: %w", runFile, err)
		}
	}
	if len(args) == 1 {
		req.Mission = args[0]
	}
	flags := cmd.Flags()
	if flags.Changed("duration") {
		req.DurationSeconds = runDuration
	}
	if flags.Changed("surface") {
		req.Surface = runSurface
	}
	if flags.Changed("audience") {
		req.Audience = runAudience
	}
	if flags.Changed("topic") {
		req.Topics = runTopics
	}
	if len(runOverride) > 0 {
		if req.Overrides == nil {
			req.Overrides = make(map[string]string, len(runOverride))
		}
		for k, v := range runOverride {
			req.Overrides[k] = v
		}
	}
	if req.Mission == "" {
		return req, fmt.Errorf("no mission given: pass it as an argument or with --file")
	}
	return req, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	req, err := missionRequest(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	p, err := pipeline.New(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, runErr := p.Run(ctx, req)
	if rep == nil {
		return runErr
	}

	if !runNoStore && !errors.IsValidation(runErr) {
		st, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open run database: %w", err)
		}
		if st != nil {
			defer func() { _ = st.Close() }()
			// Store even a canceled run; the interrupted context must not stop that.
			if err := st.SaveRun(context.WithoutCancel(ctx), rep); err != nil {
				return fmt.Errorf("failed to store run: %w", err)
			}
		}
	}

	out := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		renderReport(out, rep)
	}
	return runErr
}
