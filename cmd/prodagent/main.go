// Command prodagent runs the content-generation engine from the terminal:
// start runs, answer clarification questions, and inspect what a run
// produced.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prodagent/internal/config"
	"prodagent/internal/contracts"
	"prodagent/internal/controller"
	"prodagent/internal/generation"
	"prodagent/internal/logging"
	"prodagent/internal/manifest"
	"prodagent/internal/planner"
	"prodagent/internal/skills"
	"prodagent/internal/subagent"
	"prodagent/internal/verify"
	"prodagent/internal/workspace"
)

var (
	flagConfig    string
	flagWorkspace string
	flagJSON      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "prodagent",
		Short:         "Multi-agent product document generation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath, "path to the config file")
	root.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "override the run workspace root")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "print raw JSON instead of a readable summary")

	root.AddCommand(newRunCmd())
	root.AddCommand(newResumeCmd())
	root.AddCommand(newArtifactsCmd())
	root.AddCommand(newEventsCmd())
	return root
}

// app bundles everything a command needs after wiring.
type app struct {
	cfg        *config.Config
	log        *zap.SugaredLogger
	controller *controller.Controller
	ws         *workspace.FS
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagWorkspace != "" {
		cfg.Workspace.Root = flagWorkspace
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Initialize("."); err != nil {
		fmt.Fprintln(os.Stderr, "warning: file logging unavailable:", err)
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.DisableStacktrace = true
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	gemini, err := generation.NewGemini(ctx, cfg.Generation)
	if err != nil {
		return nil, err
	}
	gen := generation.NewTraced(gemini, cfg.Generation.Model)

	registry := manifest.Default()
	runner := skills.NewRunner(gen, registry, cfg.Generation.MaxRepairAttempts)
	ws := workspace.NewFS(cfg.Workspace.Root, cfg.Workspace.EventDB)

	ctrl := controller.New(planner.New(registry), runner, verify.NewDefault(registry), ws)
	ctrl.SetEventSink(&zapSink{log: logger.Sugar()})
	ctrl.SetSubagents(subagent.New(gen, registry, cfg.Generation.MaxRepairAttempts))
	ctrl.SetSettings(contracts.RunSettings{
		Model:           cfg.Generation.Model,
		Temperature:     cfg.Generation.Temperature,
		MaxOutputTokens: cfg.Generation.MaxTokens,
	})
	ctrl.SetLimits(cfg.Controller.MaxParallel, cfg.StepTimeout(), cfg.RunTimeout())

	return &app{
		cfg:        cfg,
		log:        logger.Sugar(),
		controller: ctrl,
		ws:         ws,
	}, nil
}

func (a *app) close() {
	a.ws.Close()
	a.log.Sync()
	logging.CloseAll()
}

func newRunCmd() *cobra.Command {
	var (
		kind      string
		sections  []string
		subagents []string
		ctxFile   string
	)
	cmd := &cobra.Command{
		Use:   "run [message]",
		Short: "Start a generation run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			request := &contracts.RunRequest{
				ArtifactKind: contracts.ArtifactKind(kind),
				Input: contracts.RunInput{
					Message:        strings.Join(args, " "),
					TargetSections: sections,
				},
				CreatedBy: "cli",
			}
			if len(subagents) > 0 {
				request.Attributes = map[string]string{"subagents": strings.Join(subagents, ",")}
			}
			if ctxFile != "" {
				payload, err := os.ReadFile(ctxFile)
				if err != nil {
					return fmt.Errorf("reading context file: %w", err)
				}
				request.Input.Context = &contracts.RequestContext{ContextPayload: string(payload)}
			}

			a.log.Infow("starting run", "kind", kind, "sections", sections)
			summary, err := a.controller.Start(cmd.Context(), request)
			if summary != nil {
				printSummary(a, summary)
			}
			if err != nil && (summary == nil || summary.Status != contracts.RunAwaitingInput) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(contracts.KindPRD), "artifact kind to produce")
	cmd.Flags().StringSliceVar(&sections, "section", nil, "limit the run to specific sections")
	cmd.Flags().StringSliceVar(&subagents, "subagent", nil, "companion artifacts to generate (persona, story-map, research)")
	cmd.Flags().StringVar(&ctxFile, "context-file", "", "file whose contents are supplied as context")
	return cmd
}

func newResumeCmd() *cobra.Command {
	var answers []string
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume a run that is awaiting clarification answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.controller.Resume(cmd.Context(), args[0], answers)
			if summary != nil {
				printSummary(a, summary)
			}
			return err
		},
	}
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "answer to a clarification question (repeatable, in question order)")
	cmd.MarkFlagRequired("answer")
	return cmd
}

func newArtifactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts <run-id>",
		Short: "List the artifacts a run produced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildAppOffline()
			if err != nil {
				return err
			}
			defer a.close()

			artifacts, err := a.ws.ListArtifacts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(artifacts)
			}
			if len(artifacts) == 0 {
				fmt.Println("no artifacts")
				return nil
			}
			for _, artifact := range artifacts {
				fmt.Printf("%-24s %-10s v%-4s %s\n", artifact.ID, artifact.Kind, artifact.Version, artifact.Label)
			}
			return nil
		},
	}
}

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <run-id>",
		Short: "Print a run's progress event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildAppOffline()
			if err != nil {
				return err
			}
			defer a.close()

			events, err := a.ws.GetEvents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(events)
			}
			for _, ev := range events {
				line := fmt.Sprintf("%s  %-24s", ev.Timestamp.Format("15:04:05.000"), ev.Type)
				if ev.StepID != "" {
					line += "  " + string(ev.StepID)
				}
				if ev.Message != "" {
					line += "  " + ev.Message
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

// buildAppOffline wires only what inspection commands need; no generation
// backend, so no API key required.
func buildAppOffline() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagWorkspace != "" {
		cfg.Workspace.Root = flagWorkspace
	}
	logger, err := zap.NewDevelopment(zap.WithCaller(false))
	if err != nil {
		return nil, err
	}
	return &app{
		cfg: cfg,
		log: logger.Sugar(),
		ws:  workspace.NewFS(cfg.Workspace.Root, cfg.Workspace.EventDB),
	}, nil
}

func printSummary(a *app, summary *contracts.RunSummary) {
	if flagJSON {
		printJSON(summary)
		return
	}

	switch summary.Status {
	case contracts.RunAwaitingInput:
		fmt.Printf("run %s needs clarification:\n", summary.RunID)
		if questions, ok := summary.Metadata["questions"].([]string); ok {
			for i, q := range questions {
				fmt.Printf("  %d. %s\n", i+1, q)
			}
		}
		fmt.Printf("\nanswer with: prodagent resume %s --answer \"...\"\n", summary.RunID)
	case contracts.RunCompleted:
		fmt.Printf("run %s completed\n", summary.RunID)
		if summary.Artifact != nil {
			fmt.Printf("artifact: %s (version %s, confidence %s)\n",
				summary.Artifact.ID, summary.Artifact.Version, summary.Artifact.Metadata.Confidence)
		}
		if summary.Verification != nil && len(summary.Verification.Issues) > 0 {
			fmt.Printf("verification: %s\n", summary.Verification.Status)
			for _, issue := range summary.Verification.Issues {
				fmt.Printf("  [%s] %s\n", issue.Severity, issue.Message)
			}
		}
		for _, sub := range summary.Subagents {
			fmt.Printf("subagent %s: %s (%s)\n", sub.Subagent, sub.Status, sub.ArtifactID)
		}
	case contracts.RunFailed:
		fmt.Printf("run %s failed\n", summary.RunID)
		if errMsg, ok := summary.Metadata["error"].(string); ok {
			fmt.Println("  " + errMsg)
		}
	}
}

// zapSink mirrors the run's progress stream onto the console.
type zapSink struct {
	log *zap.SugaredLogger
}

func (s *zapSink) Emit(ev contracts.ProgressEvent) {
	switch ev.Type {
	case contracts.EventStepStarted, contracts.EventStepCompleted:
		s.log.Debugw(ev.Type, "step", ev.StepID)
	case contracts.EventStepFailed, contracts.EventRunFailed:
		s.log.Warnw(ev.Type, "step", ev.StepID, "message", ev.Message)
	default:
		s.log.Infow(ev.Type, "step", ev.StepID, "message", ev.Message)
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
