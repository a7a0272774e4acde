package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadenzalabs/ensemble/internal/agent"
	"github.com/cadenzalabs/ensemble/internal/config"
	"github.com/cadenzalabs/ensemble/internal/history"
	"github.com/cadenzalabs/ensemble/internal/piece"
	"github.com/cadenzalabs/ensemble/pkg/logger"
)

func newRunCommand(opts *config.Options) *cobra.Command {
	var task string
	var tui bool
	var runDir string

	cmd := &cobra.Command{
		Use:   "run <piece.yaml>",
		Short: "Run a piece definition against a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPiece(cmd.Context(), args[0], task, runDir, tui, opts)
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "Task description passed to the piece's initial movement.")
	cmd.Flags().BoolVar(&tui, "tui", false, "Render a live bubbletea progress view instead of streaming text.")
	cmd.Flags().StringVar(&runDir, "run-dir", ".", "Directory the piece runs in; also where logs/ is created.")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

func runPiece(ctx context.Context, path, task, runDir string, tui bool, opts *config.Options) error {
	loader := config.NewPieceLoader()
	cfg, agents, err := loader.Load(path)
	if err != nil {
		return fmt.Errorf("cli: loading piece: %w", err)
	}

	cachePath := filepath.Join(runDir, config.DefaultSessionCachePath)
	cache, err := config.LoadSessionCache(cachePath)
	if err != nil {
		return fmt.Errorf("cli: loading session cache: %w", err)
	}

	defaultProvider := opts.Provider.Provider
	judgeAgent, ok := agents[defaultProvider]
	if !ok {
		judgeAgent = agents["mock"]
	}

	engine, err := piece.New(piece.EngineConfig{
		Config:          cfg,
		Agents:          agents,
		DefaultProvider: defaultProvider,
		Detect:          agent.DetectRuleIndex,
		Judge: func(ctx context.Context, content string, conds []piece.JudgeCondition) int {
			return agent.AIJudge(ctx, judgeAgent, content, conds)
		},
		ParseStructured:    agent.ParseStructuredOutput,
		Task:               task,
		Cwd:                runDir,
		ReportDir:          filepath.Join(runDir, "reports"),
		Language:           string(opts.Language),
		RunDir:             runDir,
		RestoredSessions:   cache.Sessions,
		RestoredUserInputs: cache.Inputs,
	})
	if err != nil {
		return fmt.Errorf("cli: constructing engine: %w", err)
	}

	events := engine.Subscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		if _, ok := <-sigCh; ok {
			engine.Abort(piece.ReasonUserInterrupted)
		}
	}()
	defer signal.Stop(sigCh)

	if !opts.Run.MinimalOutput {
		printBanner(cfg.Name, task)
	}

	var renderErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		if opts.Run.MinimalOutput {
			for range events {
			}
			return
		}
		if tui {
			renderErr = runProgressTUI(cfg.Name, task, events)
			return
		}
		streamEvents(events)
	}()

	terminal, err := engine.Run(ctx)
	<-done

	cache.Sessions = engine.State().PersonaSessions
	cache.Inputs = engine.State().UserInputs
	if saveErr := cache.Save(); saveErr != nil {
		logger.Warn("cli: saving session cache: %v", saveErr)
	}

	if err != nil {
		return err
	}
	if renderErr != nil {
		logger.Warn("cli: rendering progress view: %v", renderErr)
	}

	if err := recordHistory(opts, engine.SessionID(), cfg.Name, task, terminal); err != nil {
		logger.Warn("cli: recording history: %v", err)
	}

	if terminal.Status == piece.StatusAborted {
		return fmt.Errorf("piece aborted: %s", terminal.Reason)
	}
	return nil
}

func recordHistory(opts *config.Options, runID, pieceName, task string, terminal piece.TerminalState) error {
	store, err := history.OpenBoltStore(opts.History.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now()
	rec := &history.Record{
		RunID:          runID,
		PieceName:      pieceName,
		Task:           task,
		Status:         string(terminal.Status),
		TerminalReason: string(terminal.Reason),
		Iteration:      terminal.Iteration,
		StartedAt:      now,
		EndedAt:        now,
	}
	return store.Create(context.Background(), rec)
}
