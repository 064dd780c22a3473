package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/agent"
	"github.com/v0xg/pagepilot/internal/ai"
	"github.com/v0xg/pagepilot/internal/config"
	"github.com/v0xg/pagepilot/internal/crawler"
	"github.com/v0xg/pagepilot/internal/dispatch"
	"github.com/v0xg/pagepilot/internal/executor"
	"github.com/v0xg/pagepilot/internal/gifgen"
	"github.com/v0xg/pagepilot/internal/server"
)

var (
	errGoalNotAchieved = errors.New("goal not achieved")
	errMissingAPIKey   = errors.New("no model API key: pass --api-key or set GEMINI_API_KEY")
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Run one agent in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args[0])
		},
	}

	cmd.Flags().String("url", "", "Start URL (default from config)")
	cmd.Flags().String("api-key", "", "Model API key (default from config or GEMINI_API_KEY)")
	cmd.Flags().String("provider", "", "AI provider: gemini, claude, openai")
	cmd.Flags().String("model", "", "Specific model override")
	cmd.Flags().Int("max-rounds", 0, "Round budget, 0 for unbounded (default from config)")
	cmd.Flags().String("record", "", "Directory to write a GIF of the run into")
	cmd.Flags().Bool("headless", false, "Run the browser without a window")

	a.bindFlag(cmd, "browser.start_url", "url")
	a.bindFlag(cmd, "llm.api_key", "api-key")
	a.bindFlag(cmd, "llm.provider", "provider")
	a.bindFlag(cmd, "llm.model", "model")
	a.bindFlag(cmd, "agent.max_rounds", "max-rounds")
	a.bindFlag(cmd, "record.dir", "record")
	a.bindFlag(cmd, "browser.headless", "headless")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP front end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default 127.0.0.1:9900)")
	a.bindFlag(cmd, "server.addr", "addr")
	return cmd
}

func (a *app) run(ctx context.Context, goal string) error {
	if a.cfg.LLM.APIKey == "" {
		return errMissingAPIKey
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	d, err := newDispatcher(a.cfg, a.logger)
	if err != nil {
		return err
	}

	fmt.Printf("→ Working on %q\n", goal)
	report := d.Run(ctx, dispatch.Task{Goal: goal, Credential: a.cfg.LLM.APIKey})
	if report.Err != nil {
		return report.Err
	}

	if report.Recording != "" {
		fmt.Printf("→ Recording saved to %s\n", report.Recording)
	}
	if !report.Result.Succeeded {
		fmt.Printf("✗ Stopped after %d rounds: %s\n", report.Result.Rounds, report.Result.Reason)
		return fmt.Errorf("%w: %s", errGoalNotAchieved, report.Result.Reason)
	}
	fmt.Printf("✓ Goal achieved in %d rounds\n", report.Result.Rounds)
	return nil
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	d, err := newDispatcher(a.cfg, a.logger)
	if err != nil {
		return err
	}

	srv := server.New(d, server.Options{
		DefaultAPIKey:   a.cfg.LLM.APIKey,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, a.logger)
	serveErr := srv.ListenAndServe(ctx, a.cfg.Server.Addr)

	drainCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := d.Shutdown(drainCtx); err != nil {
		a.logger.Warn("Runs were canceled during shutdown", zap.Error(err))
	}
	return serveErr
}

// newDispatcher wires the agent stack from configuration
func newDispatcher(cfg *config.Config, logger *zap.Logger) (*dispatch.Dispatcher, error) {
	model, err := ai.NewModel(ai.Config{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("AI provider init failed: %w", err)
	}
	logger.Info("Using model", zap.String("model", model.Name()))

	return dispatch.New(dispatch.Config{
		MaxConcurrentRuns: cfg.Server.MaxConcurrentRuns,
		Launch: dispatch.BrowserLauncher(crawler.Options{
			StartURL:   cfg.Browser.StartURL,
			Width:      cfg.Browser.Width,
			Height:     cfg.Browser.Height,
			Headless:   cfg.Browser.Headless,
			SlowMotion: cfg.Browser.SlowMotion,
			Timeout:    cfg.Browser.NavigationTimeout,
			Bin:        cfg.Browser.Bin,
			ProfileDir: cfg.Browser.ProfileDir,
		}),
		Observer: crawler.NewBuilder(cfg.Agent.MarkupLimit, logger),
		Planner:  ai.NewPlanner(model, logger),
		Executor: executor.New(executor.Options{
			ClickTimeout: cfg.Agent.ClickTimeout,
			FillTimeout:  cfg.Agent.FillTimeout,
			Settle:       cfg.Agent.Settle,
		}, logger),
		Agent:     agent.Options{MaxRounds: cfg.Agent.MaxRounds},
		RecordDir: cfg.Record.Dir,
		Record:    gifgen.Options{FPS: cfg.Record.FPS, MaxWidth: cfg.Record.MaxWidth},
	}, logger), nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
