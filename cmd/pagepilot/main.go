package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/config"
	"github.com/v0xg/pagepilot/internal/logging"
)

// app carries what PersistentPreRunE loads for the subcommands
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newApp() *app {
	return &app{v: config.New()}
}

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	a := newApp()
	if err := newRootCmd(a).Execute(); err != nil {
		if a.logger != nil {
			a.logger.Error("Command failed", zap.Error(err))
			_ = a.logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pagepilot",
		Short: "Drive a web browser toward a goal with an LLM",
		Long: `pagepilot looks at a web page, asks a language model for the next few
browser actions, runs them, and repeats until the model reports the goal done.

Example:
  pagepilot run "Log in with username 'student' and password 'Password123', and then log out."`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			return a.initLogger()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./pagepilot.yaml)")

	rootCmd.AddCommand(newRunCmd(a), newServeCmd(a))
	return rootCmd
}

func (a *app) loadConfig() error {
	if err := config.ReadFile(a.v, a.cfgFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) initLogger() error {
	logger, err := logging.NewStdout(a.cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	zap.RedirectStdLog(logger)
	a.logger = logger
	return nil
}

// bindFlag lets a command-line flag override a config key
func (a *app) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}
