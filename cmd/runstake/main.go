// runstake is a provably fair endless runner where the score is a staked
// ledger settled by collisions.
//
// Usage:
//
//	runstake play              - Play a run in this terminal
//	runstake serve             - Start the SSH and WebSocket servers
//	runstake verify <run-id>   - Replay a finalized run and check its claim
//	runstake runs              - List recorded runs
//	runstake commit            - Generate or check a secret/commitment pair
//
// Global flags:
//
//	--config <path>     - Runner tuning YAML (default: search path)
//	--db <path>         - Database path (default: ~/.runstake/runs.db)
//	--log-level <lvl>   - debug, info, warn or error
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/storage"
)

var (
	// Global flags
	flagConfig   string
	flagDBPath   string
	flagLogLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "runstake",
	Short: "Runstake - a provably fair endless runner with a staked ledger",
	Long: `Runstake is a terminal endless runner. Each run locks a stake as its
ledger; obstacles take a percentage of it, rewards add to it, and every
minute a checkpoint window lets you cash out or pause.

Runs are committed before the first tick and can be replayed afterwards
from the revealed secret and the recorded inputs.

Available commands:
  play     - Play a run in this terminal
  serve    - Start SSH and WebSocket servers
  verify   - Replay finalized runs and check their claims
  runs     - List recorded runs
  commit   - Generate or check a commitment

Examples:
  runstake play --stake 10 --difficulty 30
  runstake serve --ssh :23234 --ws :8080
  runstake verify 3f0c...`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to runner config YAML")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "~/.runstake/runs.db", "Path to runs database")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(commitCmd)
}

// newLogger builds the process logger from --log-level.
func newLogger() (*log.Logger, error) {
	level, err := log.ParseLevel(flagLogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "runstake",
		Level:           level,
	}), nil
}

// openDeps loads the runner config and opens the store.
func openDeps() (config.RunnerConfig, *storage.Store, error) {
	cfg, err := config.LoadRunner(flagConfig)
	if err != nil {
		return cfg, nil, err
	}
	store, err := storage.Open(flagDBPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("cannot open runs database: %w", err)
	}
	return cfg, store, nil
}
