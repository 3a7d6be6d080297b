package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/runstake/internal/money"
	"github.com/vovakirdan/runstake/internal/storage"
)

var (
	flagRunsUser  string
	flagRunsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Long: `Display the most recent runs, newest first. With --user, also prints
that player's totals.

Examples:
  runstake runs
  runstake runs --user alice --limit 50`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&flagRunsUser, "user", "", "Only runs by this user")
	runsCmd.Flags().IntVar(&flagRunsLimit, "limit", 20, "Number of runs to show")
}

func runRuns(_ *cobra.Command, _ []string) error {
	store, err := storage.Open(flagDBPath)
	if err != nil {
		return fmt.Errorf("cannot open runs database: %w", err)
	}
	defer store.Close()

	runs, err := store.RecentRuns(flagRunsUser, flagRunsLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		fmt.Println()
		fmt.Println("Play 'runstake play' to start one!")
		return nil
	}

	fmt.Printf("  %-36s  %-10s  %4s  %10s  %10s  %-8s  %-3s  %s\n", "Run", "User", "#", "Stake", "Final", "Result", "OK", "Date")
	fmt.Printf("  %-36s  %-10s  %4s  %10s  %10s  %-8s  %-3s  %s\n", "---", "----", "-", "-----", "-----", "------", "--", "----")
	for _, r := range runs {
		final := "-"
		if r.FinalLedger != "" {
			final = money.FormatMicrosString(r.FinalLedger, 2)
		}
		ok := ""
		if r.Verified {
			ok = "yes"
		}
		fmt.Printf("  %-36s  %-10s  %4d  %10s  %10s  %-8s  %-3s  %s\n",
			r.ID, r.User, r.RunCount,
			money.FormatMicrosString(r.InitialLedger, 2), final,
			r.Reason, ok, r.CreatedAt.Format("2006-01-02 15:04"))
	}

	if flagRunsUser == "" {
		return nil
	}

	stats, err := store.UserStats(flagRunsUser)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Printf("%s: %d runs, %d finalized (%d safe, %d busted, %d forfeited), %d verified, net %s\n",
		stats.User, stats.Runs, stats.Finalized, stats.Safe, stats.Losses, stats.Forfeits,
		stats.Verified, money.Format(stats.Net, 2))
	return nil
}
