package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/fairness"
	"github.com/vovakirdan/runstake/internal/replay"
	"github.com/vovakirdan/runstake/internal/session"
	"github.com/vovakirdan/runstake/internal/storage"
)

var (
	flagVerifyAll  bool
	flagVerifyUser string
	flagWorkers    int
	flagLimit      int
)

var verifyCmd = &cobra.Command{
	Use:   "verify [run-id...]",
	Short: "Replay finalized runs and check their claims",
	Long: `Rebuild each run's seed from the revealed secret, replay its recorded
inputs from a fresh engine and compare the final ledger, terminal reason,
events digest and rules fingerprint with what was recorded.

Examples:
  runstake verify 3f0c2a1e-...
  runstake verify --all --user alice --workers 8`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&flagVerifyAll, "all", false, "Verify every finalized run (optionally filtered by --user)")
	verifyCmd.Flags().StringVar(&flagVerifyUser, "user", "", "Only runs by this user (with --all)")
	verifyCmd.Flags().IntVar(&flagWorkers, "workers", 4, "Concurrent replays (with --all)")
	verifyCmd.Flags().IntVar(&flagLimit, "limit", 1000, "Most recent runs to consider (with --all)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, store, err := openDeps()
	if err != nil {
		return err
	}
	defer store.Close()

	if flagVerifyAll {
		return verifyAll(cmd, store, cfg, logger)
	}
	if len(args) == 0 {
		return fmt.Errorf("give one or more run ids, or --all")
	}

	mgr := session.NewManager(store, session.ManagerOptions{Config: cfg, Logger: logger})
	failed := 0
	for _, id := range args {
		res, err := mgr.Verify(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", id, err)
			failed++
			continue
		}
		printResult(res)
		if !res.Match {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed verification", failed, len(args))
	}
	return nil
}

func verifyAll(cmd *cobra.Command, store *storage.Store, cfg config.RunnerConfig, logger *log.Logger) error {
	recs, err := store.RecentRuns(flagVerifyUser, flagLimit)
	if err != nil {
		return err
	}

	var reqs []replay.Request
	badReveal := 0
	for i := range recs {
		if !recs[i].Finalized() {
			continue
		}
		if !fairness.VerifyReveal(recs[i].Secret, recs[i].Commitment) {
			printResult(replay.Result{RunID: recs[i].ID, Mismatches: []string{"secret does not match commitment"}})
			badReveal++
			continue
		}
		req, err := session.RequestFor(&recs[i], cfg)
		if err != nil {
			logger.Warn("skipping run", "run", recs[i].ID, "error", err)
			continue
		}
		reqs = append(reqs, req)
	}

	results, err := replay.VerifyBatch(cmd.Context(), reqs, flagWorkers)
	if err != nil {
		return err
	}

	failed := badReveal
	for i, res := range results {
		printResult(res)
		if !res.Match {
			failed++
		}
		if err := store.MarkVerified(reqs[i].RunID, res.Match); err != nil {
			logger.Error("cannot record verification", "run", reqs[i].RunID, "error", err)
		}
	}
	fmt.Printf("\n%d runs checked, %d failed\n", len(results)+badReveal, failed)
	if failed > 0 {
		return fmt.Errorf("%d runs failed verification", failed)
	}
	return nil
}

func printResult(res replay.Result) {
	if res.Match {
		fmt.Printf("OK        %s  %s after %d ticks, ledger %s\n", res.RunID, res.Outcome.Reason, res.Outcome.Ticks, res.Outcome.Ledger)
		return
	}
	fmt.Printf("MISMATCH  %s  %s\n", res.RunID, strings.Join(res.Mismatches, "; "))
}
