package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/core"
	"github.com/vovakirdan/runstake/internal/money"
	"github.com/vovakirdan/runstake/internal/platform/tui"
	"github.com/vovakirdan/runstake/internal/replay"
	"github.com/vovakirdan/runstake/internal/session"
	"github.com/vovakirdan/runstake/internal/sim"
)

var (
	flagStake      string
	flagDifficulty int
	flagMin        float64
	flagMax        float64
	flagCurve      string
	flagUser       string
	flagPlayerSeed string
	flagResume     string
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a run in this terminal",
	Long: `Start a run with the given stake and parameters and play it in the terminal.

The server commitment is printed before the run starts. When the run ends
the secret is revealed and a settlement receipt is printed, so the run can
be replayed with 'runstake verify'.

Controls:
  Space/W/Up   jump            S/Down   slide
  E            exit safely     P        pause (checkpoint window only)
  X            forfeit         Q        forfeit and quit

Examples:
  runstake play --stake 10
  runstake play --stake 25.5 --difficulty 60 --min 5 --max 25 --curve disproportional
  runstake play --resume <run-id>`,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVar(&flagStake, "stake", "10", "Amount to lock as the run's ledger")
	playCmd.Flags().IntVar(&flagDifficulty, "difficulty", 30, "Difficulty 0-100")
	playCmd.Flags().Float64Var(&flagMin, "min", 5, "Minimum percent per collision")
	playCmd.Flags().Float64Var(&flagMax, "max", 25, "Maximum percent per collision")
	playCmd.Flags().StringVar(&flagCurve, "curve", "proportional", "Difficulty curve: static, proportional, disproportional")
	playCmd.Flags().StringVar(&flagUser, "user", os.Getenv("USER"), "Player name the run is recorded under")
	playCmd.Flags().StringVar(&flagPlayerSeed, "seed", "", "Player seed mixed into the run seed (random if empty)")
	playCmd.Flags().StringVar(&flagResume, "resume", "", "Resume a paused run by id")
}

func runPlay(cmd *cobra.Command, _ []string) error {
	cfg, store, err := openDeps()
	if err != nil {
		return err
	}
	defer store.Close()

	// The alternate screen owns stderr while playing; only errors get through.
	logger, err := newLogger()
	if err != nil {
		return err
	}
	logger.SetLevel(log.ErrorLevel)

	settled := make(chan session.Settlement, 1)
	mgr := session.NewManager(store, session.ManagerOptions{
		Config:    cfg,
		Logger:    logger,
		OnSettled: func(s session.Settlement) { settled <- s },
	})
	defer mgr.Shutdown()

	user := flagUser
	if user == "" {
		user = "player"
	}

	h := session.NewChannelSession(uuid.NewString(), 256)
	defer h.Close()

	var (
		run        *session.Run
		commitment string
	)
	if flagResume != "" {
		run, err = mgr.Resume(flagResume, user, h)
		if err != nil {
			return err
		}
		fmt.Printf("Resuming run %s\n", flagResume)
	} else {
		req, reqErr := startRequest(user)
		if reqErr != nil {
			return reqErr
		}
		started, startErr := mgr.Start(req, h)
		if startErr != nil {
			return startErr
		}
		run, commitment = started.Run, started.Commitment
		fmt.Printf("Run %s (#%d)\nCommitment %s\n", started.RunID, started.RunCount, commitment)
	}

	if _, err := tui.Play(run, h, cfg, commitment, terminalSize(cfg)); err != nil {
		return err
	}

	select {
	case s := <-settled:
		printSettlement(s)
	case <-time.After(session.DefaultGrace + 5*time.Second):
		return fmt.Errorf("run did not settle")
	}
	return nil
}

func startRequest(user string) (session.StartRequest, error) {
	stake, err := money.ParseAmount(flagStake)
	if err != nil {
		return session.StartRequest{}, err
	}
	curve, err := config.ParseCurveMode(flagCurve)
	if err != nil {
		return session.StartRequest{}, err
	}
	seed := flagPlayerSeed
	if seed == "" {
		seed = uuid.NewString()
	}
	return session.StartRequest{
		User:       user,
		PlayerSeed: seed,
		Params: sim.Params{
			Difficulty: flagDifficulty,
			PercentMin: flagMin,
			PercentMax: flagMax,
			Curve:      curve,
		},
		Stake: stake,
	}, nil
}

// terminalSize reads the current terminal size, falling back to 80x24.
func terminalSize(cfg config.RunnerConfig) core.RuntimeConfig {
	rc := core.DefaultConfig()
	rc.TickRate = cfg.TickRate
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 0 {
		rc.ScreenW, rc.ScreenH = w, h
	}
	return rc
}

func printSettlement(s session.Settlement) {
	out := s.Outcome
	fmt.Println()
	if s.Paused {
		fmt.Printf("Run %s paused at tick %d with ledger %s\n", out.RunID, out.Ticks, money.FormatMicrosString(out.Ledger, 2))
		fmt.Printf("Resume with: runstake play --resume %s\n", out.RunID)
		return
	}
	printReceipt(s.Receipt)
}

func printReceipt(r replay.Receipt) {
	fmt.Println("Receipt")
	fmt.Printf("  Run          %s\n", r.RunID)
	fmt.Printf("  Result       %s after %d ticks\n", r.Reason, r.Ticks)
	fmt.Printf("  Ledger       %s -> %s\n", money.FormatMicrosString(r.InitialLedger, 2), money.FormatMicrosString(r.FinalLedger, 2))
	fmt.Printf("  Commitment   %s\n", r.Commitment)
	fmt.Printf("  Secret       %s\n", r.Secret)
	fmt.Printf("  Player seed  %s\n", r.PlayerSeed)
	fmt.Printf("  Events       %s\n", r.EventsDigest)
	fmt.Printf("  Rules        %s\n", r.RulesFingerprint)
	if err := r.CheckReveal(); err != nil {
		fmt.Printf("  WARNING: %v\n", err)
	}
}
