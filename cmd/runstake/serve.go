package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/runstake/internal/platform/tui"
	"github.com/vovakirdan/runstake/internal/session"
	"github.com/vovakirdan/runstake/internal/transport/ws"
)

var (
	flagSSHAddr     string
	flagWSAddr      string
	flagHostKey     string
	flagIdleTimeout int
	flagGrace       time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SSH and WebSocket servers",
	Long: `Start an SSH server for terminal play and a WebSocket server for other
clients. Both share one run manager and one database.

Each SSH connection gets its own lobby. A dropped connection detaches the
run; it is forfeited if nobody reattaches within the grace period.

Host key handling:
  - If --host-key is provided, uses that key file
  - Otherwise, auto-generates a key at ~/.runstake/host_key

Examples:
  runstake serve                          # SSH on :23234, WebSocket on :8080
  runstake serve --ssh :2222 --ws ""      # SSH only
  runstake serve --grace 30s

Users can connect with:
  ssh localhost -p 23234`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagSSHAddr, "ssh", ":23234", "SSH server address (empty to disable)")
	serveCmd.Flags().StringVar(&flagWSAddr, "ws", ":8080", "WebSocket server address (empty to disable)")
	serveCmd.Flags().StringVar(&flagHostKey, "host-key", "", "Path to host key file (auto-generated if not specified)")
	serveCmd.Flags().IntVar(&flagIdleTimeout, "idle-timeout", 30, "Idle timeout in minutes before disconnecting")
	serveCmd.Flags().DurationVar(&flagGrace, "grace", session.DefaultGrace, "Reconnect grace period before a detached run is forfeited")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if flagSSHAddr == "" && flagWSAddr == "" {
		return fmt.Errorf("nothing to serve: both --ssh and --ws are empty")
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, store, err := openDeps()
	if err != nil {
		return err
	}
	defer store.Close()

	mgr := session.NewManager(store, session.ManagerOptions{
		Config: cfg,
		Logger: logger,
		Grace:  flagGrace,
		OnSettled: func(s session.Settlement) {
			logger.Info("run settled", "run", s.Outcome.RunID, "reason", s.Outcome.Reason, "paused", s.Paused)
		},
	})
	defer mgr.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if flagSSHAddr != "" {
		sshCfg := tui.DefaultSSHServerConfig()
		sshCfg.Address = flagSSHAddr
		sshCfg.HostKeyPath = flagHostKey
		sshCfg.IdleTimeout = time.Duration(flagIdleTimeout) * time.Minute
		sshCfg.Runner = cfg

		sshServer, err := tui.NewSSHServer(sshCfg, mgr, store, logger)
		if err != nil {
			return err
		}
		g.Go(sshServer.ListenAndServe)
		g.Go(func() error {
			<-ctx.Done()
			return shutdown(sshServer.Shutdown)
		})
	}

	if flagWSAddr != "" {
		httpServer := ws.NewServer(mgr, store, logger).HTTPServer(flagWSAddr)
		g.Go(func() error {
			logger.Info("starting WebSocket server", "address", flagWSAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return shutdown(httpServer.Shutdown)
		})
	}

	fmt.Println("Press Ctrl+C to stop")
	return g.Wait()
}

func shutdown(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return fn(ctx)
}
