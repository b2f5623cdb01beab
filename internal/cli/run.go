package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmazune/chefcloud/internal/offline/conflict"
	syncer "github.com/mmazune/chefcloud/internal/offline/sync"
	"github.com/mmazune/chefcloud/pkg/logging"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command: the long-lived sync loop.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the background sync loop",
		Long: `Start the terminal sync loop. Pending actions are replayed against the
order engine on a fixed interval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(cmd, rootOpts)
		},
	}
}

func runLoop(cmd *cobra.Command, rootOpts *RootOptions) error {
	log := logging.GetLogger()

	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}

	q, err := openQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	// A crash mid-sync leaves SYNCING rows behind; re-queue them before the
	// first pass.
	if n, err := q.ReconcileSyncing(); err != nil {
		return err
	} else if n > 0 {
		log.Infof("re-queued %d action(s) stranded mid-sync", n)
	}

	client, err := newAPIClient(cmd, cfg)
	if err != nil {
		return err
	}

	coordinator := syncer.NewCoordinator(q, client, conflict.NewDetector(client))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Infof("received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	interval := time.Duration(cfg.Sync.IntervalSeconds) * time.Second
	log.Infof("sync loop started against %s (every %s)", cfg.Server.URL, interval)
	coordinator.Run(ctx, interval)
	log.Info("sync loop stopped")
	return nil
}
