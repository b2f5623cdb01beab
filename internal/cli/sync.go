package cli

import (
	"fmt"

	"github.com/mmazune/chefcloud/internal/offline/conflict"
	syncer "github.com/mmazune/chefcloud/internal/offline/sync"
	"github.com/mmazune/chefcloud/pkg/logging"
	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command: a single drain pass.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay all pending actions once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}

			q, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer q.Close()

			if n, err := q.ReconcileSyncing(); err != nil {
				return err
			} else if n > 0 {
				logging.GetLogger().Infof("re-queued %d action(s) stranded mid-sync", n)
			}

			client, err := newAPIClient(cmd, cfg)
			if err != nil {
				return err
			}

			coordinator := syncer.NewCoordinator(q, client, conflict.NewDetector(client))
			res, err := coordinator.Drain(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "synced %d, conflicts %d, failed %d, deferred %d\n",
				res.Synced, res.Conflicts, res.Failed, res.Deferred)
			return nil
		},
	}
}
