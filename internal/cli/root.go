// Package cli implements the posclient terminal commands.
package cli

import (
	"time"

	"github.com/mmazune/chefcloud/internal/offline/api"
	"github.com/mmazune/chefcloud/internal/offline/config"
	"github.com/mmazune/chefcloud/internal/offline/queue"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the posclient root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "posclient",
		Short: "Offline-first terminal for the chefcloud order engine",
		Long: `posclient queues order actions locally while the link to the order
engine is down and replays them, in order, once it returns.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "./config/posclient.ini", "path to the INI config file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewEnqueueCommand(opts))

	return cmd
}

// loadConfig reads the shared config flag.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	return config.Load(opts.ConfigPath)
}

// openQueue opens the local action queue from config.
func openQueue(cfg *config.Config) (*queue.Queue, error) {
	return queue.Open(cfg.Queue.Path)
}

// newAPIClient builds the engine client and authenticates it. A configured
// token wins over a PIN; with neither the client stays anonymous, which only
// works against a gateway that injects credentials.
func newAPIClient(cmd *cobra.Command, cfg *config.Config) (*api.Client, error) {
	client := api.New(cfg.Server.URL, time.Duration(cfg.Server.TimeoutSeconds)*time.Second)
	if cfg.Auth.Token != "" {
		client.SetToken(cfg.Auth.Token)
		return client, nil
	}
	if cfg.Auth.Pin != "" {
		if err := client.PinLogin(cmd.Context(), cfg.Auth.VenueID, cfg.Auth.Pin); err != nil {
			return nil, err
		}
	}
	return client, nil
}
