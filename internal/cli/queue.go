package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/mmazune/chefcloud/internal/offline/queue"
	"github.com/spf13/cobra"
)

// NewQueueCommand creates the queue command group for inspecting and
// resolving queued actions.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the local action queue",
	}

	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueRetryCommand(rootOpts))
	cmd.AddCommand(newQueueDiscardCommand(rootOpts))

	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(rootOpts, func(q *queue.Queue) error {
				actions, err := q.List(status)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tKIND\tORDER\tSTATUS\tATTEMPTS\tLAST ERROR")
				for _, a := range actions {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
						a.ID, a.Kind, a.OrderRef.String, a.Status, a.Attempts, a.LastError.String)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (PENDING|SYNCING|SUCCESS|FAILED|CONFLICT)")
	return cmd
}

func newQueueRetryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Move a FAILED action back to PENDING (conflicts can only be discarded)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid action id %q", args[0])
			}
			return withQueue(rootOpts, func(q *queue.Queue) error {
				if err := q.Retry(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "action %d re-queued\n", id)
				return nil
			})
		},
	}
}

func newQueueDiscardCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>",
		Short: "Remove an action from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid action id %q", args[0])
			}
			return withQueue(rootOpts, func(q *queue.Queue) error {
				if err := q.Discard(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "action %d discarded\n", id)
				return nil
			})
		},
	}
}

func withQueue(rootOpts *RootOptions, fn func(q *queue.Queue) error) error {
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	q, err := openQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()
	return fn(q)
}
