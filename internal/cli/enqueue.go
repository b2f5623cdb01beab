package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/offline/queue"
	"github.com/spf13/cobra"
)

var actionKinds = []string{
	enum.ActionKindCreateOrder,
	enum.ActionKindAddItems,
	enum.ActionKindUpdateItems,
	enum.ActionKindSendToKitchen,
	enum.ActionKindApplyDiscount,
	enum.ActionKindPay,
	enum.ActionKindVoid,
}

// NewEnqueueCommand creates the enqueue command: append one action to the
// local queue without sending it.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	var orderRef, payload string

	cmd := &cobra.Command{
		Use:   "enqueue <kind>",
		Short: "Queue an action for the next sync",
		Long: `Queue one action locally. The payload is the JSON request body that will
be replayed against the engine; pass it with --payload or on stdin with
--payload -. Kinds other than CREATE_ORDER require --order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			if !validKind(kind) {
				return fmt.Errorf("unknown action kind %q (want one of %v)", kind, actionKinds)
			}
			if kind != enum.ActionKindCreateOrder && orderRef == "" {
				return fmt.Errorf("%s requires --order", kind)
			}

			body := []byte(payload)
			if payload == "-" {
				var err error
				body, err = io.ReadAll(os.Stdin)
				if err != nil {
					return err
				}
			}
			if !json.Valid(body) {
				return fmt.Errorf("payload is not valid JSON")
			}

			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}

			return withQueue(rootOpts, func(q *queue.Queue) error {
				a, err := q.Enqueue(kind, cfg.Auth.VenueID, orderRef, body)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued action %d (%s) with key %s\n", a.ID, a.Kind, a.Key)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&orderRef, "order", "", "server order ID the action applies to")
	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON request body, or - for stdin")
	return cmd
}

func validKind(kind string) bool {
	for _, k := range actionKinds {
		if k == kind {
			return true
		}
	}
	return false
}
