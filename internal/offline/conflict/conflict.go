// Package conflict pre-screens queued actions against the server's current
// view of an order before replay. Catching a doomed action locally gives the
// staff a reviewable CONFLICT entry instead of an opaque sync failure.
package conflict

import (
	"context"
	"fmt"

	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/offline/queue"
	"github.com/mmazune/chefcloud/pkg/logging"
)

// StatusFetcher reads an order's current server-side status.
type StatusFetcher interface {
	OrderStatus(ctx context.Context, venueID, orderID string) (string, error)
}

// blockedStatuses lists, per action kind, the server statuses under which the
// action can no longer succeed. Composition edits stop once the order is
// READY; payment and void stop once it is terminal. Kinds absent from the map
// are never pre-screened.
var blockedStatuses = map[string][]string{
	enum.ActionKindAddItems: {
		enum.OrderStatusReady, enum.OrderStatusServed,
		enum.OrderStatusClosed, enum.OrderStatusVoided,
	},
	enum.ActionKindUpdateItems: {
		enum.OrderStatusReady, enum.OrderStatusServed,
		enum.OrderStatusClosed, enum.OrderStatusVoided,
	},
	enum.ActionKindApplyDiscount: {
		enum.OrderStatusReady, enum.OrderStatusServed,
		enum.OrderStatusClosed, enum.OrderStatusVoided,
	},
	enum.ActionKindSendToKitchen: {
		enum.OrderStatusClosed, enum.OrderStatusVoided,
	},
	enum.ActionKindPay: {
		enum.OrderStatusClosed, enum.OrderStatusVoided,
	},
	enum.ActionKindVoid: {
		enum.OrderStatusVoided,
	},
}

// Detector screens actions using live server state.
type Detector struct {
	fetch StatusFetcher
}

// NewDetector builds a detector around the given status source.
func NewDetector(fetch StatusFetcher) *Detector {
	return &Detector{fetch: fetch}
}

// Check returns a non-empty reason when the action is doomed against the
// server's current state. The check fails open: if the status cannot be
// fetched, the action is allowed through and the server stays the authority.
func (d *Detector) Check(ctx context.Context, a queue.Action) string {
	blocked, risky := blockedStatuses[a.Kind]
	if !risky || !a.OrderRef.Valid || a.OrderRef.String == "" {
		return ""
	}

	status, err := d.fetch.OrderStatus(ctx, a.VenueID, a.OrderRef.String)
	if err != nil {
		logging.GetLogger().WithError(err).Debugf("conflict check skipped for action %d", a.ID)
		return ""
	}

	for _, s := range blocked {
		if status == s {
			return fmt.Sprintf("order is %s on the server; %s no longer applies", status, a.Kind)
		}
	}
	return ""
}
