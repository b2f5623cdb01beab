package conflict

import (
	"context"
	"database/sql"
	"testing"

	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/offline/queue"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type fakeFetcher struct {
	status string
	err    error
	calls  int
}

func (f *fakeFetcher) OrderStatus(ctx context.Context, venueID, orderID string) (string, error) {
	f.calls++
	return f.status, f.err
}

func withRef(kind string) queue.Action {
	return queue.Action{
		ID:       1,
		Kind:     kind,
		VenueID:  "venue-1",
		OrderRef: sql.NullString{String: "order-1", Valid: true},
	}
}

func TestCheckBlocksDoomedActions(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		status string
		doomed bool
	}{
		{"void against voided order", enum.ActionKindVoid, enum.OrderStatusVoided, true},
		{"void against closed order", enum.ActionKindVoid, enum.OrderStatusClosed, false},
		{"pay against closed order", enum.ActionKindPay, enum.OrderStatusClosed, true},
		{"pay against served order", enum.ActionKindPay, enum.OrderStatusServed, false},
		{"add items once ready", enum.ActionKindAddItems, enum.OrderStatusReady, true},
		{"add items while in prep", enum.ActionKindAddItems, enum.OrderStatusInPrep, false},
		{"update items against closed order", enum.ActionKindUpdateItems, enum.OrderStatusClosed, true},
		{"discount against served order", enum.ActionKindApplyDiscount, enum.OrderStatusServed, true},
		{"send to kitchen against voided order", enum.ActionKindSendToKitchen, enum.OrderStatusVoided, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(&fakeFetcher{status: tt.status})
			reason := d.Check(context.Background(), withRef(tt.kind))
			if tt.doomed {
				assert.NotEmpty(t, reason)
				assert.Contains(t, reason, tt.status)
			} else {
				assert.Empty(t, reason)
			}
		})
	}
}

func TestCheckSkipsCreateOrder(t *testing.T) {
	fetch := &fakeFetcher{status: enum.OrderStatusClosed}
	d := NewDetector(fetch)

	a := queue.Action{ID: 1, Kind: enum.ActionKindCreateOrder, VenueID: "venue-1"}
	assert.Empty(t, d.Check(context.Background(), a))
	assert.Zero(t, fetch.calls)
}

func TestCheckSkipsActionsWithoutOrderRef(t *testing.T) {
	fetch := &fakeFetcher{status: enum.OrderStatusClosed}
	d := NewDetector(fetch)

	a := queue.Action{ID: 1, Kind: enum.ActionKindPay, VenueID: "venue-1"}
	assert.Empty(t, d.Check(context.Background(), a))
	assert.Zero(t, fetch.calls)
}

func TestCheckFailsOpenWhenStatusUnavailable(t *testing.T) {
	d := NewDetector(&fakeFetcher{err: errors.New("connection refused")})

	// The server stays the authority when we cannot see its state.
	assert.Empty(t, d.Check(context.Background(), withRef(enum.ActionKindVoid)))
}
