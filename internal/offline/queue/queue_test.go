package queue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueStartsPendingWithKey(t *testing.T) {
	q := openTestQueue(t)

	a, err := q.Enqueue(enum.ActionKindCreateOrder, "venue-1", "", []byte(`{"service_type":"DINE_IN"}`))
	require.NoError(t, err)

	assert.Equal(t, enum.QueuedActionPending, a.Status)
	assert.NotEmpty(t, a.Key)
	assert.Equal(t, 0, a.Attempts)
	assert.False(t, a.OrderRef.Valid)

	b, err := q.Enqueue(enum.ActionKindAddItems, "venue-1", "order-9", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "order-9", b.OrderRef.String)
	assert.NotEqual(t, a.Key, b.Key)
}

func TestListPendingIsInsertionOrder(t *testing.T) {
	q := openTestQueue(t)

	first, err := q.Enqueue(enum.ActionKindCreateOrder, "venue-1", "", []byte(`{}`))
	require.NoError(t, err)
	second, err := q.Enqueue(enum.ActionKindAddItems, "venue-1", "order-1", []byte(`{}`))
	require.NoError(t, err)
	third, err := q.Enqueue(enum.ActionKindPay, "venue-1", "order-1", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, q.MarkOutcome(second.ID, enum.QueuedActionFailed, "boom"))

	pending, err := q.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, third.ID, pending[1].ID)
}

func TestMarkSyncingBumpsAttemptsAndGuardsStatus(t *testing.T) {
	q := openTestQueue(t)

	a, err := q.Enqueue(enum.ActionKindVoid, "venue-1", "order-1", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, q.MarkSyncing(a.ID))
	got, err := q.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.QueuedActionSyncing, got.Status)
	assert.Equal(t, 1, got.Attempts)

	// Already SYNCING; the guarded update must not apply twice.
	err = q.MarkSyncing(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err = q.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
}

func TestMarkOutcomeRecordsError(t *testing.T) {
	q := openTestQueue(t)

	a, err := q.Enqueue(enum.ActionKindPay, "venue-1", "order-1", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, q.MarkOutcome(a.ID, enum.QueuedActionConflict, "order is CLOSED on the server"))
	got, err := q.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.QueuedActionConflict, got.Status)
	assert.Equal(t, "order is CLOSED on the server", got.LastError.String)
}

func TestRetryOnlyFromFailed(t *testing.T) {
	q := openTestQueue(t)

	a, err := q.Enqueue(enum.ActionKindUpdateItems, "venue-1", "order-1", []byte(`{}`))
	require.NoError(t, err)

	assert.ErrorIs(t, q.Retry(a.ID), ErrNotRetryable)

	require.NoError(t, q.MarkOutcome(a.ID, enum.QueuedActionFailed, "rejected"))
	require.NoError(t, q.Retry(a.ID))

	got, err := q.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.QueuedActionPending, got.Status)
	assert.False(t, got.LastError.Valid)
}

func TestRetryNeverResurrectsConflicts(t *testing.T) {
	q := openTestQueue(t)

	a, err := q.Enqueue(enum.ActionKindPay, "venue-1", "order-1", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, q.MarkOutcome(a.ID, enum.QueuedActionConflict, "order is CLOSED on the server"))

	assert.ErrorIs(t, q.Retry(a.ID), ErrNotRetryable)

	got, err := q.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.QueuedActionConflict, got.Status)

	pending, err := q.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Discard remains the only exit for a conflicted action.
	require.NoError(t, q.Discard(a.ID))
}

func TestPruneSyncedDropsOnlySuccessRows(t *testing.T) {
	q := openTestQueue(t)

	synced, err := q.Enqueue(enum.ActionKindCreateOrder, "venue-1", "", []byte(`{}`))
	require.NoError(t, err)
	failed, err := q.Enqueue(enum.ActionKindPay, "venue-1", "order-1", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, q.MarkOutcome(synced.ID, enum.QueuedActionSuccess, ""))
	require.NoError(t, q.MarkOutcome(failed.ID, enum.QueuedActionFailed, "rejected"))

	// Nothing is old enough yet.
	n, err := q.PruneSynced(time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = q.PruneSynced(0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = q.Get(synced.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := q.Get(failed.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.QueuedActionFailed, got.Status)
}

func TestDiscardRemovesAction(t *testing.T) {
	q := openTestQueue(t)

	a, err := q.Enqueue(enum.ActionKindApplyDiscount, "venue-1", "order-1", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, q.Discard(a.ID))
	_, err = q.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, q.Discard(a.ID), ErrNotFound)
}

func TestReconcileSyncingReturnsStrandedActions(t *testing.T) {
	q := openTestQueue(t)

	a, err := q.Enqueue(enum.ActionKindSendToKitchen, "venue-1", "order-1", []byte(`{}`))
	require.NoError(t, err)
	b, err := q.Enqueue(enum.ActionKindPay, "venue-1", "order-1", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, q.MarkSyncing(a.ID))
	require.NoError(t, q.MarkOutcome(b.ID, enum.QueuedActionSuccess, ""))

	n, err := q.ReconcileSyncing()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := q.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.QueuedActionPending, got.Status)

	done, err := q.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.QueuedActionSuccess, done.Status)
}
