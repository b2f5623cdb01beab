// Package sync drains the offline action queue against the order engine.
// Actions replay strictly first-in first-out, one drain at a time.
package sync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/offline/api"
	"github.com/mmazune/chefcloud/internal/offline/queue"
	"github.com/mmazune/chefcloud/pkg/logging"
	"github.com/pkg/errors"
)

// ErrAlreadyDraining is returned when a drain is requested while one is
// already running. The caller just waits for the next interval.
var ErrAlreadyDraining = errors.New("a sync pass is already running")

// syncedRetention is how long SUCCESS rows stay visible as sync history
// before a drain pass prunes them.
const syncedRetention = 24 * time.Hour

// Store is the slice of the queue the coordinator needs.
type Store interface {
	ListPending() ([]queue.Action, error)
	MarkSyncing(id int64) error
	MarkOutcome(id int64, status, lastError string) error
	PruneSynced(retention time.Duration) (int64, error)
}

// Executor replays one action against the engine.
type Executor interface {
	Execute(ctx context.Context, a queue.Action) error
}

// Screener pre-checks an action; a non-empty string is the conflict reason.
type Screener interface {
	Check(ctx context.Context, a queue.Action) string
}

// Result summarizes one drain pass.
type Result struct {
	Synced    int
	Conflicts int
	Failed    int
	Deferred  int
}

// Coordinator drains the queue. Safe for concurrent use; only one drain runs
// at a time.
type Coordinator struct {
	store    Store
	exec     Executor
	screen   Screener
	draining atomic.Bool
}

// NewCoordinator wires the queue, the API client, and the conflict screen.
func NewCoordinator(store Store, exec Executor, screen Screener) *Coordinator {
	return &Coordinator{store: store, exec: exec, screen: screen}
}

// Drain replays all PENDING actions in insertion order. An unreachable server
// aborts the pass and leaves the rest of the queue untouched; a conflicted or
// rejected action is recorded and the pass moves on, so one bad action never
// wedges the queue behind it.
func (c *Coordinator) Drain(ctx context.Context) (Result, error) {
	if !c.draining.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyDraining
	}
	defer c.draining.Store(false)

	log := logging.GetLogger()
	var res Result

	actions, err := c.store.ListPending()
	if err != nil {
		return res, errors.Wrap(err, "list pending actions")
	}

	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			res.Deferred += remaining(actions, a.ID)
			return res, err
		}

		if reason := c.screen.Check(ctx, a); reason != "" {
			log.Warnf("action %d (%s) conflicts: %s", a.ID, a.Kind, reason)
			if err := c.store.MarkOutcome(a.ID, enum.QueuedActionConflict, reason); err != nil {
				return res, errors.Wrapf(err, "mark action %d conflicted", a.ID)
			}
			res.Conflicts++
			continue
		}

		if err := c.store.MarkSyncing(a.ID); err != nil {
			if errors.Is(err, queue.ErrNotFound) {
				// Discarded or retried out from under us; skip it.
				continue
			}
			return res, errors.Wrapf(err, "mark action %d syncing", a.ID)
		}

		err := c.exec.Execute(ctx, a)
		switch {
		case err == nil:
			if err := c.store.MarkOutcome(a.ID, enum.QueuedActionSuccess, ""); err != nil {
				return res, errors.Wrapf(err, "mark action %d synced", a.ID)
			}
			res.Synced++

		case errors.Is(err, api.ErrUnavailable):
			log.WithError(err).Warnf("server unreachable; deferring action %d and aborting pass", a.ID)
			if err := c.store.MarkOutcome(a.ID, enum.QueuedActionPending, err.Error()); err != nil {
				return res, errors.Wrapf(err, "defer action %d", a.ID)
			}
			res.Deferred += remaining(actions, a.ID) + 1
			return res, nil

		case errors.Is(err, api.ErrConflict):
			log.WithError(err).Warnf("action %d (%s) conflicted on replay", a.ID, a.Kind)
			if err := c.store.MarkOutcome(a.ID, enum.QueuedActionConflict, err.Error()); err != nil {
				return res, errors.Wrapf(err, "mark action %d conflicted", a.ID)
			}
			res.Conflicts++

		default:
			log.WithError(err).Errorf("action %d (%s) rejected", a.ID, a.Kind)
			if err := c.store.MarkOutcome(a.ID, enum.QueuedActionFailed, err.Error()); err != nil {
				return res, errors.Wrapf(err, "mark action %d failed", a.ID)
			}
			res.Failed++
		}
	}

	if n, err := c.store.PruneSynced(syncedRetention); err != nil {
		log.WithError(err).Warn("prune synced actions")
	} else if n > 0 {
		log.Debugf("pruned %d synced actions", n)
	}

	return res, nil
}

// Run drains on a fixed interval until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	log := logging.GetLogger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := c.Drain(ctx)
		if err != nil && !errors.Is(err, ErrAlreadyDraining) && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("sync pass failed")
		}
		if res.Synced+res.Conflicts+res.Failed > 0 {
			log.Infof("sync pass: %d synced, %d conflicts, %d failed, %d deferred",
				res.Synced, res.Conflicts, res.Failed, res.Deferred)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// remaining counts actions after the one with the given ID.
func remaining(actions []queue.Action, afterID int64) int {
	n := 0
	for _, a := range actions {
		if a.ID > afterID {
			n++
		}
	}
	return n
}
