// Package queue is the terminal's durable offline action log. Every mutation
// made while the link to the server is down is appended here and replayed, in
// order, when connectivity returns.
package queue

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/pkg/errors"
)

const schema = `CREATE TABLE IF NOT EXISTS queued_actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	key TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	venue_id TEXT NOT NULL,
	order_ref TEXT,
	payload TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

var (
	ErrNotFound     = errors.New("queued action not found")
	ErrNotRetryable = errors.New("action is not in a retryable status")
)

// Action is one queued mutation. Key doubles as the server-side idempotency
// key, so a replay after a lost response cannot apply twice.
type Action struct {
	ID        int64          `db:"id"`
	Key       string         `db:"key"`
	Kind      string         `db:"kind"`
	VenueID   string         `db:"venue_id"`
	OrderRef  sql.NullString `db:"order_ref"`
	Payload   []byte         `db:"payload"`
	Status    string         `db:"status"`
	Attempts  int            `db:"attempts"`
	LastError sql.NullString `db:"last_error"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Queue is the sqlite-backed action log.
type Queue struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the queue database at path.
func Open(path string) (*Queue, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open queue db")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create queue schema")
	}
	return &Queue{db: db}, nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue appends a PENDING action with a fresh idempotency key.
func (q *Queue) Enqueue(kind, venueID, orderRef string, payload []byte) (Action, error) {
	key := uuid.NewString()
	ref := sql.NullString{}
	if orderRef != "" {
		ref = sql.NullString{String: orderRef, Valid: true}
	}

	res, err := q.db.Exec(`
		INSERT INTO queued_actions (key, kind, venue_id, order_ref, payload, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key, kind, venueID, ref, payload, enum.QueuedActionPending,
	)
	if err != nil {
		return Action{}, errors.Wrap(err, "enqueue action")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Action{}, errors.Wrap(err, "read inserted id")
	}
	return q.Get(id)
}

// Get returns one action by ID.
func (q *Queue) Get(id int64) (Action, error) {
	var a Action
	err := q.db.Get(&a, `SELECT * FROM queued_actions WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Action{}, ErrNotFound
		}
		return Action{}, errors.Wrap(err, "get action")
	}
	return a, nil
}

// ListPending returns PENDING actions in insertion order. Replay order is the
// order the cashier acted in; reordering would break causality between a
// create and the mutations that follow it.
func (q *Queue) ListPending() ([]Action, error) {
	var actions []Action
	err := q.db.Select(&actions, `
		SELECT * FROM queued_actions WHERE status = ? ORDER BY id`,
		enum.QueuedActionPending,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list pending actions")
	}
	return actions, nil
}

// List returns all actions, newest first. An empty status returns everything.
func (q *Queue) List(status string) ([]Action, error) {
	var actions []Action
	var err error
	if status == "" {
		err = q.db.Select(&actions, `SELECT * FROM queued_actions ORDER BY id DESC`)
	} else {
		err = q.db.Select(&actions, `SELECT * FROM queued_actions WHERE status = ? ORDER BY id DESC`, status)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list actions")
	}
	return actions, nil
}

// MarkSyncing moves a PENDING action to SYNCING and bumps its attempt count.
func (q *Queue) MarkSyncing(id int64) error {
	return q.setStatus(id, enum.QueuedActionSyncing, "", enum.QueuedActionPending)
}

// MarkOutcome records the terminal (or retry) outcome of a sync attempt.
func (q *Queue) MarkOutcome(id int64, status, lastError string) error {
	return q.setStatus(id, status, lastError, "")
}

// Retry moves a FAILED action back to PENDING for another pass. CONFLICT
// actions are never retryable: the server state that invalidated them does
// not change by resending, so Discard is their only exit.
func (q *Queue) Retry(id int64) error {
	a, err := q.Get(id)
	if err != nil {
		return err
	}
	if a.Status != enum.QueuedActionFailed {
		return ErrNotRetryable
	}
	return q.setStatus(id, enum.QueuedActionPending, "", "")
}

// Discard removes an action from the queue entirely. Used after a staff
// member reviews a CONFLICT or FAILED entry and decides to drop it.
func (q *Queue) Discard(id int64) error {
	res, err := q.db.Exec(`DELETE FROM queued_actions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "discard action")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "discard action")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneSynced deletes SUCCESS rows whose last update is older than the given
// retention. Synced actions are already applied on the server; keeping them
// briefly gives staff a sync history, keeping them forever grows the queue
// without bound.
func (q *Queue) PruneSynced(retention time.Duration) (int64, error) {
	res, err := q.db.Exec(`
		DELETE FROM queued_actions
		WHERE status = ? AND updated_at <= datetime('now', ?)`,
		enum.QueuedActionSuccess, fmt.Sprintf("-%d seconds", int64(retention.Seconds())),
	)
	if err != nil {
		return 0, errors.Wrap(err, "prune synced actions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "prune synced actions")
	}
	return n, nil
}

// ReconcileSyncing moves stranded SYNCING actions back to PENDING. Called on
// startup: a crash mid-sync leaves SYNCING rows whose fate is unknown, and
// the idempotency key makes re-sending them safe.
func (q *Queue) ReconcileSyncing() (int64, error) {
	res, err := q.db.Exec(`
		UPDATE queued_actions SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE status = ?`,
		enum.QueuedActionPending, enum.QueuedActionSyncing,
	)
	if err != nil {
		return 0, errors.Wrap(err, "reconcile syncing actions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reconcile syncing actions")
	}
	return n, nil
}

func (q *Queue) setStatus(id int64, status, lastError, expected string) error {
	lastErr := sql.NullString{}
	if lastError != "" {
		lastErr = sql.NullString{String: lastError, Valid: true}
	}

	query := `UPDATE queued_actions
		SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP,
		    attempts = attempts + CASE WHEN ? = 'SYNCING' THEN 1 ELSE 0 END
		WHERE id = ?`
	args := []any{status, lastErr, status, id}
	if expected != "" {
		query += ` AND status = ?`
		args = append(args, expected)
	}

	res, err := q.db.Exec(query, args...)
	if err != nil {
		return errors.Wrap(err, "update action status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update action status")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
