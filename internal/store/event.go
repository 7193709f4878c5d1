package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
)

// BlinkEvent is one recorded blink. IDs are ULIDs, so they sort by time.
type BlinkEvent struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Seq       int64     `db:"seq" json:"seq"`
	ChangeMax float64   `db:"change_max" json:"change"`
	Threshold float64   `db:"threshold" json:"threshold"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

func newULID(t time.Time) (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// EventRepository provides access to blink events.
type EventRepository struct {
	db *sqlx.DB
}

// Events returns the blink event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Add inserts ev and increments its session's blink count.
func (r *EventRepository) Add(ctx context.Context, ev *BlinkEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	if ev.ID == "" {
		id, err := newULID(ev.CreatedAt)
		if err != nil {
			return fmt.Errorf("event id: %w", err)
		}
		ev.ID = id
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE sessions SET blinks = blinks + 1 WHERE id = ?`, ev.SessionID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO blink_events (id, session_id, seq, change_max, threshold, created_at)
		 VALUES (:id, :session_id, :seq, :change_max, :threshold, :created_at)`,
		ev,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ListBySession returns a session's events, oldest first. A limit of 0 returns all.
func (r *EventRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*BlinkEvent, error) {
	query := `SELECT id, session_id, seq, change_max, threshold, created_at
		FROM blink_events WHERE session_id = ? ORDER BY id`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	events := []*BlinkEvent{}
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, err
	}
	return events, nil
}

// CountSince returns the number of blinks recorded at or after t across all sessions.
func (r *EventRepository) CountSince(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM blink_events WHERE created_at >= ?`, t.UTC())
	return n, err
}
