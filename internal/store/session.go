package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Session is one detection run.
type Session struct {
	ID         string       `db:"id" json:"id"`
	StartedAt  time.Time    `db:"started_at" json:"started_at"`
	EndedAt    sql.NullTime `db:"ended_at" json:"-"`
	Extractor  string       `db:"extractor" json:"extractor"`
	Calibrator string       `db:"calibrator" json:"calibrator"`
	Frames     int64        `db:"frames" json:"frames"`
	Blinks     int64        `db:"blinks" json:"blinks"`
}

// Active reports whether the session has not ended.
func (s *Session) Active() bool { return !s.EndedAt.Valid }

// SessionRepository provides access to sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

const sessionColumns = `id, started_at, ended_at, extractor, calibrator, frames, blinks`

// Create inserts s, assigning an ID and start time when unset.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}

	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES (:id, :started_at, :ended_at, :extractor, :calibrator, :frames, :blinks)`,
		s,
	)
	return err
}

// End closes the session with its final frame count.
func (r *SessionRepository) End(ctx context.Context, id string, at time.Time, frames int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, frames = ? WHERE id = ?`,
		at.UTC(), frames, id,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a session.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	s := &Session{}
	err := r.db.GetContext(ctx, s, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// List returns the most recent sessions first. A limit of 0 returns all.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	sessions := []*Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CloseDangling ends every session left open by a crash, stamping it with at.
func (r *SessionRepository) CloseDangling(ctx context.Context, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE ended_at IS NULL`, at.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Delete removes a session and its events.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
