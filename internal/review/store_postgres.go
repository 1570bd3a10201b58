package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-resolver/internal/db"
	"github.com/sells-group/crm-resolver/internal/model"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// PostgresStore implements Store over a shared pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// deal_id is null for entries not attached to a deal (orphan-linker
// uncertainty); the model carries that as zero.
const entryColumns = `id, COALESCE(deal_id, 0), reason, company, contact_name, contact_email, notes, status, created_at, updated_at`

// Append records a new pending entry.
func (s *PostgresStore) Append(ctx context.Context, e *model.ReviewEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = model.ReviewPending
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO resolver.review_queue (id, deal_id, reason, company, contact_name, contact_email, notes, status)
		VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		e.ID, e.DealID, string(e.Reason), e.Company, e.ContactName, e.ContactEmail, e.Notes, e.Status,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "review: append entry for deal %d", e.DealID)
	}
	return nil
}

// ListPending returns pending entries oldest first, optionally filtered by
// reason and capped at f.Limit.
func (s *PostgresStore) ListPending(ctx context.Context, f Filter) ([]model.ReviewEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM resolver.review_queue WHERE status = 'pending'`
	args := []any{}
	argIdx := 1

	if f.Reason != "" {
		query += fmt.Sprintf(` AND reason = $%d`, argIdx)
		args = append(args, string(f.Reason))
		argIdx++
	}
	query += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "review: list pending")
	}
	defer rows.Close()

	var entries []model.ReviewEntry
	for rows.Next() {
		var e model.ReviewEntry
		if err := rows.Scan(&e.ID, &e.DealID, &e.Reason, &e.Company, &e.ContactName,
			&e.ContactEmail, &e.Notes, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "review: scan entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "review: iterate pending")
}

// Get fetches one entry by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.ReviewEntry, error) {
	e := &model.ReviewEntry{}
	err := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM resolver.review_queue WHERE id = $1`, id,
	).Scan(&e.ID, &e.DealID, &e.Reason, &e.Company, &e.ContactName,
		&e.ContactEmail, &e.Notes, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "review: get entry %s", id)
	}
	return e, nil
}

// Resolve marks an entry resolved with operator notes.
func (s *PostgresStore) Resolve(ctx context.Context, id, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE resolver.review_queue
		SET status = 'resolved', notes = TRIM(notes || E'\n' || $2, E'\n'), updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id, notes)
	if err != nil {
		return eris.Wrapf(err, "review: resolve entry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
