package review

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-resolver/internal/model"
)

// SQLiteStore implements Store over the dev store's database handle.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing handle; the schema is owned by the
// resolution store that opened it.
func NewSQLiteStore(sdb *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: sdb}
}

func (s *SQLiteStore) Append(ctx context.Context, e *model.ReviewEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = model.ReviewPending
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO review_queue (id, deal_id, reason, company, contact_name, contact_email, notes, status)
		VALUES (?, NULLIF(?, 0), ?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at`,
		e.ID, e.DealID, string(e.Reason), e.Company, e.ContactName, e.ContactEmail, e.Notes, e.Status,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "review: append entry for deal %d", e.DealID)
	}
	return nil
}

func (s *SQLiteStore) ListPending(ctx context.Context, f Filter) ([]model.ReviewEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM review_queue WHERE status = 'pending'`
	args := []any{}

	if f.Reason != "" {
		query += ` AND reason = ?`
		args = append(args, string(f.Reason))
	}
	query += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.ReviewEntry, error) {
	e := &model.ReviewEntry{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM review_queue WHERE id = ?`, id,
	).Scan(&e.ID, &e.DealID, &e.Reason, &e.Company, &e.ContactName,
		&e.ContactEmail, &e.Notes, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "review: get entry %s", id)
	}
	return e, nil
}

func (s *SQLiteStore) Resolve(ctx context.Context, id, notes string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != model.ReviewPending {
		return ErrNotFound
	}

	merged := strings.TrimSpace(strings.Trim(current.Notes+"\n"+notes, "\n"))
	res, err := s.db.ExecContext(ctx, `
		UPDATE review_queue
		SET status = 'resolved', notes = ?, updated_at = datetime('now')
		WHERE id = ? AND status = 'pending'`,
		merged, id)
	if err != nil {
		return eris.Wrapf(err, "review: resolve entry %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "review: resolve rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
