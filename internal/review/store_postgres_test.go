package review

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-resolver/internal/model"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return mock
}

func TestNewEntry(t *testing.T) {
	deal := &model.Deal{
		ID:           7,
		Company:      "Acme",
		ContactName:  "Jane Doe",
		ContactEmail: "jane@@acme.com",
	}

	e := NewEntry(deal, model.ReasonInvalidEmail, "email failed to parse")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, int64(7), e.DealID)
	assert.Equal(t, model.ReasonInvalidEmail, e.Reason)
	assert.Equal(t, "Acme", e.Company)
	assert.Equal(t, "jane@@acme.com", e.ContactEmail)
	assert.Equal(t, model.ReviewPending, e.Status)

	other := NewEntry(deal, model.ReasonInvalidEmail, "")
	assert.NotEqual(t, e.ID, other.ID)
}

func TestAppendGeneratesID(t *testing.T) {
	mock := newMockPool(t)
	store := NewPostgresStore(mock)

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO resolver\.review_queue`).
		WithArgs(pgxmock.AnyArg(), int64(7), "no_email", "Acme", "Jane Doe", "", "", "pending").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	e := &model.ReviewEntry{
		DealID:      7,
		Reason:      model.ReasonNoEmail,
		Company:     "Acme",
		ContactName: "Jane Doe",
	}
	require.NoError(t, store.Append(context.Background(), e))
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, model.ReviewPending, e.Status)
}

func TestListPendingWithReasonFilter(t *testing.T) {
	mock := newMockPool(t)
	store := NewPostgresStore(mock)

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM resolver\.review_queue WHERE status = 'pending'`).
		WithArgs("fuzzy_match_uncertainty", 5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "deal_id", "reason", "company", "contact_name", "contact_email",
			"notes", "status", "created_at", "updated_at"}).
			AddRow("a1", int64(1), model.ReasonFuzzyMatchUncertain, "Acme", "Jane Doe", "jane@gmail.com",
				"candidates: Acme, Acme (2)", "pending", now, now))

	entries, err := store.ListPending(context.Background(), Filter{
		Reason: model.ReasonFuzzyMatchUncertain,
		Limit:  5,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a1", entries[0].ID)
	assert.Equal(t, model.ReasonFuzzyMatchUncertain, entries[0].Reason)
}

func TestGetNotFound(t *testing.T) {
	mock := newMockPool(t)
	store := NewPostgresStore(mock)

	mock.ExpectQuery(`SELECT .+ FROM resolver\.review_queue WHERE id`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "deal_id", "reason", "company", "contact_name", "contact_email",
			"notes", "status", "created_at", "updated_at"}))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve(t *testing.T) {
	mock := newMockPool(t)
	store := NewPostgresStore(mock)

	mock.ExpectExec(`UPDATE resolver\.review_queue`).
		WithArgs("a1", "linked manually").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Resolve(context.Background(), "a1", "linked manually"))
}

func TestResolveAlreadyResolved(t *testing.T) {
	mock := newMockPool(t)
	store := NewPostgresStore(mock)

	mock.ExpectExec(`UPDATE resolver\.review_queue`).
		WithArgs("a1", "again").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.Resolve(context.Background(), "a1", "again")
	assert.ErrorIs(t, err, ErrNotFound)
}
