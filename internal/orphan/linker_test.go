package orphan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/model"
	"github.com/sells-group/crm-resolver/internal/resolve"
	"github.com/sells-group/crm-resolver/internal/review"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeStore implements the store methods the linker touches; everything
// else panics via the embedded nil interface.
type fakeStore struct {
	resolve.Store
	unlinked []model.Contact
	nameOnly map[string][]model.Company
	attached map[int64]int64
}

func (f *fakeStore) ListUnlinkedContacts(_ context.Context, owner string) ([]model.Contact, error) {
	var out []model.Contact
	for _, c := range f.unlinked {
		if owner == "" || c.Owner == owner {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) ListNameOnlyCompanies(_ context.Context, owner string) ([]model.Company, error) {
	return f.nameOnly[owner], nil
}

func (f *fakeStore) GetCompanyByName(_ context.Context, owner, name string) (*model.Company, error) {
	for _, c := range f.nameOnly[owner] {
		if c.Name == name {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AttachContactCompany(_ context.Context, contactID, companyID int64) (bool, error) {
	if f.attached == nil {
		f.attached = map[int64]int64{}
	}
	if _, done := f.attached[contactID]; done {
		return false, nil
	}
	f.attached[contactID] = companyID
	return true, nil
}

type fakeReviews struct {
	review.Store
	entries []model.ReviewEntry
}

func (f *fakeReviews) Append(_ context.Context, e *model.ReviewEntry) error {
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeReviews) ListPending(_ context.Context, fl review.Filter) ([]model.ReviewEntry, error) {
	var out []model.ReviewEntry
	for _, e := range f.entries {
		if fl.Reason == "" || e.Reason == fl.Reason {
			out = append(out, e)
		}
	}
	return out, nil
}

func company(id int64, name, owner string, created time.Time) model.Company {
	return model.Company{ID: id, Name: name, Owner: owner, CreatedAt: created}
}

func TestLinkerExactMatch(t *testing.T) {
	store := &fakeStore{
		unlinked: []model.Contact{
			{ID: 1, Email: "jane@gmail.com", FirstName: "Jane", LastName: "Doe", Owner: "alice"},
		},
		nameOnly: map[string][]model.Company{
			"alice": {company(10, "Jane Doe", "alice", time.Now())},
		},
	}
	reviews := &fakeReviews{}

	report, err := NewLinker(store, reviews, nil).Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Linked)
	assert.Zero(t, report.Unlinked)
	assert.InDelta(t, 100.0, report.Percent, 0.01)
	assert.Equal(t, int64(10), store.attached[1])
}

func TestLinkerCaseInsensitiveEarliestWins(t *testing.T) {
	now := time.Now()
	store := &fakeStore{
		unlinked: []model.Contact{
			{ID: 1, Email: "jane@gmail.com", FirstName: "jane", LastName: "DOE", Owner: "alice"},
		},
		// Ordered by creation time, as the store contract guarantees.
		nameOnly: map[string][]model.Company{
			"alice": {
				company(10, "Jane Doe", "alice", now.Add(-time.Hour)),
				company(11, "JANE DOE", "alice", now),
			},
		},
	}
	reviews := &fakeReviews{}

	_, err := NewLinker(store, reviews, nil).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), store.attached[1], "earliest-created company wins the tie")
}

func TestLinkerOverrideTakesPrecedence(t *testing.T) {
	store := &fakeStore{
		unlinked: []model.Contact{
			{ID: 1, Email: "jane@gmail.com", FirstName: "Jane", LastName: "Doe", Owner: "alice"},
		},
		nameOnly: map[string][]model.Company{
			"alice": {
				company(10, "Jane Doe", "alice", time.Now()),
				company(11, "Jane Consulting", "alice", time.Now()),
			},
		},
	}
	reviews := &fakeReviews{}
	overrides := Overrides{"jane@gmail.com": "Jane Consulting"}

	report, err := NewLinker(store, reviews, overrides).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Linked)
	assert.Equal(t, int64(11), store.attached[1], "override beats the exact name match")
}

func TestLinkerOverrideMissingCompany(t *testing.T) {
	store := &fakeStore{
		unlinked: []model.Contact{
			{ID: 1, Email: "jane@gmail.com", FirstName: "Jane", LastName: "Doe", Owner: "alice"},
		},
		nameOnly: map[string][]model.Company{},
	}
	reviews := &fakeReviews{}
	overrides := Overrides{"jane@gmail.com": "No Such Co"}

	report, err := NewLinker(store, reviews, overrides).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, report.Linked)
	assert.Equal(t, 1, report.Unlinked)
	assert.Empty(t, store.attached)
}

func TestLinkerUncertainMatchGoesToReview(t *testing.T) {
	store := &fakeStore{
		unlinked: []model.Contact{
			{ID: 1, Email: "jane@gmail.com", FirstName: "Jane", LastName: "Doe", Owner: "alice"},
		},
		nameOnly: map[string][]model.Company{
			"alice": {
				company(10, "Jane Doe Consulting", "alice", time.Now()),
				company(11, "Jane Doe LLC", "alice", time.Now()),
			},
		},
	}
	reviews := &fakeReviews{}

	report, err := NewLinker(store, reviews, nil).Run(context.Background(), "")
	require.NoError(t, err)

	assert.Zero(t, report.Linked)
	assert.Equal(t, 1, report.Unlinked)
	assert.Equal(t, 1, report.Uncertain)
	require.Len(t, reviews.entries, 1)
	e := reviews.entries[0]
	assert.Equal(t, model.ReasonFuzzyMatchUncertain, e.Reason)
	assert.Equal(t, "jane@gmail.com", e.ContactEmail)
	assert.Contains(t, e.Notes, "Jane Doe Consulting")
	assert.Contains(t, e.Notes, "Jane Doe LLC")
	assert.Zero(t, e.DealID)
}

func TestLinkerNoMatchNoCandidates(t *testing.T) {
	store := &fakeStore{
		unlinked: []model.Contact{
			{ID: 1, Email: "jane@gmail.com", FirstName: "Jane", LastName: "Doe", Owner: "alice"},
		},
		nameOnly: map[string][]model.Company{
			"alice": {company(10, "Globex", "alice", time.Now())},
		},
	}
	reviews := &fakeReviews{}

	report, err := NewLinker(store, reviews, nil).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unlinked)
	assert.Empty(t, reviews.entries, "no near candidates means no review noise")
}

func TestLinkerScopesByOwner(t *testing.T) {
	store := &fakeStore{
		unlinked: []model.Contact{
			{ID: 1, Email: "jane@gmail.com", FirstName: "Jane", LastName: "Doe", Owner: "alice"},
		},
		// The only matching company belongs to a different owner.
		nameOnly: map[string][]model.Company{
			"bob": {company(10, "Jane Doe", "bob", time.Now())},
		},
	}
	reviews := &fakeReviews{}

	report, err := NewLinker(store, reviews, nil).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, report.Linked)
	assert.Equal(t, 1, report.Unlinked)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
overrides:
  Jane@Gmail.com: Jane Consulting
  bob@yahoo.com: " Globex "
`), 0o644))

	o, err := LoadOverrides(path)
	require.NoError(t, err)

	name, ok := o.Target("jane@gmail.com")
	assert.True(t, ok)
	assert.Equal(t, "Jane Consulting", name)

	name, ok = o.Target("BOB@YAHOO.COM")
	assert.True(t, ok)
	assert.Equal(t, "Globex", name)

	_, ok = o.Target("nobody@gmail.com")
	assert.False(t, ok)
}

func TestLoadOverridesMissingFile(t *testing.T) {
	o, err := LoadOverrides(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, o)
}

func TestLoadOverridesMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("overrides: [not, a, map]"), 0o644))

	_, err := LoadOverrides(path)
	assert.Error(t, err)
}

func TestReportString(t *testing.T) {
	r := &Report{Linked: 3, Unlinked: 1, Uncertain: 1, Percent: 75}
	assert.Equal(t, "linked 3, unlinked 1 (75.0% coverage), 1 uncertain", r.String())
}
