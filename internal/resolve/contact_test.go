package resolve

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-resolver/internal/model"
)

func int64Ptr(v int64) *int64 { return &v }

func TestResolveContactRejectsMissingEmail(t *testing.T) {
	r := NewResolver(&mockStore{})

	_, err := r.ResolveContact(context.Background(), ModeBatch, "", "Jane Doe", nil, "alice")
	assert.ErrorIs(t, err, ErrNoEmail)

	_, err = r.ResolveContact(context.Background(), ModeBatch, "not-an-email", "Jane Doe", nil, "alice")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestResolveContactCreates(t *testing.T) {
	var created *model.Contact
	store := &mockStore{
		createContact: func(_ context.Context, c *model.Contact) error {
			c.ID = 3
			c.IsPrimary = true
			created = c
			return nil
		},
	}

	id, err := NewResolver(store).ResolveContact(context.Background(), ModeBatch, "Jane@Acme.com", "Jane Doe", int64Ptr(42), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	require.NotNil(t, created)
	assert.Equal(t, "jane@acme.com", created.Email, "email is normalized to lowercase")
	assert.Equal(t, "Jane", created.FirstName)
	assert.Equal(t, "Doe", created.LastName)
	require.NotNil(t, created.CompanyID)
	assert.Equal(t, int64(42), *created.CompanyID)
}

func TestResolveContactPrefersCompanyScopedMatch(t *testing.T) {
	store := &mockStore{
		getContactByEmailAndCompany: func(_ context.Context, email string, companyID int64) (*model.Contact, error) {
			require.Equal(t, "jane@acme.com", email)
			require.Equal(t, int64(42), companyID)
			return &model.Contact{ID: 9, Email: email, CompanyID: int64Ptr(companyID)}, nil
		},
		getContactByEmail: func(context.Context, string) (*model.Contact, error) {
			t.Fatal("global lookup must not run when the scoped match hits")
			return nil, nil
		},
	}

	id, err := NewResolver(store).ResolveContact(context.Background(), ModeBatch, "jane@acme.com", "Jane Doe", int64Ptr(42), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
}

func TestResolveContactFillsForwardNullCompany(t *testing.T) {
	attachedTo := int64(0)
	store := &mockStore{
		getContactByEmail: func(_ context.Context, email string) (*model.Contact, error) {
			return &model.Contact{ID: 9, Email: email}, nil
		},
		attachContactCompany: func(_ context.Context, contactID, companyID int64) (bool, error) {
			require.Equal(t, int64(9), contactID)
			attachedTo = companyID
			return true, nil
		},
	}

	id, err := NewResolver(store).ResolveContact(context.Background(), ModeBatch, "jane@acme.com", "Jane Doe", int64Ptr(42), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.Equal(t, int64(42), attachedTo)
}

func TestResolveContactNeverReassignsCompany(t *testing.T) {
	store := &mockStore{
		getContactByEmail: func(_ context.Context, email string) (*model.Contact, error) {
			return &model.Contact{ID: 9, Email: email, CompanyID: int64Ptr(1)}, nil
		},
		attachContactCompany: func(context.Context, int64, int64) (bool, error) {
			t.Fatal("a bound contact must keep its company")
			return false, nil
		},
	}

	id, err := NewResolver(store).ResolveContact(context.Background(), ModeBatch, "jane@acme.com", "Jane Doe", int64Ptr(42), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
}

func TestResolveContactKeepsNullCompanyWhenNoneOffered(t *testing.T) {
	store := &mockStore{
		getContactByEmail: func(_ context.Context, email string) (*model.Contact, error) {
			return &model.Contact{ID: 9, Email: email}, nil
		},
		attachContactCompany: func(context.Context, int64, int64) (bool, error) {
			t.Fatal("nothing to attach without a company")
			return false, nil
		},
	}

	id, err := NewResolver(store).ResolveContact(context.Background(), ModeIncremental, "jane@gmail.com", "Jane Doe", nil, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
}

func TestResolveContactEmailRaceFinds(t *testing.T) {
	lookups := 0
	store := &mockStore{
		getContactByEmail: func(_ context.Context, email string) (*model.Contact, error) {
			lookups++
			if lookups == 1 {
				return nil, nil
			}
			return &model.Contact{ID: 13, Email: email, CompanyID: int64Ptr(42)}, nil
		},
		createContact: func(context.Context, *model.Contact) error {
			return ErrDuplicateEmail
		},
	}

	id, err := NewResolver(store).ResolveContact(context.Background(), ModeBatch, "jane@acme.com", "Jane Doe", int64Ptr(42), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(13), id)
	assert.Equal(t, 2, lookups)
}

func TestResolveContactEmailRaceVanished(t *testing.T) {
	store := &mockStore{
		createContact: func(context.Context, *model.Contact) error {
			return ErrDuplicateEmail
		},
	}

	_, err := NewResolver(store).ResolveContact(context.Background(), ModeBatch, "jane@acme.com", "Jane Doe", nil, "alice")
	assert.ErrorIs(t, err, ErrEntityCreation)
}

func TestResolveContactConcurrentCallersShareOneRow(t *testing.T) {
	var (
		mu      sync.Mutex
		created *model.Contact
		creates int
	)
	store := &mockStore{
		getContactByEmail: func(context.Context, string) (*model.Contact, error) {
			mu.Lock()
			defer mu.Unlock()
			if created == nil {
				return nil, nil
			}
			cp := *created
			return &cp, nil
		},
		createContact: func(_ context.Context, c *model.Contact) error {
			mu.Lock()
			defer mu.Unlock()
			if created != nil {
				return ErrDuplicateEmail
			}
			creates++
			c.ID = 13
			cp := *c
			created = &cp
			return nil
		},
	}
	r := NewResolver(store)

	const callers = 16
	start := make(chan struct{})
	ids := make([]int64, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ids[i], errs[i] = r.ResolveContact(context.Background(), ModeBatch, "same@corp.com", "Jane Doe", nil, "alice")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(13), ids[i])
	}
	assert.Equal(t, 1, creates, "concurrent callers for one email must share a single create")
}
