package resolve

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// mockStore implements Store with overridable function fields. Unset
// fields return zero values.
type mockStore struct {
	getCompanyByDomain          func(ctx context.Context, domain string) (*model.Company, error)
	getCompanyByName            func(ctx context.Context, owner, name string) (*model.Company, error)
	createCompany               func(ctx context.Context, c *model.Company) error
	listCompanyNames            func(ctx context.Context, owner, base string) ([]string, error)
	listNameOnlyCompanies       func(ctx context.Context, owner string) ([]model.Company, error)
	getContactByEmail           func(ctx context.Context, email string) (*model.Contact, error)
	getContactByEmailAndCompany func(ctx context.Context, email string, companyID int64) (*model.Contact, error)
	createContact               func(ctx context.Context, c *model.Contact) error
	attachContactCompany        func(ctx context.Context, contactID, companyID int64) (bool, error)
	listUnlinkedContacts        func(ctx context.Context, owner string) ([]model.Contact, error)
	insertDeal                  func(ctx context.Context, d *model.Deal) error
	getDealByCRMID              func(ctx context.Context, crmID string) (*model.Deal, error)
	listUnresolvedDeals         func(ctx context.Context, f DealFilter) ([]model.Deal, error)
	setDealState                func(ctx context.Context, dealID int64, state model.ResolutionState) error
	setDealResolved             func(ctx context.Context, dealID, companyID, contactID int64) error
	startRun                    func(ctx context.Context) (int64, error)
	completeRun                 func(ctx context.Context, runID int64, success, errors, skipped int) error
	acquireRunLock              func(ctx context.Context) (func(), error)
}

func (m *mockStore) GetCompanyByDomain(ctx context.Context, domain string) (*model.Company, error) {
	if m.getCompanyByDomain != nil {
		return m.getCompanyByDomain(ctx, domain)
	}
	return nil, nil
}

func (m *mockStore) GetCompanyByName(ctx context.Context, owner, name string) (*model.Company, error) {
	if m.getCompanyByName != nil {
		return m.getCompanyByName(ctx, owner, name)
	}
	return nil, nil
}

func (m *mockStore) CreateCompany(ctx context.Context, c *model.Company) error {
	if m.createCompany != nil {
		return m.createCompany(ctx, c)
	}
	return nil
}

func (m *mockStore) ListCompanyNames(ctx context.Context, owner, base string) ([]string, error) {
	if m.listCompanyNames != nil {
		return m.listCompanyNames(ctx, owner, base)
	}
	return nil, nil
}

func (m *mockStore) ListNameOnlyCompanies(ctx context.Context, owner string) ([]model.Company, error) {
	if m.listNameOnlyCompanies != nil {
		return m.listNameOnlyCompanies(ctx, owner)
	}
	return nil, nil
}

func (m *mockStore) GetContactByEmail(ctx context.Context, email string) (*model.Contact, error) {
	if m.getContactByEmail != nil {
		return m.getContactByEmail(ctx, email)
	}
	return nil, nil
}

func (m *mockStore) GetContactByEmailAndCompany(ctx context.Context, email string, companyID int64) (*model.Contact, error) {
	if m.getContactByEmailAndCompany != nil {
		return m.getContactByEmailAndCompany(ctx, email, companyID)
	}
	return nil, nil
}

func (m *mockStore) CreateContact(ctx context.Context, c *model.Contact) error {
	if m.createContact != nil {
		return m.createContact(ctx, c)
	}
	return nil
}

func (m *mockStore) AttachContactCompany(ctx context.Context, contactID, companyID int64) (bool, error) {
	if m.attachContactCompany != nil {
		return m.attachContactCompany(ctx, contactID, companyID)
	}
	return false, nil
}

func (m *mockStore) ListUnlinkedContacts(ctx context.Context, owner string) ([]model.Contact, error) {
	if m.listUnlinkedContacts != nil {
		return m.listUnlinkedContacts(ctx, owner)
	}
	return nil, nil
}

func (m *mockStore) InsertDeal(ctx context.Context, d *model.Deal) error {
	if m.insertDeal != nil {
		return m.insertDeal(ctx, d)
	}
	return nil
}

func (m *mockStore) GetDealByCRMID(ctx context.Context, crmID string) (*model.Deal, error) {
	if m.getDealByCRMID != nil {
		return m.getDealByCRMID(ctx, crmID)
	}
	return nil, nil
}

func (m *mockStore) ListUnresolvedDeals(ctx context.Context, f DealFilter) ([]model.Deal, error) {
	if m.listUnresolvedDeals != nil {
		return m.listUnresolvedDeals(ctx, f)
	}
	return nil, nil
}

func (m *mockStore) SetDealState(ctx context.Context, dealID int64, state model.ResolutionState) error {
	if m.setDealState != nil {
		return m.setDealState(ctx, dealID, state)
	}
	return nil
}

func (m *mockStore) SetDealResolved(ctx context.Context, dealID, companyID, contactID int64) error {
	if m.setDealResolved != nil {
		return m.setDealResolved(ctx, dealID, companyID, contactID)
	}
	return nil
}

func (m *mockStore) StartRun(ctx context.Context) (int64, error) {
	if m.startRun != nil {
		return m.startRun(ctx)
	}
	return 1, nil
}

func (m *mockStore) CompleteRun(ctx context.Context, runID int64, success, errors, skipped int) error {
	if m.completeRun != nil {
		return m.completeRun(ctx, runID, success, errors, skipped)
	}
	return nil
}

func (m *mockStore) AcquireRunLock(ctx context.Context) (func(), error) {
	if m.acquireRunLock != nil {
		return m.acquireRunLock(ctx)
	}
	return func() {}, nil
}

func (m *mockStore) Close() error { return nil }
