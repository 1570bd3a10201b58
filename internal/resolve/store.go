package resolve

import (
	"context"

	"github.com/sells-group/crm-resolver/internal/model"
)

// DealFilter restricts which deals a bulk run processes.
type DealFilter struct {
	Owner string
	Limit int
}

// Store defines persistence operations for the resolution engine. Create
// operations report unique-constraint conflicts via the ErrDuplicate*
// sentinels so resolvers can apply the create-or-find contract.
type Store interface {
	// Companies
	GetCompanyByDomain(ctx context.Context, domain string) (*model.Company, error)
	GetCompanyByName(ctx context.Context, owner, name string) (*model.Company, error)
	CreateCompany(ctx context.Context, c *model.Company) error
	// ListCompanyNames returns existing names equal to base or carrying a
	// numeric suffix, ordered by creation time then id.
	ListCompanyNames(ctx context.Context, owner, base string) ([]string, error)
	ListNameOnlyCompanies(ctx context.Context, owner string) ([]model.Company, error)

	// Contacts
	GetContactByEmail(ctx context.Context, email string) (*model.Contact, error)
	GetContactByEmailAndCompany(ctx context.Context, email string, companyID int64) (*model.Contact, error)
	// CreateContact inserts the contact, computing is_primary atomically:
	// true only when no other contact exists yet for the company.
	CreateContact(ctx context.Context, c *model.Contact) error
	// AttachContactCompany fills company_id forward only while it is null.
	// Returns false when the contact already had a company.
	AttachContactCompany(ctx context.Context, contactID, companyID int64) (bool, error)
	ListUnlinkedContacts(ctx context.Context, owner string) ([]model.Contact, error)

	// Deals
	InsertDeal(ctx context.Context, d *model.Deal) error
	GetDealByCRMID(ctx context.Context, crmID string) (*model.Deal, error)
	ListUnresolvedDeals(ctx context.Context, f DealFilter) ([]model.Deal, error)
	SetDealState(ctx context.Context, dealID int64, state model.ResolutionState) error
	SetDealResolved(ctx context.Context, dealID, companyID, contactID int64) error

	// Run bookkeeping
	StartRun(ctx context.Context) (int64, error)
	CompleteRun(ctx context.Context, runID int64, success, errors, skipped int) error
	// AcquireRunLock serializes bulk runs across processes. The returned
	// release func is always safe to call.
	AcquireRunLock(ctx context.Context) (func(), error)

	Close() error
}
