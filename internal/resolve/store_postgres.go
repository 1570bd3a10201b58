package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/db"
	"github.com/sells-group/crm-resolver/internal/model"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgresStore wraps an existing pool. The pool is not closed by Close.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// NewPostgres connects a pool and returns a store owning it.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, maxConns, minConns)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool exposes the underlying pool for subsystems needing direct access
// (migrations, review queue).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Close releases the pool if this store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// mapUniqueViolation converts a pg unique violation into the matching
// duplicate sentinel based on the constraint name.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "domain"):
		return ErrDuplicateDomain
	case strings.Contains(pgErr.ConstraintName, "email"):
		return ErrDuplicateEmail
	case strings.Contains(pgErr.ConstraintName, "name"):
		return ErrDuplicateName
	}
	return err
}

const companyColumns = `id, name, domain, owner, created_at, updated_at`

func scanCompany(row pgx.Row) (*model.Company, error) {
	c := &model.Company{}
	err := row.Scan(&c.ID, &c.Name, &c.Domain, &c.Owner, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// GetCompanyByDomain fetches a company by its unique domain, case-insensitive.
func (s *PostgresStore) GetCompanyByDomain(ctx context.Context, domain string) (*model.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM resolver.companies WHERE LOWER(domain) = LOWER($1)`,
		domain))
	if err != nil {
		return nil, eris.Wrapf(err, "store: company by domain %s", domain)
	}
	return c, nil
}

// GetCompanyByName fetches a company by exact name, case-insensitive, scoped
// to the owner.
func (s *PostgresStore) GetCompanyByName(ctx context.Context, owner, name string) (*model.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM resolver.companies WHERE owner = $1 AND LOWER(name) = LOWER($2)`,
		owner, name))
	if err != nil {
		return nil, eris.Wrapf(err, "store: company by name %s", name)
	}
	return c, nil
}

// CreateCompany inserts a new company and sets its ID.
func (s *PostgresStore) CreateCompany(ctx context.Context, c *model.Company) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO resolver.companies (name, domain, owner)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		c.Name, c.Domain, c.Owner,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return mapped
		}
		return eris.Wrapf(err, "store: create company %s", c.Name)
	}
	return nil
}

// ListCompanyNames returns names equal to base or suffixed variants of it,
// ordered by creation time then id, for deterministic suffix numbering.
func (s *PostgresStore) ListCompanyNames(ctx context.Context, owner, base string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name FROM resolver.companies
		WHERE owner = $1 AND (LOWER(name) = LOWER($2) OR LOWER(name) LIKE LOWER($2) || ' (%')
		ORDER BY created_at, id`,
		owner, base)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list company names for %s", base)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "store: scan company name")
		}
		names = append(names, name)
	}
	return names, eris.Wrap(rows.Err(), "store: iterate company names")
}

// ListNameOnlyCompanies returns companies without a domain for the owner,
// ordered by creation time for deterministic tie-breaking.
func (s *PostgresStore) ListNameOnlyCompanies(ctx context.Context, owner string) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+companyColumns+` FROM resolver.companies
		WHERE owner = $1 AND domain IS NULL
		ORDER BY created_at, id`,
		owner)
	if err != nil {
		return nil, eris.Wrap(err, "store: list name-only companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Domain, &c.Owner, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan company")
		}
		companies = append(companies, c)
	}
	return companies, eris.Wrap(rows.Err(), "store: iterate name-only companies")
}

const contactColumns = `id, email, first_name, last_name, company_id, is_primary, owner, created_at, updated_at`

func scanContact(row pgx.Row) (*model.Contact, error) {
	c := &model.Contact{}
	err := row.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.CompanyID,
		&c.IsPrimary, &c.Owner, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// GetContactByEmail fetches a contact by email, case-insensitive.
func (s *PostgresStore) GetContactByEmail(ctx context.Context, email string) (*model.Contact, error) {
	c, err := scanContact(s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM resolver.contacts WHERE LOWER(email) = LOWER($1)`,
		email))
	if err != nil {
		return nil, eris.Wrapf(err, "store: contact by email %s", email)
	}
	return c, nil
}

// GetContactByEmailAndCompany fetches a contact by email scoped to a company.
func (s *PostgresStore) GetContactByEmailAndCompany(ctx context.Context, email string, companyID int64) (*model.Contact, error) {
	c, err := scanContact(s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM resolver.contacts
		 WHERE LOWER(email) = LOWER($1) AND company_id = $2`,
		email, companyID))
	if err != nil {
		return nil, eris.Wrapf(err, "store: contact by email %s company %d", email, companyID)
	}
	return c, nil
}

// CreateContact inserts a new contact. is_primary is computed inside the
// insert so two concurrent first-contacts cannot both claim primary.
func (s *PostgresStore) CreateContact(ctx context.Context, c *model.Contact) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO resolver.contacts (email, first_name, last_name, company_id, is_primary, owner)
		VALUES ($1, $2, $3, $4,
			$4 IS NOT NULL AND NOT EXISTS (
				SELECT 1 FROM resolver.contacts WHERE company_id = $4
			),
			$5)
		RETURNING id, is_primary, created_at, updated_at`,
		c.Email, c.FirstName, c.LastName, c.CompanyID, c.Owner,
	).Scan(&c.ID, &c.IsPrimary, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return mapped
		}
		return eris.Wrapf(err, "store: create contact %s", c.Email)
	}
	return nil
}

// AttachContactCompany fills company_id forward only while it is null.
func (s *PostgresStore) AttachContactCompany(ctx context.Context, contactID, companyID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE resolver.contacts
		SET company_id = $2, updated_at = now()
		WHERE id = $1 AND company_id IS NULL`,
		contactID, companyID)
	if err != nil {
		return false, eris.Wrapf(err, "store: attach contact %d", contactID)
	}
	return tag.RowsAffected() > 0, nil
}

// ListUnlinkedContacts returns contacts with no company, scoped to owner
// when non-empty.
func (s *PostgresStore) ListUnlinkedContacts(ctx context.Context, owner string) ([]model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM resolver.contacts WHERE company_id IS NULL`
	args := []any{}
	if owner != "" {
		query += ` AND owner = $1`
		args = append(args, owner)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list unlinked contacts")
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.CompanyID,
			&c.IsPrimary, &c.Owner, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan contact")
		}
		contacts = append(contacts, c)
	}
	return contacts, eris.Wrap(rows.Err(), "store: iterate unlinked contacts")
}

// InsertDeal inserts a deal row; existing crm_id rows are left untouched.
func (s *PostgresStore) InsertDeal(ctx context.Context, d *model.Deal) error {
	if d.State == "" {
		d.State = model.StateUnresolved
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO resolver.deals (crm_id, company, contact_name, contact_email, owner, stage, resolution_state)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6, $7)
		ON CONFLICT (crm_id) DO UPDATE SET updated_at = now()
		RETURNING id, created_at, updated_at`,
		d.CRMID, d.Company, d.ContactName, d.ContactEmail, d.Owner, d.Stage, string(d.State),
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return eris.Wrap(err, "store: insert deal")
	}
	return nil
}

// GetDealByCRMID fetches a deal by its CRM identifier.
func (s *PostgresStore) GetDealByCRMID(ctx context.Context, crmID string) (*model.Deal, error) {
	if crmID == "" {
		return nil, nil
	}
	d := &model.Deal{}
	var cid *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, crm_id, company, contact_name, contact_email, owner, stage,
		       company_id, primary_contact_id, resolution_state, created_at, updated_at
		FROM resolver.deals WHERE crm_id = $1`,
		crmID,
	).Scan(&d.ID, &cid, &d.Company, &d.ContactName, &d.ContactEmail,
		&d.Owner, &d.Stage, &d.CompanyID, &d.PrimaryContactID, &d.State,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "store: deal by crm id %s", crmID)
	}
	if cid != nil {
		d.CRMID = *cid
	}
	return d, nil
}

// ListUnresolvedDeals returns deals lacking resolved references in
// reverse-chronological order. review_pending and stranded resolving deals
// are included so a later run can retry them.
func (s *PostgresStore) ListUnresolvedDeals(ctx context.Context, f DealFilter) ([]model.Deal, error) {
	query := `
		SELECT id, crm_id, company, contact_name, contact_email, owner, stage,
		       company_id, primary_contact_id, resolution_state, created_at, updated_at
		FROM resolver.deals
		WHERE (company_id IS NULL OR primary_contact_id IS NULL)
		  AND resolution_state != 'resolved'`
	args := []any{}
	argIdx := 1

	if f.Owner != "" {
		query += fmt.Sprintf(` AND owner = $%d`, argIdx)
		args = append(args, f.Owner)
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id DESC`

	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list unresolved deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		var crmID *string
		if err := rows.Scan(&d.ID, &crmID, &d.Company, &d.ContactName, &d.ContactEmail,
			&d.Owner, &d.Stage, &d.CompanyID, &d.PrimaryContactID, &d.State,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan deal")
		}
		if crmID != nil {
			d.CRMID = *crmID
		}
		deals = append(deals, d)
	}
	return deals, eris.Wrap(rows.Err(), "store: iterate unresolved deals")
}

// SetDealState transitions a deal's resolution state.
func (s *PostgresStore) SetDealState(ctx context.Context, dealID int64, state model.ResolutionState) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE resolver.deals SET resolution_state = $2, updated_at = now() WHERE id = $1`,
		dealID, string(state))
	if err != nil {
		return eris.Wrapf(err, "store: set deal %d state", dealID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: deal not found: %d", dealID)
	}
	return nil
}

// SetDealResolved writes the canonical references back and marks the deal
// resolved.
func (s *PostgresStore) SetDealResolved(ctx context.Context, dealID, companyID, contactID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE resolver.deals
		SET company_id = $2, primary_contact_id = $3, resolution_state = 'resolved', updated_at = now()
		WHERE id = $1`,
		dealID, companyID, contactID)
	if err != nil {
		return eris.Wrapf(err, "store: resolve deal %d", dealID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: deal not found: %d", dealID)
	}
	return nil
}

// StartRun records the beginning of a bulk run and returns its ID.
func (s *PostgresStore) StartRun(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO resolver.run_log (status, started_at) VALUES ('running', now()) RETURNING id`,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "store: start run")
	}
	return id, nil
}

// CompleteRun marks a bulk run as finished with its counters.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID int64, success, errors, skipped int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE resolver.run_log
		SET status = 'complete', completed_at = now(),
		    success_count = $2, error_count = $3, skipped_count = $4
		WHERE id = $1`,
		runID, success, errors, skipped)
	return eris.Wrapf(err, "store: complete run %d", runID)
}

// runLockKey serializes bulk resolution runs across processes.
const runLockKey = 7254902

// AcquireRunLock takes the bulk-run advisory lock, blocking until available.
func (s *PostgresStore) AcquireRunLock(ctx context.Context) (func(), error) {
	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", runLockKey); err != nil {
		return nil, eris.Wrap(err, "store: acquire run lock")
	}
	release := func() {
		if _, err := s.pool.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", runLockKey); err != nil {
			zap.L().Warn("store: failed to release run lock", zap.Error(err))
		}
	}
	return release, nil
}
