package resolve

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crm-resolver/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for local
// and development runs; bulk-run locking is in-process only.
type SQLiteStore struct {
	db      *sql.DB
	runLock sync.Mutex
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode,
// and applies the schema.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := sdb.Exec(sqliteMigration); err != nil {
		sdb.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	domain     TEXT,
	owner      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS companies_domain_key
	ON companies (lower(domain)) WHERE domain IS NOT NULL;

CREATE UNIQUE INDEX IF NOT EXISTS companies_owner_name_key
	ON companies (owner, lower(name));

CREATE TABLE IF NOT EXISTS contacts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	email      TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT '',
	company_id INTEGER REFERENCES companies(id),
	is_primary INTEGER NOT NULL DEFAULT 0,
	owner      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS contacts_email_key ON contacts (lower(email));
CREATE INDEX IF NOT EXISTS idx_contacts_company ON contacts (company_id);

CREATE TABLE IF NOT EXISTS deals (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	crm_id             TEXT UNIQUE,
	company            TEXT NOT NULL DEFAULT '',
	contact_name       TEXT NOT NULL DEFAULT '',
	contact_email      TEXT NOT NULL DEFAULT '',
	owner              TEXT NOT NULL DEFAULT '',
	stage              TEXT NOT NULL DEFAULT '',
	company_id         INTEGER REFERENCES companies(id),
	primary_contact_id INTEGER REFERENCES contacts(id),
	resolution_state   TEXT NOT NULL DEFAULT 'unresolved',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_deals_state_created ON deals (resolution_state, created_at DESC);

CREATE TABLE IF NOT EXISTS review_queue (
	id            TEXT PRIMARY KEY,
	deal_id       INTEGER REFERENCES deals(id),
	reason        TEXT NOT NULL,
	company       TEXT NOT NULL DEFAULT '',
	contact_name  TEXT NOT NULL DEFAULT '',
	contact_email TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_review_status ON review_queue (status, created_at);

CREATE TABLE IF NOT EXISTS run_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at  DATETIME,
	success_count INTEGER NOT NULL DEFAULT 0,
	error_count   INTEGER NOT NULL DEFAULT 0,
	skipped_count INTEGER NOT NULL DEFAULT 0
);
`

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for the review queue store.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// mapSQLiteUnique converts a sqlite unique-constraint error into the
// matching duplicate sentinel based on the index name in the message.
func mapSQLiteUnique(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") &&
		!strings.Contains(msg, "constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "companies_domain_key"), strings.Contains(msg, "companies.domain"):
		return ErrDuplicateDomain
	case strings.Contains(msg, "contacts_email_key"), strings.Contains(msg, "contacts.email"):
		return ErrDuplicateEmail
	case strings.Contains(msg, "companies_owner_name_key"), strings.Contains(msg, "companies.name"):
		return ErrDuplicateName
	case strings.Contains(msg, "deals.crm_id"):
		return err
	}
	return err
}

func (s *SQLiteStore) getCompany(ctx context.Context, query string, args ...any) (*model.Company, error) {
	c := &model.Company{}
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&c.ID, &c.Name, &c.Domain, &c.Owner, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) GetCompanyByDomain(ctx context.Context, domain string) (*model.Company, error) {
	c, err := s.getCompany(ctx,
		`SELECT id, name, domain, owner, created_at, updated_at
		 FROM companies WHERE lower(domain) = lower(?)`, domain)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: company by domain %s", domain)
	}
	return c, nil
}

func (s *SQLiteStore) GetCompanyByName(ctx context.Context, owner, name string) (*model.Company, error) {
	c, err := s.getCompany(ctx,
		`SELECT id, name, domain, owner, created_at, updated_at
		 FROM companies WHERE owner = ? AND lower(name) = lower(?)`, owner, name)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: company by name %s", name)
	}
	return c, nil
}

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *model.Company) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO companies (name, domain, owner) VALUES (?, ?, ?)
		 RETURNING id, created_at, updated_at`,
		c.Name, c.Domain, c.Owner,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if mapped := mapSQLiteUnique(err); mapped != err {
			return mapped
		}
		return eris.Wrapf(err, "sqlite: create company %s", c.Name)
	}
	return nil
}

func (s *SQLiteStore) ListCompanyNames(ctx context.Context, owner, base string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM companies
		 WHERE owner = ? AND (lower(name) = lower(?) OR lower(name) LIKE lower(?) || ' (%')
		 ORDER BY created_at, id`,
		owner, base, base)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list company names for %s", base)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company name")
		}
		names = append(names, name)
	}
	return names, eris.Wrap(rows.Err(), "sqlite: iterate company names")
}

func (s *SQLiteStore) ListNameOnlyCompanies(ctx context.Context, owner string) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, domain, owner, created_at, updated_at
		 FROM companies WHERE owner = ? AND domain IS NULL
		 ORDER BY created_at, id`, owner)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list name-only companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Domain, &c.Owner, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		companies = append(companies, c)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: iterate name-only companies")
}

func (s *SQLiteStore) getContact(ctx context.Context, query string, args ...any) (*model.Contact, error) {
	c := &model.Contact{}
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.CompanyID,
			&c.IsPrimary, &c.Owner, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

const sqliteContactColumns = `id, email, first_name, last_name, company_id, is_primary, owner, created_at, updated_at`

func (s *SQLiteStore) GetContactByEmail(ctx context.Context, email string) (*model.Contact, error) {
	c, err := s.getContact(ctx,
		`SELECT `+sqliteContactColumns+` FROM contacts WHERE lower(email) = lower(?)`, email)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: contact by email %s", email)
	}
	return c, nil
}

func (s *SQLiteStore) GetContactByEmailAndCompany(ctx context.Context, email string, companyID int64) (*model.Contact, error) {
	c, err := s.getContact(ctx,
		`SELECT `+sqliteContactColumns+` FROM contacts
		 WHERE lower(email) = lower(?) AND company_id = ?`, email, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: contact by email %s company %d", email, companyID)
	}
	return c, nil
}

func (s *SQLiteStore) CreateContact(ctx context.Context, c *model.Contact) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO contacts (email, first_name, last_name, company_id, is_primary, owner)
		 VALUES (?1, ?2, ?3, ?4,
			?4 IS NOT NULL AND NOT EXISTS (SELECT 1 FROM contacts WHERE company_id = ?4),
			?5)
		 RETURNING id, is_primary, created_at, updated_at`,
		c.Email, c.FirstName, c.LastName, c.CompanyID, c.Owner,
	).Scan(&c.ID, &c.IsPrimary, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if mapped := mapSQLiteUnique(err); mapped != err {
			return mapped
		}
		return eris.Wrapf(err, "sqlite: create contact %s", c.Email)
	}
	return nil
}

func (s *SQLiteStore) AttachContactCompany(ctx context.Context, contactID, companyID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET company_id = ?, updated_at = datetime('now')
		 WHERE id = ? AND company_id IS NULL`,
		companyID, contactID)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: attach contact %d", contactID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: attach rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListUnlinkedContacts(ctx context.Context, owner string) ([]model.Contact, error) {
	query := `SELECT ` + sqliteContactColumns + ` FROM contacts WHERE company_id IS NULL`
	args := []any{}
	if owner != "" {
		query += ` AND owner = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unlinked contacts")
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.CompanyID,
			&c.IsPrimary, &c.Owner, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		contacts = append(contacts, c)
	}
	return contacts, eris.Wrap(rows.Err(), "sqlite: iterate unlinked contacts")
}

func (s *SQLiteStore) InsertDeal(ctx context.Context, d *model.Deal) error {
	if d.State == "" {
		d.State = model.StateUnresolved
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO deals (crm_id, company, contact_name, contact_email, owner, stage, resolution_state)
		 VALUES (NULLIF(?, ''), ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (crm_id) DO UPDATE SET updated_at = datetime('now')
		 RETURNING id, created_at, updated_at`,
		d.CRMID, d.Company, d.ContactName, d.ContactEmail, d.Owner, d.Stage, string(d.State),
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert deal")
	}
	return nil
}

func (s *SQLiteStore) GetDealByCRMID(ctx context.Context, crmID string) (*model.Deal, error) {
	if crmID == "" {
		return nil, nil
	}
	d := &model.Deal{}
	var cid *string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, crm_id, company, contact_name, contact_email, owner, stage,
		       company_id, primary_contact_id, resolution_state, created_at, updated_at
		FROM deals WHERE crm_id = ?`,
		crmID,
	).Scan(&d.ID, &cid, &d.Company, &d.ContactName, &d.ContactEmail,
		&d.Owner, &d.Stage, &d.CompanyID, &d.PrimaryContactID, &d.State,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: deal by crm id %s", crmID)
	}
	if cid != nil {
		d.CRMID = *cid
	}
	return d, nil
}

func (s *SQLiteStore) ListUnresolvedDeals(ctx context.Context, f DealFilter) ([]model.Deal, error) {
	query := `
		SELECT id, crm_id, company, contact_name, contact_email, owner, stage,
		       company_id, primary_contact_id, resolution_state, created_at, updated_at
		FROM deals
		WHERE (company_id IS NULL OR primary_contact_id IS NULL)
		  AND resolution_state != 'resolved'`
	args := []any{}

	if f.Owner != "" {
		query += ` AND owner = ?`
		args = append(args, f.Owner)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unresolved deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		var crmID *string
		if err := rows.Scan(&d.ID, &crmID, &d.Company, &d.ContactName, &d.ContactEmail,
			&d.Owner, &d.Stage, &d.CompanyID, &d.PrimaryContactID, &d.State,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal")
		}
		if crmID != nil {
			d.CRMID = *crmID
		}
		deals = append(deals, d)
	}
	return deals, eris.Wrap(rows.Err(), "sqlite: iterate unresolved deals")
}

func (s *SQLiteStore) SetDealState(ctx context.Context, dealID int64, state model.ResolutionState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET resolution_state = ?, updated_at = datetime('now') WHERE id = ?`,
		string(state), dealID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set deal %d state", dealID)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return eris.Errorf("sqlite: deal not found: %d", dealID)
	}
	return nil
}

func (s *SQLiteStore) SetDealResolved(ctx context.Context, dealID, companyID, contactID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals
		 SET company_id = ?, primary_contact_id = ?, resolution_state = 'resolved', updated_at = datetime('now')
		 WHERE id = ?`,
		companyID, contactID, dealID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve deal %d", dealID)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return eris.Errorf("sqlite: deal not found: %d", dealID)
	}
	return nil
}

func (s *SQLiteStore) StartRun(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (status) VALUES ('running')`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: start run")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: run id")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID int64, success, errors, skipped int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_log
		 SET status = 'complete', completed_at = datetime('now'),
		     success_count = ?, error_count = ?, skipped_count = ?
		 WHERE id = ?`,
		success, errors, skipped, runID)
	return eris.Wrapf(err, "sqlite: complete run %d", runID)
}

// AcquireRunLock serializes bulk runs within this process. SQLite has no
// advisory locks; the dev store assumes a single process.
func (s *SQLiteStore) AcquireRunLock(_ context.Context) (func(), error) {
	s.runLock.Lock()
	return s.runLock.Unlock, nil
}
