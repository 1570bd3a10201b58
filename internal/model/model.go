// Package model defines the canonical entity types shared across the
// resolution engine.
package model

import (
	"strings"
	"time"
)

// Company is the canonical record for one real-world organization,
// preferentially keyed by email domain. Domain is nil for companies known
// only by name (personal-mailbox contacts, free-text deal fields).
type Company struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Domain    *string   `json:"domain,omitempty" db:"domain"`
	Owner     string    `json:"owner" db:"owner"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Contact is a person, globally unique by email. CompanyID is nil until a
// company can be attached; once set it is never changed automatically.
type Contact struct {
	ID        int64     `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"first_name,omitempty" db:"first_name"`
	LastName  string    `json:"last_name,omitempty" db:"last_name"`
	CompanyID *int64    `json:"company_id,omitempty" db:"company_id"`
	IsPrimary bool      `json:"is_primary" db:"is_primary"`
	Owner     string    `json:"owner" db:"owner"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name, tolerating either being empty.
func (c *Contact) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// ResolutionState tracks a deal's progress through entity resolution.
type ResolutionState string

const (
	StateUnresolved    ResolutionState = "unresolved"
	StateResolving     ResolutionState = "resolving"
	StateResolved      ResolutionState = "resolved"
	StateReviewPending ResolutionState = "review_pending"
)

// CanTransition reports whether the state machine permits moving to next.
// resolved is terminal; review_pending may re-enter resolving on a later run.
func (s ResolutionState) CanTransition(next ResolutionState) bool {
	switch s {
	case StateUnresolved:
		return next == StateResolving
	case StateResolving:
		return next == StateResolved || next == StateReviewPending
	case StateReviewPending:
		return next == StateResolving
	case StateResolved:
		return false
	}
	return false
}

// Deal carries the free-text company/contact fields as entered in the CRM
// and, once resolved, the canonical back-references.
type Deal struct {
	ID               int64           `json:"id" db:"id"`
	CRMID            string          `json:"crm_id,omitempty" db:"crm_id"`
	Company          string          `json:"company,omitempty" db:"company"`
	ContactName      string          `json:"contact_name,omitempty" db:"contact_name"`
	ContactEmail     string          `json:"contact_email,omitempty" db:"contact_email"`
	Owner            string          `json:"owner" db:"owner"`
	Stage            string          `json:"stage,omitempty" db:"stage"`
	CompanyID        *int64          `json:"company_id,omitempty" db:"company_id"`
	PrimaryContactID *int64          `json:"primary_contact_id,omitempty" db:"primary_contact_id"`
	State            ResolutionState `json:"resolution_state" db:"resolution_state"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Resolved reports whether both canonical references are set.
func (d *Deal) Resolved() bool {
	return d.CompanyID != nil && d.PrimaryContactID != nil
}

// ReviewReason classifies why a deal could not be resolved automatically.
type ReviewReason string

const (
	ReasonNoEmail              ReviewReason = "no_email"
	ReasonInvalidEmail         ReviewReason = "invalid_email"
	ReasonEntityCreationFailed ReviewReason = "entity_creation_failed"
	ReasonFuzzyMatchUncertain  ReviewReason = "fuzzy_match_uncertainty"
)

// ReviewEntry is a durable, reason-coded record of a failed resolution,
// awaiting manual follow-up.
type ReviewEntry struct {
	ID           string       `json:"id" db:"id"`
	DealID       int64        `json:"deal_id" db:"deal_id"`
	Reason       ReviewReason `json:"reason" db:"reason"`
	Company      string       `json:"company,omitempty" db:"company"`
	ContactName  string       `json:"contact_name,omitempty" db:"contact_name"`
	ContactEmail string       `json:"contact_email,omitempty" db:"contact_email"`
	Notes        string       `json:"notes,omitempty" db:"notes"`
	Status       string       `json:"status" db:"status"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// Review entry statuses.
const (
	ReviewPending  = "pending"
	ReviewResolved = "resolved"
)

// Activity is an inbound CRM activity event (meeting, call, email, note)
// delivered to the incremental hooks.
type Activity struct {
	ID                    int64  `json:"id"`
	Kind                  string `json:"kind"`
	ContactIdentifier     string `json:"contact_identifier"`
	ContactIdentifierType string `json:"contact_identifier_type"`
	ClientName            string `json:"client_name,omitempty"`
	DealID                *int64 `json:"deal_id,omitempty"`
	Owner                 string `json:"owner"`
}

// Activity kinds that trigger contact resolution.
const (
	ActivityMeeting = "meeting"
	ActivityCall    = "call"
)

// Identifier types accepted on activities.
const (
	IdentifierEmail = "email"
	IdentifierName  = "name"
)

// RunResult aggregates the outcome of one bulk resolution run.
type RunResult struct {
	RunID         int64         `json:"run_id"`
	SuccessCount  int           `json:"success_count"`
	ErrorCount    int           `json:"error_count"`
	SkippedCount  int           `json:"skipped_count"`
	ReviewEntries []ReviewEntry `json:"review_entries,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   time.Time     `json:"completed_at"`
}
