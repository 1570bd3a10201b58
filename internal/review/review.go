// Package review implements the manual review queue: durable, reason-coded
// records of deals the resolution engine could not process automatically.
package review

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-resolver/internal/model"
)

// ErrNotFound is returned when an entry id does not exist.
var ErrNotFound = eris.New("review: entry not found")

// Filter restricts listings of pending entries.
type Filter struct {
	Reason model.ReviewReason
	Limit  int
}

// Store persists review queue entries.
type Store interface {
	// Append records a new pending entry and fills in its generated ID.
	Append(ctx context.Context, e *model.ReviewEntry) error
	// ListPending returns pending entries oldest first.
	ListPending(ctx context.Context, f Filter) ([]model.ReviewEntry, error)
	Get(ctx context.Context, id string) (*model.ReviewEntry, error)
	// Resolve marks an entry resolved, appending operator notes.
	Resolve(ctx context.Context, id, notes string) error
}

// NewOrphanEntry builds a pending entry for an unlinked contact the orphan
// linker could not place confidently. It carries no deal reference.
func NewOrphanEntry(contact *model.Contact, notes string) *model.ReviewEntry {
	return &model.ReviewEntry{
		ID:           uuid.NewString(),
		Reason:       model.ReasonFuzzyMatchUncertain,
		ContactName:  contact.FullName(),
		ContactEmail: contact.Email,
		Notes:        notes,
		Status:       model.ReviewPending,
	}
}

// NewEntry builds a pending entry for a deal that failed resolution.
func NewEntry(deal *model.Deal, reason model.ReviewReason, notes string) *model.ReviewEntry {
	return &model.ReviewEntry{
		ID:           uuid.NewString(),
		DealID:       deal.ID,
		Reason:       reason,
		Company:      deal.Company,
		ContactName:  deal.ContactName,
		ContactEmail: deal.ContactEmail,
		Notes:        notes,
		Status:       model.ReviewPending,
	}
}
