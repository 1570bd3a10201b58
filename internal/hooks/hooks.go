// Package hooks provides the synchronous write-path resolutions fired from
// CRM contact and activity writes, as opposed to the bulk migration path.
package hooks

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/model"
	"github.com/sells-group/crm-resolver/internal/resolve"
)

// Gate reports whether a bulk run is active; hooks skip their work while
// one is, since the batch covers it.
type Gate interface {
	BatchActive() bool
}

// StageAdvancer advances a deal's pipeline stage after a qualifying
// activity. Stage rules live with the CRM glue, outside this package.
type StageAdvancer interface {
	AdvanceStage(ctx context.Context, dealID int64) error
}

// Hooks runs single synchronous resolutions against incoming writes.
type Hooks struct {
	resolver *resolve.Resolver
	gate     Gate
	advancer StageAdvancer
}

// New wires the hooks. advancer may be nil if no stage rules apply.
func New(resolver *resolve.Resolver, gate Gate, advancer StageAdvancer) *Hooks {
	return &Hooks{resolver: resolver, gate: gate, advancer: advancer}
}

// OnContactWrite fires before a contact insert or an email-changing update.
// If the contact has no company and carries a corporate-domain email, the
// company is resolved and set on the contact before the write commits.
func (h *Hooks) OnContactWrite(ctx context.Context, contact *model.Contact) error {
	if h.gate.BatchActive() {
		zap.L().Debug("hooks: skipping contact write, bulk run active",
			zap.String("email", contact.Email))
		return nil
	}
	if contact.CompanyID != nil || contact.Email == "" {
		return nil
	}

	domain := resolve.ClassifyDomain(contact.Email)
	if domain == "" {
		// Personal or unusable domain; the orphan linker picks these up.
		return nil
	}

	id, err := h.resolver.ResolveCompany(ctx, resolve.ModeIncremental, domain, "", contact.Owner)
	if err != nil {
		return eris.Wrapf(err, "hooks: resolve company for contact %s", contact.Email)
	}
	contact.CompanyID = &id

	zap.L().Debug("hooks: contact write resolved company",
		zap.String("email", contact.Email),
		zap.Int64("company_id", id),
	)
	return nil
}

// OnActivityWrite resolves the activity's contact identifier for qualifying
// activity kinds and may advance the associated deal's stage.
func (h *Hooks) OnActivityWrite(ctx context.Context, activity *model.Activity) error {
	if h.gate.BatchActive() {
		zap.L().Debug("hooks: skipping activity write, bulk run active",
			zap.Int64("activity_id", activity.ID))
		return nil
	}
	if activity.Kind != model.ActivityMeeting && activity.Kind != model.ActivityCall {
		return nil
	}
	if activity.ContactIdentifierType != model.IdentifierEmail {
		// Name-only identifiers carry no resolution key.
		zap.L().Debug("hooks: activity identifier not resolvable",
			zap.Int64("activity_id", activity.ID),
			zap.String("identifier_type", activity.ContactIdentifierType),
		)
		return nil
	}

	email := activity.ContactIdentifier
	if err := resolve.ValidateEmail(email); err != nil {
		return eris.Wrapf(err, "hooks: activity %d identifier", activity.ID)
	}

	var companyID *int64
	domain := resolve.ClassifyDomain(email)
	if domain != "" || activity.ClientName != "" {
		id, err := h.resolver.ResolveCompany(ctx, resolve.ModeIncremental, domain, activity.ClientName, activity.Owner)
		if err != nil {
			return eris.Wrapf(err, "hooks: resolve company for activity %d", activity.ID)
		}
		companyID = &id
	}

	contactID, err := h.resolver.ResolveContact(ctx, resolve.ModeIncremental, email, "", companyID, activity.Owner)
	if err != nil {
		return eris.Wrapf(err, "hooks: resolve contact for activity %d", activity.ID)
	}

	zap.L().Debug("hooks: activity resolved",
		zap.Int64("activity_id", activity.ID),
		zap.Int64("contact_id", contactID),
	)

	if activity.DealID != nil && h.advancer != nil {
		if err := h.advancer.AdvanceStage(ctx, *activity.DealID); err != nil {
			return eris.Wrapf(err, "hooks: advance stage for deal %d", *activity.DealID)
		}
	}
	return nil
}
