package resolve

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/model"
)

// ResolveContact finds or creates the canonical contact for an email,
// attaching a company when one is known. An existing contact already bound
// to a different company keeps its association: resolution never reassigns
// a contact's company automatically.
func (r *Resolver) ResolveContact(ctx context.Context, mode Mode, email, displayName string, companyID *int64, owner string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := ValidateEmail(email); err != nil {
		return 0, err
	}

	v, err, _ := r.contacts.Do("email:"+email, func() (any, error) {
		return r.resolveContact(ctx, mode, email, displayName, companyID, owner)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (r *Resolver) resolveContact(ctx context.Context, mode Mode, email, displayName string, companyID *int64, owner string) (int64, error) {
	existing, err := r.lookupContact(ctx, email, companyID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return r.reuseContact(ctx, existing, companyID)
	}

	first, last := SplitDisplayName(displayName)
	c := &model.Contact{
		Email:     email,
		FirstName: first,
		LastName:  last,
		CompanyID: companyID,
		Owner:     owner,
	}

	err = r.store.CreateContact(ctx, c)
	if errors.Is(err, ErrDuplicateEmail) {
		// Lost a create race for the same email: find, don't fail.
		raced, qerr := r.store.GetContactByEmail(ctx, email)
		if qerr != nil {
			return 0, eris.Wrapf(qerr, "resolve: re-query contact %s", email)
		}
		if raced == nil {
			return 0, eris.Wrapf(ErrEntityCreation, "resolve: contact %s vanished after conflict", email)
		}
		return r.reuseContact(ctx, raced, companyID)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "resolve: create contact %s", email)
	}

	zap.L().Info("resolve: created contact",
		zap.String("email", email),
		zap.Int64("contact_id", c.ID),
		zap.Bool("is_primary", c.IsPrimary),
		zap.String("mode", string(mode)),
	)
	return c.ID, nil
}

// lookupContact prefers a match scoped to the supplied company, then falls
// back to the global email match.
func (r *Resolver) lookupContact(ctx context.Context, email string, companyID *int64) (*model.Contact, error) {
	if companyID != nil {
		c, err := r.store.GetContactByEmailAndCompany(ctx, email, *companyID)
		if err != nil {
			return nil, eris.Wrapf(err, "resolve: contact by email %s company %d", email, *companyID)
		}
		if c != nil {
			return c, nil
		}
	}
	c, err := r.store.GetContactByEmail(ctx, email)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve: contact by email %s", email)
	}
	return c, nil
}

// reuseContact applies the fill-forward rule to an existing contact: a null
// company is attached, a non-null one is never overwritten.
func (r *Resolver) reuseContact(ctx context.Context, c *model.Contact, companyID *int64) (int64, error) {
	if companyID == nil || c.CompanyID != nil {
		if companyID != nil && c.CompanyID != nil && *c.CompanyID != *companyID {
			zap.L().Debug("resolve: keeping existing company association",
				zap.Int64("contact_id", c.ID),
				zap.Int64("existing_company_id", *c.CompanyID),
				zap.Int64("offered_company_id", *companyID),
			)
		}
		return c.ID, nil
	}

	attached, err := r.store.AttachContactCompany(ctx, c.ID, *companyID)
	if err != nil {
		return 0, eris.Wrapf(err, "resolve: attach contact %d to company %d", c.ID, *companyID)
	}
	if attached {
		zap.L().Debug("resolve: attached company to contact",
			zap.Int64("contact_id", c.ID),
			zap.Int64("company_id", *companyID),
		)
	}
	return c.ID, nil
}
