package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/model"
)

// ResolveCompany finds or creates the canonical company for a domain,
// falling back to an exact name match scoped to the owner when the domain
// is absent. The contract is create-or-find, never create-or-fail: a
// unique-constraint conflict triggers one re-query before any error.
func (r *Resolver) ResolveCompany(ctx context.Context, mode Mode, domain, fallbackName, owner string) (int64, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	name := strings.TrimSpace(fallbackName)

	if domain == "" && name == "" {
		return 0, eris.New("resolve: company domain or name required")
	}
	if domain != "" && IsPersonalDomain(domain) {
		return 0, eris.Errorf("resolve: refusing to key company by personal domain %s", domain)
	}

	key := "name:" + owner + ":" + strings.ToLower(name)
	if domain != "" {
		key = "domain:" + domain
	}

	v, err, _ := r.companies.Do(key, func() (any, error) {
		if domain != "" {
			return r.resolveCompanyByDomain(ctx, mode, domain, name, owner)
		}
		return r.resolveCompanyByName(ctx, mode, name, owner)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (r *Resolver) resolveCompanyByDomain(ctx context.Context, mode Mode, domain, name, owner string) (int64, error) {
	existing, err := r.store.GetCompanyByDomain(ctx, domain)
	if err != nil {
		return 0, eris.Wrapf(err, "resolve: company by domain %s", domain)
	}
	if existing != nil {
		zap.L().Debug("resolve: matched company by domain",
			zap.String("domain", domain),
			zap.Int64("company_id", existing.ID),
			zap.String("mode", string(mode)),
		)
		return existing.ID, nil
	}

	if name == "" {
		name = DeriveCompanyName(domain)
	}

	c := &model.Company{Name: name, Domain: &domain, Owner: owner}
	if err := r.createCompany(ctx, c); err != nil {
		return 0, err
	}

	zap.L().Info("resolve: created company",
		zap.String("domain", domain),
		zap.String("name", c.Name),
		zap.Int64("company_id", c.ID),
		zap.String("mode", string(mode)),
	)
	return c.ID, nil
}

func (r *Resolver) resolveCompanyByName(ctx context.Context, mode Mode, name, owner string) (int64, error) {
	existing, err := r.store.GetCompanyByName(ctx, owner, name)
	if err != nil {
		return 0, eris.Wrapf(err, "resolve: company by name %s", name)
	}
	if existing != nil {
		zap.L().Debug("resolve: matched company by name",
			zap.String("name", name),
			zap.Int64("company_id", existing.ID),
			zap.String("mode", string(mode)),
		)
		return existing.ID, nil
	}

	c := &model.Company{Name: name, Owner: owner}
	err = r.store.CreateCompany(ctx, c)
	if errors.Is(err, ErrDuplicateName) {
		// Lost a create race for the same scoped name: find, don't fail.
		existing, qerr := r.store.GetCompanyByName(ctx, owner, name)
		if qerr != nil {
			return 0, eris.Wrapf(qerr, "resolve: re-query company %s", name)
		}
		if existing == nil {
			return 0, eris.Wrapf(ErrEntityCreation, "resolve: company %s vanished after conflict", name)
		}
		return existing.ID, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "resolve: create company %s", name)
	}

	zap.L().Info("resolve: created name-only company",
		zap.String("name", name),
		zap.Int64("company_id", c.ID),
		zap.String("mode", string(mode)),
	)
	return c.ID, nil
}

// createCompany inserts a domain-keyed company, resolving conflicts:
// a domain conflict means a concurrent writer won and we re-query once;
// a name conflict means a distinct organization already holds the name and
// we append the next deterministic numeric suffix before retrying.
func (r *Resolver) createCompany(ctx context.Context, c *model.Company) error {
	base := c.Name

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		err := r.store.CreateCompany(ctx, c)
		if err == nil {
			return nil
		}

		switch {
		case errors.Is(err, ErrDuplicateDomain):
			existing, qerr := r.store.GetCompanyByDomain(ctx, *c.Domain)
			if qerr != nil {
				return eris.Wrapf(qerr, "resolve: re-query company domain %s", *c.Domain)
			}
			if existing == nil {
				return eris.Wrapf(ErrEntityCreation, "resolve: company domain %s vanished after conflict", *c.Domain)
			}
			c.ID = existing.ID
			return nil

		case errors.Is(err, ErrDuplicateName):
			next, serr := r.nextSuffixedName(ctx, c.Owner, base)
			if serr != nil {
				return serr
			}
			zap.L().Debug("resolve: company name collision, suffixing",
				zap.String("base", base),
				zap.String("next", next),
			)
			c.Name = next

		default:
			return eris.Wrapf(err, "resolve: create company %s", c.Name)
		}
	}

	return eris.Wrapf(ErrEntityCreation, "resolve: exhausted name suffixes for %s", base)
}

// nextSuffixedName computes the next deterministic " (n)" suffix for base,
// ordered by existing rows' creation time then id: with "Acme" taken the
// first collision yields "Acme (2)".
func (r *Resolver) nextSuffixedName(ctx context.Context, owner, base string) (string, error) {
	names, err := r.store.ListCompanyNames(ctx, owner, base)
	if err != nil {
		return "", eris.Wrapf(err, "resolve: list company names for %s", base)
	}
	n := 1
	lowerBase := strings.ToLower(base)
	for _, name := range names {
		lower := strings.ToLower(name)
		if lower == lowerBase || suffixedVariant(lower, lowerBase) {
			n++
		}
	}
	return fmt.Sprintf("%s (%d)", base, n), nil
}

// suffixedVariant reports whether name is base plus a " (n)" suffix.
func suffixedVariant(name, base string) bool {
	rest, ok := strings.CutPrefix(name, base+" (")
	if !ok {
		return false
	}
	rest, ok = strings.CutSuffix(rest, ")")
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
