// Package orphan repairs contacts left without a company because their
// email domain was personal and no company existed to attach automatically.
package orphan

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/model"
	"github.com/sells-group/crm-resolver/internal/resolve"
	"github.com/sells-group/crm-resolver/internal/review"
)

// Report summarizes one linking pass. It is an acceptance signal for the
// run, not a functional output.
type Report struct {
	Linked    int     `json:"linked"`
	Unlinked  int     `json:"unlinked"`
	Uncertain int     `json:"uncertain"`
	Percent   float64 `json:"percent"`
}

// maxCandidates bounds the ranked candidate list on an uncertain match.
const maxCandidates = 3

// Linker matches unlinked contacts to name-only companies by full name.
type Linker struct {
	store     resolve.Store
	reviews   review.Store
	overrides Overrides
}

// NewLinker builds a linker. overrides may be empty.
func NewLinker(store resolve.Store, reviews review.Store, overrides Overrides) *Linker {
	if overrides == nil {
		overrides = Overrides{}
	}
	return &Linker{store: store, reviews: reviews, overrides: overrides}
}

// Run links every unlinked contact it can and returns the coverage report.
// The owner filter is optional; empty means all owners. Matching is exact
// and case-insensitive on the contact's full name against name-only company
// names in the same owner scope, earliest-created company winning ties. The
// override table takes precedence. Contacts with near-miss candidates get a
// fuzzy_match_uncertainty review entry listing them.
func (l *Linker) Run(ctx context.Context, owner string) (*Report, error) {
	contacts, err := l.store.ListUnlinkedContacts(ctx, owner)
	if err != nil {
		return nil, eris.Wrap(err, "orphan: list unlinked contacts")
	}

	// Name-only companies fetched once per owner scope.
	companiesByOwner := map[string][]model.Company{}

	report := &Report{}
	for i := range contacts {
		contact := &contacts[i]

		companies, ok := companiesByOwner[contact.Owner]
		if !ok {
			companies, err = l.store.ListNameOnlyCompanies(ctx, contact.Owner)
			if err != nil {
				return nil, eris.Wrapf(err, "orphan: list name-only companies for %s", contact.Owner)
			}
			companiesByOwner[contact.Owner] = companies
		}

		linked, err := l.linkContact(ctx, contact, companies)
		if err != nil {
			return nil, err
		}
		if linked {
			report.Linked++
		} else {
			report.Unlinked++
		}
	}

	report.Uncertain = l.countUncertain(ctx)
	if total := report.Linked + report.Unlinked; total > 0 {
		report.Percent = float64(report.Linked) / float64(total) * 100
	}

	zap.L().Info("orphan: linking pass complete",
		zap.Int("linked", report.Linked),
		zap.Int("unlinked", report.Unlinked),
		zap.Float64("percent", report.Percent),
	)
	return report, nil
}

func (l *Linker) linkContact(ctx context.Context, contact *model.Contact, companies []model.Company) (bool, error) {
	// Override table first.
	if targetName, ok := l.overrides.Target(contact.Email); ok {
		target, err := l.store.GetCompanyByName(ctx, contact.Owner, targetName)
		if err != nil {
			return false, eris.Wrapf(err, "orphan: override lookup %s", targetName)
		}
		if target == nil {
			zap.L().Warn("orphan: override names a missing company",
				zap.String("email", contact.Email),
				zap.String("company", targetName),
			)
			return false, nil
		}
		return l.attach(ctx, contact, target, "override")
	}

	fullName := contact.FullName()
	if fullName == "" {
		return false, nil
	}

	// Exact match; list is ordered by creation time, first hit wins.
	for i := range companies {
		if strings.EqualFold(companies[i].Name, fullName) {
			return l.attach(ctx, contact, &companies[i], "exact")
		}
	}

	if candidates := nearMatches(fullName, companies); len(candidates) > 0 {
		entry := review.NewOrphanEntry(contact, "candidates: "+strings.Join(candidates, ", "))
		if err := l.reviews.Append(ctx, entry); err != nil {
			return false, eris.Wrapf(err, "orphan: append review entry for %s", contact.Email)
		}
		zap.L().Info("orphan: uncertain match routed to review",
			zap.String("email", contact.Email),
			zap.Strings("candidates", candidates),
		)
	}
	return false, nil
}

func (l *Linker) attach(ctx context.Context, contact *model.Contact, company *model.Company, how string) (bool, error) {
	attached, err := l.store.AttachContactCompany(ctx, contact.ID, company.ID)
	if err != nil {
		return false, eris.Wrapf(err, "orphan: attach contact %d", contact.ID)
	}
	if attached {
		zap.L().Debug("orphan: linked contact",
			zap.Int64("contact_id", contact.ID),
			zap.Int64("company_id", company.ID),
			zap.String("match", how),
		)
	}
	return attached, nil
}

// nearMatches ranks companies whose name contains the full name or vice
// versa, preserving creation order, capped at maxCandidates.
func nearMatches(fullName string, companies []model.Company) []string {
	lower := strings.ToLower(fullName)
	var out []string
	for i := range companies {
		name := strings.ToLower(companies[i].Name)
		if name == lower {
			continue
		}
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			out = append(out, companies[i].Name)
			if len(out) == maxCandidates {
				break
			}
		}
	}
	return out
}

// countUncertain reports how many fuzzy-match entries are pending, for the
// report line.
func (l *Linker) countUncertain(ctx context.Context) int {
	entries, err := l.reviews.ListPending(ctx, review.Filter{Reason: model.ReasonFuzzyMatchUncertain})
	if err != nil {
		zap.L().Warn("orphan: failed to count pending uncertain entries", zap.Error(err))
		return 0
	}
	return len(entries)
}

// String renders the report for CLI output.
func (r *Report) String() string {
	return fmt.Sprintf("linked %d, unlinked %d (%.1f%% coverage), %d uncertain",
		r.Linked, r.Unlinked, r.Percent, r.Uncertain)
}
