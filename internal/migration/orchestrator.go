// Package migration runs bulk entity resolution over the backlog of
// unresolved deals: historical backfills and periodic catch-up sweeps.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-resolver/internal/model"
	"github.com/sells-group/crm-resolver/internal/resolve"
	"github.com/sells-group/crm-resolver/internal/review"
)

// Orchestrator drives one bulk resolution run: list unresolved deals, push
// each through the resolver, route failures to the review queue.
type Orchestrator struct {
	store       resolve.Store
	resolver    *resolve.Resolver
	reviews     review.Store
	gate        *Gate
	concurrency int
}

// NewOrchestrator wires a bulk runner. concurrency bounds the worker pool;
// values below 1 are clamped to 1.
func NewOrchestrator(store resolve.Store, resolver *resolve.Resolver, reviews review.Store, gate *Gate, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		store:       store,
		resolver:    resolver,
		reviews:     reviews,
		gate:        gate,
		concurrency: concurrency,
	}
}

// RunResolution executes one bulk run over deals matching the filter.
// Runs are serialized through the store's run lock; only one executes at a
// time across processes. Individual deal failures never abort the run.
func (o *Orchestrator) RunResolution(ctx context.Context, f resolve.DealFilter) (*model.RunResult, error) {
	release, err := o.store.AcquireRunLock(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "migration: acquire run lock")
	}
	defer release()

	o.gate.Enter()
	defer o.gate.Exit()

	runID, err := o.store.StartRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "migration: start run")
	}

	result := &model.RunResult{RunID: runID, StartedAt: time.Now()}

	deals, err := o.store.ListUnresolvedDeals(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "migration: list unresolved deals")
	}

	zap.L().Info("migration: run started",
		zap.Int64("run_id", runID),
		zap.Int("deal_count", len(deals)),
		zap.String("owner_filter", f.Owner),
		zap.Int("concurrency", o.concurrency),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i := range deals {
		deal := deals[i]
		g.Go(func() error {
			outcome, entry := o.resolveDeal(gctx, &deal)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeResolved:
				result.SuccessCount++
			case outcomeReview:
				result.ErrorCount++
				if entry != nil {
					result.ReviewEntries = append(result.ReviewEntries, *entry)
				}
			case outcomeSkipped:
				result.SkippedCount++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "migration: worker pool")
	}

	result.CompletedAt = time.Now()
	if err := o.store.CompleteRun(ctx, runID, result.SuccessCount, result.ErrorCount, result.SkippedCount); err != nil {
		return nil, eris.Wrap(err, "migration: complete run")
	}

	zap.L().Info("migration: run complete",
		zap.Int64("run_id", runID),
		zap.Int("success", result.SuccessCount),
		zap.Int("errors", result.ErrorCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Duration("elapsed", result.CompletedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

type outcome int

const (
	outcomeResolved outcome = iota
	outcomeReview
	outcomeSkipped
)

// resolveDeal pushes one deal through the resolver. Failures transition the
// deal to review_pending and append a reason-coded review entry; they never
// propagate to the run.
func (o *Orchestrator) resolveDeal(ctx context.Context, deal *model.Deal) (outcome, *model.ReviewEntry) {
	if deal.Resolved() {
		return outcomeSkipped, nil
	}
	switch {
	case deal.State == model.StateResolving:
		// The run lock guarantees no other run is active, so a resolving
		// row seen here was stranded by a killed run. Reclaim it.
		zap.L().Info("migration: reclaiming stranded deal",
			zap.Int64("deal_id", deal.ID),
		)
	case !deal.State.CanTransition(model.StateResolving):
		zap.L().Warn("migration: deal in unexpected state",
			zap.Int64("deal_id", deal.ID),
			zap.String("state", string(deal.State)),
		)
		return outcomeSkipped, nil
	}
	if err := o.store.SetDealState(ctx, deal.ID, model.StateResolving); err != nil {
		zap.L().Error("migration: failed to mark deal resolving", zap.Int64("deal_id", deal.ID), zap.Error(err))
		return outcomeSkipped, nil
	}

	if err := resolve.ValidateEmail(deal.ContactEmail); err != nil {
		reason := model.ReasonInvalidEmail
		if errors.Is(err, resolve.ErrNoEmail) {
			reason = model.ReasonNoEmail
		}
		return outcomeReview, o.routeToReview(ctx, deal, reason, eris.ToString(err, false))
	}

	domain := resolve.ClassifyDomain(deal.ContactEmail)
	companyID, err := o.resolveDealCompany(ctx, deal, domain)
	if err != nil {
		return outcomeReview, o.routeToReview(ctx, deal, model.ReasonEntityCreationFailed, eris.ToString(err, false))
	}

	// A company backed only by free text never links to the contact here.
	// Those contacts stay unlinked until the orphan linker matches them by
	// name; only a corporate-domain company is trusted for the contact row.
	var contactCompanyID *int64
	if domain != "" {
		contactCompanyID = companyID
	}

	contactID, err := o.resolver.ResolveContact(ctx, resolve.ModeBatch, deal.ContactEmail, deal.ContactName, contactCompanyID, deal.Owner)
	if err != nil {
		return outcomeReview, o.routeToReview(ctx, deal, model.ReasonEntityCreationFailed, eris.ToString(err, false))
	}

	if companyID == nil {
		// Contact exists but no company could be derived from either the
		// email domain or the free-text field. The deal cannot carry its
		// canonical references yet.
		return outcomeReview, o.routeToReview(ctx, deal, model.ReasonEntityCreationFailed,
			fmt.Sprintf("contact %d resolved but no company source on deal", contactID))
	}

	if err := o.store.SetDealResolved(ctx, deal.ID, *companyID, contactID); err != nil {
		return outcomeReview, o.routeToReview(ctx, deal, model.ReasonEntityCreationFailed, eris.ToString(err, false))
	}

	zap.L().Debug("migration: deal resolved",
		zap.Int64("deal_id", deal.ID),
		zap.Int64("company_id", *companyID),
		zap.Int64("contact_id", contactID),
	)
	return outcomeResolved, nil
}

// resolveDealCompany resolves the deal's company from the classified email
// domain, falling back to the free-text company field. Returns nil when the
// deal carries neither a corporate domain nor company text.
func (o *Orchestrator) resolveDealCompany(ctx context.Context, deal *model.Deal, domain string) (*int64, error) {
	if domain == "" && deal.Company == "" {
		return nil, nil
	}

	id, err := o.resolver.ResolveCompany(ctx, resolve.ModeBatch, domain, deal.Company, deal.Owner)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// routeToReview transitions the deal to review_pending and appends a review
// entry. Bookkeeping failures are logged, not propagated.
func (o *Orchestrator) routeToReview(ctx context.Context, deal *model.Deal, reason model.ReviewReason, notes string) *model.ReviewEntry {
	if err := o.store.SetDealState(ctx, deal.ID, model.StateReviewPending); err != nil {
		zap.L().Error("migration: failed to mark deal review_pending",
			zap.Int64("deal_id", deal.ID), zap.Error(err))
	}

	entry := review.NewEntry(deal, reason, notes)
	if err := o.reviews.Append(ctx, entry); err != nil {
		zap.L().Error("migration: failed to append review entry",
			zap.Int64("deal_id", deal.ID),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return nil
	}

	zap.L().Info("migration: deal routed to review",
		zap.Int64("deal_id", deal.ID),
		zap.String("reason", string(reason)),
	)
	return entry
}
