package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/crm-resolver/internal/migration"
	"github.com/sells-group/crm-resolver/internal/resolve"
	sfpkg "github.com/sells-group/crm-resolver/pkg/salesforce"
)

var (
	runOwner  string
	runLimit  int
	runDryRun bool
	runPush   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run bulk entity resolution over unresolved deals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStores(ctx)
		if err != nil {
			return err
		}
		defer st.close()

		filter := resolve.DealFilter{Owner: runOwner, Limit: runLimit}

		if runDryRun {
			deals, err := st.resolve.ListUnresolvedDeals(ctx, filter)
			if err != nil {
				return err
			}
			fmt.Printf("dry run: %d deals would be processed\n", len(deals))
			for _, d := range deals {
				fmt.Printf("  #%d %q <%s> (%s)\n", d.ID, d.Company, d.ContactEmail, d.State)
			}
			return nil
		}

		orch := migration.NewOrchestrator(
			st.resolve,
			resolve.NewResolver(st.resolve),
			st.reviews,
			&migration.Gate{},
			cfg.Run.Concurrency,
		)

		result, err := orch.RunResolution(ctx, filter)
		if err != nil {
			return err
		}

		fmt.Printf("run %d: %d resolved, %d routed to review, %d skipped\n",
			result.RunID, result.SuccessCount, result.ErrorCount, result.SkippedCount)
		for _, e := range result.ReviewEntries {
			fmt.Printf("  review %s deal %d: %s\n", e.ID, e.DealID, e.Reason)
		}

		if runPush {
			return pushResolved(cmd, st)
		}
		return nil
	},
}

// pushResolved writes resolved references back to the CRM for deals that
// originated there.
func pushResolved(cmd *cobra.Command, st *stores) error {
	ctx := cmd.Context()

	client, err := initSalesforce()
	if err != nil {
		return err
	}

	crmDeals, err := sfpkg.FetchDeals(ctx, client, 0)
	if err != nil {
		return err
	}

	// Pair CRM records with locally resolved rows by crm_id.
	resolved := crmDeals[:0]
	for _, d := range crmDeals {
		local, err := st.resolve.GetDealByCRMID(ctx, d.CRMID)
		if err != nil {
			return err
		}
		if local != nil && local.Resolved() {
			d.CompanyID = local.CompanyID
			d.PrimaryContactID = local.PrimaryContactID
			resolved = append(resolved, d)
		}
	}

	failed, err := sfpkg.PushResolved(ctx, client, resolved)
	if err != nil {
		return err
	}
	fmt.Printf("pushed %d resolved deals to CRM (%d rejected)\n", len(resolved)-len(failed), len(failed))
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runOwner, "owner", "", "only process deals for this owner")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "cap the number of deals processed")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "list deals without resolving")
	runCmd.Flags().BoolVar(&runPush, "push", false, "push resolved references back to the CRM")
	rootCmd.AddCommand(runCmd)
}
