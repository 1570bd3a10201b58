package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/crm-resolver/internal/model"
	"github.com/sells-group/crm-resolver/internal/review"
)

var (
	reviewReason string
	reviewLimit  int
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect the manual review queue",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending review entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStores(ctx)
		if err != nil {
			return err
		}
		defer st.close()

		entries, err := st.reviews.ListPending(ctx, review.Filter{
			Reason: model.ReviewReason(reviewReason),
			Limit:  reviewLimit,
		})
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("review queue is empty")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  deal=%d  %-24s  %q <%s>\n",
				e.ID, e.DealID, e.Reason, e.Company, e.ContactEmail)
		}
		return nil
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one review entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStores(ctx)
		if err != nil {
			return err
		}
		defer st.close()

		e, err := st.reviews.Get(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("id:            %s\n", e.ID)
		fmt.Printf("status:        %s\n", e.Status)
		fmt.Printf("reason:        %s\n", e.Reason)
		fmt.Printf("deal:          %d\n", e.DealID)
		fmt.Printf("company:       %s\n", e.Company)
		fmt.Printf("contact name:  %s\n", e.ContactName)
		fmt.Printf("contact email: %s\n", e.ContactEmail)
		fmt.Printf("created:       %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"))
		if e.Notes != "" {
			fmt.Printf("notes:\n%s\n", e.Notes)
		}
		return nil
	},
}

func init() {
	reviewListCmd.Flags().StringVar(&reviewReason, "reason", "", "filter by reason code")
	reviewListCmd.Flags().IntVar(&reviewLimit, "limit", 0, "cap the number of entries listed")
	reviewCmd.AddCommand(reviewListCmd, reviewShowCmd)
	rootCmd.AddCommand(reviewCmd)
}
