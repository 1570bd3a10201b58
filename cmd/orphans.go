package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/crm-resolver/internal/orphan"
)

var (
	orphanOwner     string
	orphanOverrides string
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Link unlinked contacts to name-only companies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStores(ctx)
		if err != nil {
			return err
		}
		defer st.close()

		path := orphanOverrides
		if path == "" {
			path = cfg.Orphan.OverridesPath
		}
		overrides, err := orphan.LoadOverrides(path)
		if err != nil {
			return err
		}

		report, err := orphan.NewLinker(st.resolve, st.reviews, overrides).Run(ctx, orphanOwner)
		if err != nil {
			return err
		}

		fmt.Println(report.String())
		return nil
	},
}

func init() {
	orphansCmd.Flags().StringVar(&orphanOwner, "owner", "", "only link contacts for this owner")
	orphansCmd.Flags().StringVar(&orphanOverrides, "overrides", "", "path to the email -> company override file")
	rootCmd.AddCommand(orphansCmd)
}
