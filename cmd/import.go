package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crm-resolver/internal/importer"
	sfpkg "github.com/sells-group/crm-resolver/pkg/salesforce"
)

var (
	importFromCRM bool
	importLimit   int
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Load deals from a CSV/XLSX export or the live CRM",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStores(ctx)
		if err != nil {
			return err
		}
		defer st.close()

		if importFromCRM {
			client, err := initSalesforce()
			if err != nil {
				return err
			}
			deals, err := sfpkg.FetchDeals(ctx, client, importLimit)
			if err != nil {
				return err
			}
			for i := range deals {
				if err := st.resolve.InsertDeal(ctx, &deals[i]); err != nil {
					return err
				}
			}
			fmt.Printf("imported %d deals from CRM\n", len(deals))
			return nil
		}

		if len(args) == 0 {
			return eris.New("a file argument is required unless --from-crm is set")
		}
		count, err := importer.New(st.resolve).Load(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("imported %d deals from %s\n", count, args[0])
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importFromCRM, "from-crm", false, "pull deals from the CRM instead of a file")
	importCmd.Flags().IntVar(&importLimit, "limit", 0, "cap the number of CRM deals pulled")
	rootCmd.AddCommand(importCmd)
}
