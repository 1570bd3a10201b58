package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crm-resolver/internal/db"
	"github.com/sells-group/crm-resolver/internal/resolve"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Store.Driver == "sqlite" {
			// The sqlite store applies its schema on open.
			ss, err := resolve.NewSQLite(cfg.Store.DatabaseURL)
			if err != nil {
				return err
			}
			return ss.Close()
		}
		if cfg.Store.Driver != "postgres" {
			return eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
		}

		ps, err := resolve.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
		if err != nil {
			return err
		}
		defer ps.Close() //nolint:errcheck

		return db.Migrate(ctx, ps.Pool())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
