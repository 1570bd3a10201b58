package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-resolver/internal/resolve"
	"github.com/sells-group/crm-resolver/internal/review"
	sfpkg "github.com/sells-group/crm-resolver/pkg/salesforce"
)

// stores bundles the two persistence surfaces a command needs.
type stores struct {
	resolve resolve.Store
	reviews review.Store
}

func (s *stores) close() {
	_ = s.resolve.Close()
}

// initStores opens the configured backend. Postgres is the production
// driver; sqlite serves local and development runs.
func initStores(ctx context.Context) (*stores, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "resolver.db"
		}
		ss, err := resolve.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return &stores{resolve: ss, reviews: review.NewSQLiteStore(ss.DB())}, nil
	case "postgres":
		ps, err := resolve.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
		if err != nil {
			return nil, err
		}
		return &stores{resolve: ps, reviews: review.NewPostgresStore(ps.Pool())}, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initSalesforce builds the CRM client from config.
func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (RESOLVER_SALESFORCE_CLIENT_ID)")
	}
	return sfpkg.Connect(sfpkg.Creds{
		LoginURL: cfg.Salesforce.LoginURL,
		Username: cfg.Salesforce.Username,
		ClientID: cfg.Salesforce.ClientID,
		KeyPath:  cfg.Salesforce.KeyPath,
	}, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit))
}
