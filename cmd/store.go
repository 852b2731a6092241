package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/treeline-forestry/dta-cli/internal/session"
	"github.com/treeline-forestry/dta-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "dta.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initSession opens the store, runs the idempotent schema bootstrap, and
// hydrates a session from it. Callers own closing the returned store.
func initSession(ctx context.Context) (*session.Session, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}

	sess := session.New(st)
	if err := sess.Hydrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}
	return sess, st, nil
}
