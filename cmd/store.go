package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cep-loader/internal/config"
	"github.com/sells-group/cep-loader/internal/model"
	"github.com/sells-group/cep-loader/internal/store"
)

// openStore opens the configured backend and applies migrations.
func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	policy, err := model.ParseUpdatePolicy(sc.UpdatePolicy)
	if err != nil {
		return nil, err
	}

	var st store.Store
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "records.db"
		}
		st, err = store.NewSQLite(dsn, store.WithUpdatePolicy(policy))
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{MaxConns: sc.MaxConns}, store.WithUpdatePolicy(policy))
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
