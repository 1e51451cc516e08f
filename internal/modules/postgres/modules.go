package postgres

import (
	"context"
	"time"

	"capital_bot/internal/modules/config"
	"capital_bot/pkg/db"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const connectTimeout = 10 * time.Second

// NewTxManager открывает пул по db.dsn. Пустой DSN => nil, база не используется.
func NewTxManager(lc fx.Lifecycle, cfg *config.Config) (db.TxManager, error) {
	if cfg.DB.DSN == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN: cfg.DB.DSN,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create poolMaster")
	}

	m := db.NewPgTxManager(poolMaster)
	lc.Append(fx.StopHook(m.Close))
	return m, nil
}

func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			NewTxManager,
		),
	)
}
