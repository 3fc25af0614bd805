package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goliatone/go-settings/internal/config"
	"github.com/goliatone/go-settings/pkg/guard"
	"github.com/goliatone/go-settings/pkg/state"
	"github.com/goliatone/go-settings/pkg/state/badgerrows"
	"github.com/goliatone/go-settings/pkg/state/sqlrows"
)

// stores holds one row store per versioned entity.
type stores struct {
	settings  guard.RowStore
	statuses  guard.RowStore
	relations guard.RowStore
	templates guard.RowStore
	close     func() error
}

func (s stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func openStores(ctx context.Context, cfg config.Storage, logger *slog.Logger) (stores, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return stores{
			settings:  state.NewMemoryRows(),
			statuses:  state.NewMemoryRows(),
			relations: state.NewMemoryRows(),
			templates: state.NewMemoryRows(),
		}, nil
	case config.DriverSQLite, config.DriverPostgres:
		return openSQL(ctx, cfg)
	case config.DriverBadger:
		bcfg := badgerrows.DefaultConfig(cfg.Path)
		bcfg.Logger = logger
		bcfg.GCInterval = cfg.GCIntervalDuration()
		db, err := badgerrows.Open(bcfg)
		if err != nil {
			return stores{}, err
		}
		return stores{
			settings:  db,
			statuses:  db.Namespace("statuses"),
			relations: db.Namespace("relations"),
			templates: db.Namespace("templates"),
			close:     db.Close,
		}, nil
	default:
		return stores{}, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// openSQL shares one pool between the entity tables.
func openSQL(ctx context.Context, cfg config.Storage) (stores, error) {
	dialect := sqlrows.Dialect(cfg.Driver)
	rows, err := sqlrows.Open(ctx, sqlrows.Config{Dialect: dialect, DSN: cfg.DSN, Table: cfg.Table + "_rows"})
	if err != nil {
		return stores{}, err
	}
	out := stores{settings: rows, close: rows.Close}
	tables := []struct {
		suffix string
		dst    *guard.RowStore
	}{
		{"_statuses", &out.statuses},
		{"_relations", &out.relations},
		{"_templates", &out.templates},
	}
	for _, table := range tables {
		store, err := sqlrows.New(ctx, rows.DB(), dialect, cfg.Table+table.suffix)
		if err != nil {
			return stores{}, errors.Join(err, rows.Close())
		}
		*table.dst = store
	}
	return out, nil
}
