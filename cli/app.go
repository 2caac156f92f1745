package cli

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"rocketshoes-cart/api"
	"rocketshoes-cart/catalog"
	"rocketshoes-cart/config"
	"rocketshoes-cart/service"
	"rocketshoes-cart/store"
	"rocketshoes-cart/telemetry"
)

// app carries what every command needs after flags are parsed.
type app struct {
	cfg config.Config
	log *logrus.Logger
}

func loadApp(opts *RootOptions, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	log, err := telemetry.NewLogger(logOut, level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	sc := a.cfg.Storage
	log := a.log.WithField("driver", sc.Driver)

	switch sc.Driver {
	case "memory":
		log.Warn("memory storage does not survive restarts")
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.OpenSQLite(sc.DSN)
	case "postgres":
		pg, err := store.NewPostgresStore(sc.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case "redis":
		rs := store.NewRedisStore(sc.DSN)
		if err := rs.Initialize(ctx, 5, log); err != nil {
			rs.Close()
			return nil, err
		}
		return rs, nil
	}
	return nil, errors.Errorf("unknown storage driver %q", sc.Driver)
}

// newManager wires the cart manager to the remote catalog and the
// configured store. The caller closes the returned store.
func (a *app) newManager(ctx context.Context, notifier service.Notifier) (*service.CartManager, store.Store, error) {
	client, err := api.NewClient(a.cfg.API.BaseURL,
		api.WithTimeout(a.cfg.API.Timeout),
		api.WithLogger(a.log.WithField("component", "api")),
	)
	if err != nil {
		return nil, nil, err
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open storage")
	}

	mgr, err := service.NewCartManager(ctx, client, client, st,
		service.WithNotifier(notifier),
		service.WithLogger(a.log.WithField("component", "cart")),
		service.WithStorageKey(a.cfg.Storage.Key),
		service.WithStrictUpdate(a.cfg.Cart.StrictUpdate),
	)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return mgr, st, nil
}

// openCatalog returns the source behind `catalog serve` and its closer.
func (a *app) openCatalog(ctx context.Context) (catalog.Source, func() error, error) {
	cc := a.cfg.Catalog
	switch cc.Source {
	case "fixture":
		fx, err := catalog.LoadFixture(cc.Fixture)
		if err != nil {
			return nil, nil, err
		}
		return fx, func() error { return nil }, nil
	case "postgres":
		pg, err := store.NewPostgresStore(cc.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	return nil, nil, errors.Errorf("unknown catalog source %q", cc.Source)
}
