package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/internal/httpapi"
	"github.com/goliatone/go-settings/internal/metrics"
	"github.com/goliatone/go-settings/pkg/activity"
	"github.com/goliatone/go-settings/pkg/activity/usersink"
	"github.com/goliatone/go-settings/pkg/catalog"
	"github.com/goliatone/go-settings/pkg/state"
	"github.com/goliatone/go-settings/schema/openapi"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the settings HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&a.overrides.addr, "addr", "", "listen address")
	flags.StringVar(&a.overrides.driver, "storage", "", "memory, sqlite, postgres or badger")
	flags.StringVar(&a.overrides.dsn, "dsn", "", "SQL data source name")
	flags.StringVar(&a.overrides.path, "path", "", "badger directory")
	flags.BoolVar(&a.overrides.watch, "watch-definitions", false, "reload the definitions file when it changes")
	return cmd
}

// handler assembles the services over rows and returns the HTTP engine. The
// reloader is nil unless definitions.watch is set.
func (a *app) handler(rows stores, reg *prometheus.Registry) (*gin.Engine, *reloader, error) {
	defs, err := loadDefinitions(a.cfg.Definitions.File)
	if err != nil {
		return nil, nil, err
	}
	m := metrics.New(reg)
	build := func(defs []settings.Definition) (*settings.Catalog, error) {
		return settings.NewCatalog(defs,
			settings.WithAnomalyHandler(m.Anomaly),
			settings.WithSlogRuleObserver(a.logger),
		)
	}
	cat, err := build(defs)
	if err != nil {
		return nil, nil, err
	}

	emitter := activity.NewEmitter(activity.Hooks{
		usersink.Hook{Sink: logSink{logger: a.logger}},
	}, activity.Config{
		Enabled: a.cfg.Activity.Enabled,
		Channel: a.cfg.Activity.Channel,
	})
	opts := []catalog.Option{
		catalog.WithLogger(a.logger),
		catalog.WithEmitter(emitter),
		catalog.WithRecorder(m),
	}

	service := state.NewService(cat, state.NewScopeStore(rows.settings),
		state.WithLogger(a.logger),
		state.WithEmitter(emitter),
		state.WithRecorder(m),
	)
	a.logger.Info("settings catalog loaded", "definitions", cat.Len(), "driver", a.cfg.Storage.Driver)

	var watch *reloader
	if a.cfg.Definitions.Watch {
		watch = &reloader{
			path:    a.cfg.Definitions.File,
			build:   build,
			service: service,
			logger:  a.logger,
		}
	}
	engine := httpapi.New(httpapi.Deps{
		Settings:  service,
		Statuses:  catalog.NewStatuses(rows.statuses, opts...),
		Relations: catalog.NewRelations(rows.relations, opts...),
		Templates: catalog.NewTemplates(rows.templates, opts...),
		Schema:    openapi.NewGenerator(),
		Gatherer:  reg,
		Logger:    a.logger,
	})
	return engine, watch, nil
}

func (a *app) serve(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)

	rows, err := openStores(ctx, a.cfg.Storage, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			a.logger.Error("close storage", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engine, watch, err := a.handler(rows, reg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	if watch != nil {
		g.Go(func() error { return watch.Run(gctx) })
	}
	g.Go(func() error {
		a.logger.Info("settings api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeoutDuration())
		defer cancel()
		a.logger.Info("settings api shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
