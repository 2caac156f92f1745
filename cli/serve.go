package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"golang.org/x/sync/errgroup"

	"rocketshoes-cart/handler"
	"rocketshoes-cart/service"
	"rocketshoes-cart/telemetry"
)

const version = "v1.0.0"

// NewServeCommand serves the cart HTTP API.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cart HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := a.startTracing(ctx)
			if err != nil {
				return err
			}
			defer shutdown()

			mgr, st, err := a.newManager(ctx, service.LogNotifier{Log: a.log.WithField("component", "notice")})
			if err != nil {
				return err
			}
			defer st.Close()
			a.log.WithField("items", mgr.Size()).Info("cart loaded")

			r := mux.NewRouter()
			r.Use(otelmux.Middleware(a.cfg.Tracing.ServiceName), handler.LogRequests(a.log))
			handler.NewCartHandler(mgr, a.log).RegisterRoutes(r)

			return runServer(ctx, a.cfg.HTTP.Addr, r, a.log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

// startTracing installs the OTLP tracer provider when tracing is enabled.
func (a *app) startTracing(ctx context.Context) (func(), error) {
	if !a.cfg.Tracing.Enabled {
		return func() {}, nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, a.cfg.Tracing.Endpoint, a.cfg.Tracing.ServiceName, version)
	if err != nil {
		return nil, err
	}
	a.log.WithField("endpoint", a.cfg.Tracing.Endpoint).Info("tracing enabled")
	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			a.log.WithError(err).Warn("tracer provider shutdown")
		}
	}, nil
}

// runServer serves h on addr until ctx is cancelled, then shuts down
// gracefully.
func runServer(ctx context.Context, addr string, h http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "listen on %s", addr)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
