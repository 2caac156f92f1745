package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"rocketshoes-cart/handler"
)

// NewCatalogCommand groups commands for the mock catalog service.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Mock products and stock service",
	}
	cmd.AddCommand(newCatalogServeCommand(rootOpts))
	return cmd
}

func newCatalogServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		addr    string
		fixture string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve GET /products, GET /stock/{id} and PUT /stock/{id}",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				a.cfg.Catalog.Addr = addr
			}
			if fixture != "" {
				a.cfg.Catalog.Source = "fixture"
				a.cfg.Catalog.Fixture = fixture
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			src, closeSrc, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeSrc()

			r := mux.NewRouter()
			r.Use(handler.LogRequests(a.log))
			handler.NewCatalogHandler(src, a.log).RegisterRoutes(r)

			return runServer(ctx, a.cfg.Catalog.Addr, r, a.log.WithField("component", "catalog"))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides catalog.addr)")
	cmd.Flags().StringVar(&fixture, "fixture", "", "YAML fixture with products and stock")
	return cmd
}
