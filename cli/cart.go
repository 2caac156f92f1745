package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"rocketshoes-cart/service"
)

// NewCartCommand groups one-shot cart operations against the configured
// storage.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and change the persisted cart",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCart(cmd, rootOpts, func(ctx context.Context, mgr *service.CartManager) error {
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <product-id>",
		Short: "Add one unit of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withCart(cmd, rootOpts, func(ctx context.Context, mgr *service.CartManager) error {
				return mgr.AddProduct(ctx, id)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withCart(cmd, rootOpts, func(ctx context.Context, mgr *service.CartManager) error {
				return mgr.RemoveProduct(ctx, id)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "update <product-id> <amount>",
		Short: "Set the amount of a product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Errorf("invalid amount %q", args[1])
			}
			return withCart(cmd, rootOpts, func(ctx context.Context, mgr *service.CartManager) error {
				return mgr.UpdateProductAmount(ctx, id, amount)
			})
		},
	})

	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid product id %q", s)
	}
	return id, nil
}

// withCart builds a manager, runs op and prints the resulting cart. Notices
// go to stderr; a failed op still prints the unchanged cart.
func withCart(cmd *cobra.Command, rootOpts *RootOptions, op func(context.Context, *service.CartManager) error) error {
	a, err := loadApp(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	notify := service.NotifierFunc(func(n service.Notice) {
		fmt.Fprintln(cmd.ErrOrStderr(), n.Message)
	})
	mgr, st, err := a.newManager(cmd.Context(), notify)
	if err != nil {
		return err
	}
	defer st.Close()

	opErr := op(cmd.Context(), mgr)
	if err := renderCart(cmd.OutOrStdout(), rootOpts.Format, mgr.Cart()); err != nil {
		return err
	}
	return opErr
}
