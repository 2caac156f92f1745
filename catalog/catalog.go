// Package catalog serves the product catalog and stock ceilings that the
// cart validates against.
package catalog

import (
	"context"

	"github.com/pkg/errors"

	"rocketshoes-cart/model"
)

// ErrNotFound is returned when a product id is unknown.
var ErrNotFound = errors.New("product not found")

// Source is a read view over products and their stock.
type Source interface {
	Products(ctx context.Context) ([]model.Product, error)
	Product(ctx context.Context, productID int64) (model.Product, error)
	Stock(ctx context.Context, productID int64) (model.Stock, error)
}

// StockUpdater is implemented by sources that accept stock changes.
type StockUpdater interface {
	SetStock(ctx context.Context, productID int64, amount int) error
}
