package service

import (
	"context"

	"github.com/shopspring/decimal"

	"rocketshoes-cart/model"
)

// CartService is what the cart surfaces (HTTP, CLI) depend on.
type CartService interface {
	Cart() model.Cart
	Size() int
	Total() decimal.Decimal

	AddProduct(ctx context.Context, productID int64) error
	RemoveProduct(ctx context.Context, productID int64) error
	UpdateProductAmount(ctx context.Context, productID int64, amount int) error
}

// StockFetcher returns the current stock ceiling of a product.
type StockFetcher interface {
	Stock(ctx context.Context, productID int64) (model.Stock, error)
}

// ProductFetcher returns catalog details of a product.
type ProductFetcher interface {
	Product(ctx context.Context, productID int64) (model.Product, error)
}
