package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"rocketshoes-cart/catalog"
	"rocketshoes-cart/model"
)

const (
	listProductsSQL = `SELECT id, title, price, image FROM products ORDER BY id`
	getProductSQL   = `SELECT id, title, price, image FROM products WHERE id = $1`
	getStockSQL     = `SELECT stock FROM products WHERE id = $1`
	updateStockSQL  = `UPDATE products SET stock = $1 WHERE id = $2`
)

var (
	_ catalog.Source       = (*PostgresStore)(nil)
	_ catalog.StockUpdater = (*PostgresStore)(nil)
)

func (s *PostgresStore) Products(ctx context.Context) ([]model.Product, error) {
	rows, err := s.DB.QueryContext(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	defer rows.Close()

	out := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.Image); err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Product(ctx context.Context, productID int64) (model.Product, error) {
	var p model.Product
	err := s.DB.QueryRowContext(ctx, getProductSQL, productID).Scan(&p.ID, &p.Title, &p.Price, &p.Image)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, errors.Wrapf(catalog.ErrNotFound, "product %d", productID)
	}
	if err != nil {
		return model.Product{}, errors.Wrapf(err, "get product %d", productID)
	}
	return p, nil
}

// Stock returns current stock for a product.
func (s *PostgresStore) Stock(ctx context.Context, productID int64) (model.Stock, error) {
	var amount int
	err := s.DB.QueryRowContext(ctx, getStockSQL, productID).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Stock{}, errors.Wrapf(catalog.ErrNotFound, "stock %d", productID)
	}
	if err != nil {
		return model.Stock{}, errors.Wrapf(err, "get stock %d", productID)
	}
	return model.Stock{ID: productID, Amount: amount}, nil
}

// SetStock sets the absolute stock for a product (admin operation).
func (s *PostgresStore) SetStock(ctx context.Context, productID int64, amount int) error {
	if amount < 0 {
		return errors.New("stock cannot be negative")
	}
	res, err := s.DB.ExecContext(ctx, updateStockSQL, amount, productID)
	if err != nil {
		return errors.Wrapf(err, "update stock %d", productID)
	}
	ra, _ := res.RowsAffected()
	if ra == 0 {
		return errors.Wrapf(catalog.ErrNotFound, "product %d", productID)
	}
	return nil
}
