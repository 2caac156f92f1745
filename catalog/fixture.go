package catalog

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"rocketshoes-cart/model"
)

type fixtureFile struct {
	Products []struct {
		ID    int64  `yaml:"id"`
		Title string `yaml:"title"`
		Price string `yaml:"price"`
		Image string `yaml:"image"`
	} `yaml:"products"`
	Stock []model.Stock `yaml:"stock"`
}

// Fixture is an in-memory Source loaded from a YAML document with
// "products" and "stock" lists.
type Fixture struct {
	mu       sync.RWMutex
	products map[int64]model.Product
	stock    map[int64]int
}

func NewFixture(products []model.Product, stock []model.Stock) *Fixture {
	f := &Fixture{
		products: make(map[int64]model.Product, len(products)),
		stock:    make(map[int64]int, len(stock)),
	}
	for _, p := range products {
		p.Amount = 0
		f.products[p.ID] = p
	}
	for _, s := range stock {
		f.stock[s.ID] = s.Amount
	}
	return f
}

// LoadFixture reads a fixture file from disk.
func LoadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fixture %s", path)
	}
	return ParseFixture(raw)
}

func ParseFixture(raw []byte) (*Fixture, error) {
	var doc fixtureFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decode fixture")
	}

	products := make([]model.Product, 0, len(doc.Products))
	for _, p := range doc.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "product %d: price %q", p.ID, p.Price)
		}
		products = append(products, model.Product{ID: p.ID, Title: p.Title, Price: price, Image: p.Image})
	}
	for _, s := range doc.Stock {
		if s.Amount < 0 {
			return nil, errors.Errorf("stock %d: negative amount %d", s.ID, s.Amount)
		}
	}
	return NewFixture(products, doc.Stock), nil
}

func (f *Fixture) Products(ctx context.Context) ([]model.Product, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]model.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fixture) Product(ctx context.Context, productID int64) (model.Product, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.products[productID]
	if !ok {
		return model.Product{}, errors.Wrapf(ErrNotFound, "product %d", productID)
	}
	return p, nil
}

// Stock reports zero for known products that have no stock entry.
func (f *Fixture) Stock(ctx context.Context, productID int64) (model.Stock, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	amount, ok := f.stock[productID]
	if !ok {
		if _, known := f.products[productID]; !known {
			return model.Stock{}, errors.Wrapf(ErrNotFound, "stock %d", productID)
		}
	}
	return model.Stock{ID: productID, Amount: amount}, nil
}

func (f *Fixture) SetStock(ctx context.Context, productID int64, amount int) error {
	if amount < 0 {
		return errors.New("stock cannot be negative")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.products[productID]; !ok {
		return errors.Wrapf(ErrNotFound, "product %d", productID)
	}
	f.stock[productID] = amount
	return nil
}
