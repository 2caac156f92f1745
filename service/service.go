// Package service holds the cart manager: an ordered cart validated against
// remote stock ceilings and mirrored to a key-value store.
package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rocketshoes-cart/model"
	"rocketshoes-cart/store"
)

var tracer = otel.Tracer("rocketshoes-cart/service")

var _ CartService = (*CartManager)(nil)

// CartManager owns the cart. Each operation works on a copy taken before
// any remote call and commits it (storage first, then memory) only when
// every step succeeded. Operations racing each other resolve as last
// commit wins.
type CartManager struct {
	stock    StockFetcher
	products ProductFetcher
	store    store.Store
	notifier Notifier
	log      logrus.FieldLogger
	key      string
	now      func() time.Time

	// reject UpdateProductAmount for products missing from the cart
	strictUpdate bool

	mu   sync.RWMutex
	cart model.Cart
}

type Option func(*CartManager)

func WithNotifier(n Notifier) Option {
	return func(m *CartManager) { m.notifier = n }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(m *CartManager) { m.log = log }
}

// WithStorageKey overrides store.CartKey.
func WithStorageKey(key string) Option {
	return func(m *CartManager) { m.key = key }
}

// WithStrictUpdate makes UpdateProductAmount report a failure when the
// product is not in the cart instead of doing nothing.
func WithStrictUpdate(strict bool) Option {
	return func(m *CartManager) { m.strictUpdate = strict }
}

// NewCartManager loads the persisted cart from st. A missing or corrupt
// value yields an empty cart; a storage read error is returned.
func NewCartManager(ctx context.Context, stock StockFetcher, products ProductFetcher, st store.Store, opts ...Option) (*CartManager, error) {
	m := &CartManager{
		stock:    stock,
		products: products,
		store:    st,
		notifier: NotifierFunc(func(Notice) {}),
		log:      logrus.StandardLogger(),
		key:      store.CartKey,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	cart, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	m.cart = cart
	return m, nil
}

func (m *CartManager) load(ctx context.Context) (model.Cart, error) {
	raw, err := m.store.Get(ctx, m.key)
	if errors.Is(err, store.ErrNotFound) {
		return model.Cart{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	var cart model.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		m.log.WithError(err).WithField("key", m.key).Warn("persisted cart is not valid JSON, starting empty")
		return model.Cart{}, nil
	}
	if err := checkCart(cart); err != nil {
		m.log.WithError(err).WithField("key", m.key).Warn("persisted cart is inconsistent, starting empty")
		return model.Cart{}, nil
	}
	if cart == nil {
		cart = model.Cart{}
	}
	return cart, nil
}

func checkCart(c model.Cart) error {
	seen := make(map[int64]struct{}, len(c))
	for _, p := range c {
		if _, dup := seen[p.ID]; dup {
			return errors.Errorf("duplicate product %d", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Amount < 1 {
			return errors.Errorf("product %d has amount %d", p.ID, p.Amount)
		}
	}
	return nil
}

// Cart returns a copy of the current cart.
func (m *CartManager) Cart() model.Cart {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart.Clone()
}

// Size is the number of distinct products in the cart.
func (m *CartManager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cart)
}

func (m *CartManager) Total() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart.Total()
}

// AddProduct adds one unit of productID, fetching catalog details when the
// product is not in the cart yet.
func (m *CartManager) AddProduct(ctx context.Context, productID int64) (err error) {
	ctx, span := startSpan(ctx, "CartManager.AddProduct", productID)
	defer func() { endSpan(span, err) }()

	working := m.snapshot()
	idx := working.Index(productID)

	stock, err := m.stock.Stock(ctx, productID)
	if err != nil {
		return m.fail(KindAddFailed, productID, errors.Wrap(err, "fetch stock"))
	}

	current := 0
	if idx >= 0 {
		current = working[idx].Amount
	}
	desired := current + 1
	if desired > stock.Amount {
		return m.fail(KindOutOfStock, productID, errors.Wrapf(ErrOutOfStock, "want %d, stock %d", desired, stock.Amount))
	}

	if idx >= 0 {
		working[idx].Amount = desired
	} else {
		product, err := m.products.Product(ctx, productID)
		if err != nil {
			return m.fail(KindAddFailed, productID, errors.Wrap(err, "fetch product"))
		}
		product.ID = productID
		product.Amount = 1
		working = append(working, product)
	}

	if err := m.commit(ctx, working); err != nil {
		return m.fail(KindAddFailed, productID, err)
	}
	m.log.WithFields(logrus.Fields{"product_id": productID, "amount": desired}).Debug("product added")
	return nil
}

// RemoveProduct drops the cart entry for productID.
func (m *CartManager) RemoveProduct(ctx context.Context, productID int64) (err error) {
	ctx, span := startSpan(ctx, "CartManager.RemoveProduct", productID)
	defer func() { endSpan(span, err) }()

	working := m.snapshot()
	if working.Index(productID) < 0 {
		return m.fail(KindRemoveFailed, productID, errors.Wrapf(ErrNotInCart, "product %d", productID))
	}

	if err := m.commit(ctx, working.Without(productID)); err != nil {
		return m.fail(KindRemoveFailed, productID, err)
	}
	m.log.WithField("product_id", productID).Debug("product removed")
	return nil
}

// UpdateProductAmount sets the absolute amount of productID. The amount must
// lie within [1, stock].
func (m *CartManager) UpdateProductAmount(ctx context.Context, productID int64, amount int) (err error) {
	ctx, span := startSpan(ctx, "CartManager.UpdateProductAmount", productID)
	span.SetAttributes(attribute.Int("cart.amount", amount))
	defer func() { endSpan(span, err) }()

	working := m.snapshot()

	stock, err := m.stock.Stock(ctx, productID)
	if err != nil {
		return m.fail(KindUpdateFailed, productID, errors.Wrap(err, "fetch stock"))
	}
	if amount > stock.Amount || amount < 1 {
		return m.fail(KindOutOfStock, productID, errors.Wrapf(ErrOutOfStock, "want %d, stock %d", amount, stock.Amount))
	}

	idx := working.Index(productID)
	if idx < 0 {
		if m.strictUpdate {
			return m.fail(KindUpdateFailed, productID, errors.Wrapf(ErrNotInCart, "product %d", productID))
		}
		m.log.WithField("product_id", productID).Debug("amount change ignored, product not in cart")
		return nil
	}
	working[idx].Amount = amount

	if err := m.commit(ctx, working); err != nil {
		return m.fail(KindUpdateFailed, productID, err)
	}
	m.log.WithFields(logrus.Fields{"product_id": productID, "amount": amount}).Debug("product amount changed")
	return nil
}

func (m *CartManager) snapshot() model.Cart {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart.Clone()
}

// commit persists working and then swaps it in. Holding the write lock
// across both keeps storage and memory in the same order.
func (m *CartManager) commit(ctx context.Context, working model.Cart) error {
	raw, err := json.Marshal(working)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Set(ctx, m.key, raw); err != nil {
		return errors.Wrap(err, "persist cart")
	}
	m.cart = working
	return nil
}

func (m *CartManager) fail(kind Kind, productID int64, cause error) error {
	n := Notice{
		ID:        uuid.New(),
		Kind:      kind,
		Message:   kind.Message(),
		ProductID: productID,
		At:        m.now(),
	}
	m.log.WithError(cause).WithFields(logrus.Fields{
		"kind":       kind,
		"product_id": productID,
	}).Info("cart operation rejected")
	m.notifier.Notify(n)
	return &Failure{Notice: n, Err: cause}
}

func startSpan(ctx context.Context, name string, productID int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("product.id", productID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
