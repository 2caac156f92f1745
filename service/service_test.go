package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rocketshoes-cart/model"
	"rocketshoes-cart/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---- fakes ----

type fakeCatalog struct {
	StockFn   func(productID int64) (model.Stock, error)
	ProductFn func(productID int64) (model.Product, error)

	mu            sync.Mutex
	productCalls  int
	stockRequests int
}

func (f *fakeCatalog) Stock(ctx context.Context, productID int64) (model.Stock, error) {
	f.mu.Lock()
	f.stockRequests++
	f.mu.Unlock()
	return f.StockFn(productID)
}

func (f *fakeCatalog) Product(ctx context.Context, productID int64) (model.Product, error) {
	f.mu.Lock()
	f.productCalls++
	f.mu.Unlock()
	return f.ProductFn(productID)
}

func stockOf(amounts map[int64]int) func(int64) (model.Stock, error) {
	return func(id int64) (model.Stock, error) {
		return model.Stock{ID: id, Amount: amounts[id]}, nil
	}
}

func shoe(id int64) (model.Product, error) {
	return model.Product{
		ID:    id,
		Title: "Tênis",
		Price: decimal.RequireFromString("179.90"),
		Image: "tenis.jpg",
	}, nil
}

// countingStore counts writes and can be told to fail them.
type countingStore struct {
	*store.MemoryStore
	writes  int
	failSet error
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	if c.failSet != nil {
		return c.failSet
	}
	c.writes++
	return c.MemoryStore.Set(ctx, key, value)
}

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func seed(t *testing.T, st store.Store, cart model.Cart) {
	t.Helper()
	raw, err := json.Marshal(cart)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), store.CartKey, raw))
}

func persisted(t *testing.T, st store.Store) model.Cart {
	t.Helper()
	raw, err := st.Get(context.Background(), store.CartKey)
	require.NoError(t, err)
	var c model.Cart
	require.NoError(t, json.Unmarshal(raw, &c))
	return c
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

type harness struct {
	mgr     *CartManager
	catalog *fakeCatalog
	store   *countingStore
	notices *Recorder
}

func newHarness(t *testing.T, cart model.Cart, stock map[int64]int, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		catalog: &fakeCatalog{StockFn: stockOf(stock), ProductFn: shoe},
		store:   &countingStore{MemoryStore: store.NewMemoryStore()},
		notices: &Recorder{},
	}
	if cart != nil {
		seed(t, h.store.MemoryStore, cart)
	}
	opts = append([]Option{WithNotifier(h.notices), WithLogger(quietLogger())}, opts...)
	mgr, err := NewCartManager(context.Background(), h.catalog, h.catalog, h.store, opts...)
	require.NoError(t, err)
	h.mgr = mgr
	return h
}

func (h *harness) requireNotice(t *testing.T, kind Kind, message string) {
	t.Helper()
	n, ok := h.notices.Last()
	require.True(t, ok, "expected a notice")
	assert.Equal(t, kind, n.Kind)
	assert.Equal(t, message, n.Message)
}

func ids(c model.Cart) []int64 {
	out := make([]int64, 0, len(c))
	for _, p := range c {
		out = append(out, p.ID)
	}
	return out
}

// ---- construction ----

func TestNewCartManager_EmptyWhenAbsent(t *testing.T) {
	h := newHarness(t, nil, nil)
	assert.Empty(t, h.mgr.Cart())
	assert.NotNil(t, h.mgr.Cart())
	assert.Equal(t, 0, h.mgr.Size())
}

func TestNewCartManager_MalformedStorageFallsBackToEmpty(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":  `{"id":`,
		"object":    `{"id":1}`,
		"duplicate": `[{"id":1,"amount":1},{"id":1,"amount":2}]`,
		"zero":      `[{"id":1,"amount":0}]`,
		"null":      `null`,
	} {
		t.Run(name, func(t *testing.T) {
			st := store.NewMemoryStore()
			require.NoError(t, st.Set(context.Background(), store.CartKey, []byte(raw)))

			mgr, err := NewCartManager(context.Background(), &fakeCatalog{}, &fakeCatalog{}, st, WithLogger(quietLogger()))
			require.NoError(t, err)
			assert.Empty(t, mgr.Cart())
			assert.NotNil(t, mgr.Cart())
		})
	}
}

type brokenStore struct{ store.MemoryStore }

func (b *brokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("backend unreachable")
}

func TestNewCartManager_StorageReadError(t *testing.T) {
	_, err := NewCartManager(context.Background(), &fakeCatalog{}, &fakeCatalog{}, &brokenStore{}, WithLogger(quietLogger()))
	require.Error(t, err)
}

func TestNewCartManager_CustomKey(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Set(context.Background(), "other", []byte(`[{"id":4,"amount":2}]`)))

	mgr, err := NewCartManager(context.Background(), &fakeCatalog{}, &fakeCatalog{}, st, WithStorageKey("other"), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, ids(mgr.Cart()))
}

// ---- addProduct ----

func TestAddProduct_NewEntry(t *testing.T) {
	h := newHarness(t, nil, map[int64]int{1: 5})

	require.NoError(t, h.mgr.AddProduct(context.Background(), 1))

	want := model.Cart{{ID: 1, Title: "Tênis", Price: decimal.RequireFromString("179.9"), Image: "tenis.jpg", Amount: 1}}
	if diff := cmp.Diff(want, h.mgr.Cart(), decimalEqual); diff != "" {
		t.Fatalf("cart mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, persisted(t, h.store), decimalEqual); diff != "" {
		t.Fatalf("storage mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, h.notices.Notices())
}

func TestAddProduct_IncrementsExisting(t *testing.T) {
	h := newHarness(t, model.Cart{{ID: 1, Amount: 2}, {ID: 2, Amount: 1}}, map[int64]int{1: 3})

	require.NoError(t, h.mgr.AddProduct(context.Background(), 1))

	c := h.mgr.Cart()
	assert.Equal(t, []int64{1, 2}, ids(c))
	assert.Equal(t, 3, c[0].Amount)
	assert.Equal(t, 1, c[1].Amount)
	assert.Equal(t, 0, h.catalog.productCalls, "existing entries must not refetch the product")
	assert.Equal(t, 3, persisted(t, h.store)[0].Amount)
}

func TestAddProduct_OutOfStock(t *testing.T) {
	h := newHarness(t, model.Cart{{ID: 1, Amount: 1}}, map[int64]int{1: 1})

	err := h.mgr.AddProduct(context.Background(), 1)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfStock))
	h.requireNotice(t, KindOutOfStock, "Quantidade solicitada fora de estoque")
	assert.Equal(t, 1, h.mgr.Cart()[0].Amount)
	assert.Equal(t, 0, h.store.writes)
}

func TestAddProduct_ZeroStockForNewProduct(t *testing.T) {
	h := newHarness(t, nil, map[int64]int{})

	err := h.mgr.AddProduct(context.Background(), 7)

	assert.True(t, errors.Is(err, ErrOutOfStock))
	assert.Empty(t, h.mgr.Cart())
	assert.Equal(t, 0, h.catalog.productCalls)
}

func TestAddProduct_FetchFailures(t *testing.T) {
	t.Run("stock", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.catalog.StockFn = func(int64) (model.Stock, error) { return model.Stock{}, errors.New("network down") }

		err := h.mgr.AddProduct(context.Background(), 1)

		var f *Failure
		require.True(t, errors.As(err, &f))
		assert.Equal(t, KindAddFailed, f.Notice.Kind)
		h.requireNotice(t, KindAddFailed, "Erro na adição do produto")
		assert.Equal(t, 0, h.store.writes)
	})

	t.Run("product", func(t *testing.T) {
		h := newHarness(t, model.Cart{{ID: 2, Amount: 1}}, map[int64]int{1: 5})
		h.catalog.ProductFn = func(int64) (model.Product, error) { return model.Product{}, errors.New("404") }

		err := h.mgr.AddProduct(context.Background(), 1)

		require.Error(t, err)
		h.requireNotice(t, KindAddFailed, MsgAddFailed)
		assert.Equal(t, []int64{2}, ids(h.mgr.Cart()))
		assert.Equal(t, 0, h.store.writes)
	})
}

func TestAddProduct_StorageFailureLeavesMemoryUntouched(t *testing.T) {
	h := newHarness(t, model.Cart{{ID: 1, Amount: 1}}, map[int64]int{1: 5})
	h.store.failSet = errors.New("quota exceeded")

	err := h.mgr.AddProduct(context.Background(), 1)

	require.Error(t, err)
	h.requireNotice(t, KindAddFailed, MsgAddFailed)
	assert.Equal(t, 1, h.mgr.Cart()[0].Amount)
}

func TestAddProduct_RetryAfterFailureIsIdempotent(t *testing.T) {
	h := newHarness(t, model.Cart{{ID: 1, Amount: 1}}, map[int64]int{1: 5})
	h.store.failSet = errors.New("transient")
	require.Error(t, h.mgr.AddProduct(context.Background(), 1))
	require.Error(t, h.mgr.AddProduct(context.Background(), 1))

	h.store.failSet = nil
	require.NoError(t, h.mgr.AddProduct(context.Background(), 1))

	assert.Equal(t, 2, h.mgr.Cart()[0].Amount)
}

func TestAddProduct_ForcesRequestedID(t *testing.T) {
	h := newHarness(t, nil, map[int64]int{3: 1})
	h.catalog.ProductFn = func(int64) (model.Product, error) {
		return model.Product{ID: 99, Title: "x", Amount: 4}, nil
	}

	require.NoError(t, h.mgr.AddProduct(context.Background(), 3))

	c := h.mgr.Cart()
	assert.Equal(t, int64(3), c[0].ID)
	assert.Equal(t, 1, c[0].Amount)
}

// ---- removeProduct ----

func TestRemoveProduct_Present(t *testing.T) {
	h := newHarness(t, model.Cart{{ID: 1, Amount: 1}, {ID: 2, Amount: 4}, {ID: 3, Amount: 2}}, nil)

	require.NoError(t, h.mgr.RemoveProduct(context.Background(), 2))

	c := h.mgr.Cart()
	assert.Equal(t, []int64{1, 3}, ids(c))
	assert.Equal(t, 1, c[0].Amount)
	assert.Equal(t, 2, c[1].Amount)
	assert.Equal(t, []int64{1, 3}, ids(persisted(t, h.store)))
	assert.Empty(t, h.notices.Notices())
}

func TestRemoveProduct_LastEntryPersistsEmptyArray(t *testing.T) {
	h := newHarness(t, model.Cart{{ID: 1, Amount: 1}}, nil)

	require.NoError(t, h.mgr.RemoveProduct(context.Background(), 1))

	raw, err := h.store.Get(context.Background(), store.CartKey)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestRemoveProduct_Absent(t *testing.T) {
	h := newHarness(t, model.Cart{{ID: 1, Amount: 1}}, nil)

	err := h.mgr.RemoveProduct(context.Background(), 5)

	assert.True(t, errors.Is(err, ErrNotInCart))
	h.requireNotice(t, KindRemoveFailed, "Erro na remoção do produto")
	assert.Equal(t, []int64{1}, ids(h.mgr.Cart()))
	assert.Equal(t, 0, h.store.writes)
}

func TestRemoveProduct_StorageFailure(t *testing.T) {
	h := newHarness(t, model.Cart{{ID: 1, Amount: 1}}, nil)
	h.store.failSet = errors.New("disk full")

	require.Error(t, h.mgr.RemoveProduct(context.Background(), 1))
	h.requireNotice(t, KindRemoveFailed, MsgRemoveFailed)
	assert.Equal(t, []int64{1}, ids(h.mgr.Cart()))
}

// ---- updateProductAmount ----

func TestUpdateProductAmount_WithinRange(t *testing.T) {
	h := newHarness(t, model.Cart{{ID: 1, Amount: 1}, {ID: 2, Amount: 1}}, map[int64]int{1: 4})

	for _, n := range []int{1, 4, 2} {
		require.NoError(t, h.mgr.UpdateProductAmount(context.Background(), 1, n))
		assert.Equal(t, n, h.mgr.Cart()[0].Amount)
		assert.Equal(t, n, persisted(t, h.store)[0].Amount)
	}
	assert.Equal(t, 1, h.mgr.Cart()[1].Amount)
}

func TestUpdateProductAmount_OutOfRange(t *testing.T) {
	for _, n := range []int{0, -3, 6} {
		h := newHarness(t, model.Cart{{ID: 1, Amount: 2}}, map[int64]int{1: 5})

		err := h.mgr.UpdateProductAmount(context.Background(), 1, n)

		assert.True(t, errors.Is(err, ErrOutOfStock), "amount %d", n)
		h.requireNotice(t, KindOutOfStock, "Quantidade solicitada fora de estoque")
		assert.Equal(t, 2, h.mgr.Cart()[0].Amount)
		assert.Equal(t, 0, h.store.writes)
	}
}

func TestUpdateProductAmount_MissingEntry(t *testing.T) {
	t.Run("lenient", func(t *testing.T) {
		h := newHarness(t, model.Cart{{ID: 1, Amount: 1}}, map[int64]int{2: 5})

		require.NoError(t, h.mgr.UpdateProductAmount(context.Background(), 2, 3))
		assert.Empty(t, h.notices.Notices())
		assert.Equal(t, 0, h.store.writes)
		assert.Equal(t, []int64{1}, ids(h.mgr.Cart()))
	})

	t.Run("strict", func(t *testing.T) {
		h := newHarness(t, model.Cart{{ID: 1, Amount: 1}}, map[int64]int{2: 5}, WithStrictUpdate(true))

		err := h.mgr.UpdateProductAmount(context.Background(), 2, 3)
		assert.True(t, errors.Is(err, ErrNotInCart))
		h.requireNotice(t, KindUpdateFailed, "Erro na alteração de quantidade do produto")
		assert.Equal(t, 0, h.store.writes)
	})
}

func TestUpdateProductAmount_Failures(t *testing.T) {
	h := newHarness(t, model.Cart{{ID: 1, Amount: 1}}, map[int64]int{1: 5})
	h.catalog.StockFn = func(int64) (model.Stock, error) { return model.Stock{}, errors.New("timeout") }

	require.Error(t, h.mgr.UpdateProductAmount(context.Background(), 1, 2))
	h.requireNotice(t, KindUpdateFailed, MsgUpdateFailed)

	h.catalog.StockFn = stockOf(map[int64]int{1: 5})
	h.store.failSet = errors.New("disk full")
	require.Error(t, h.mgr.UpdateProductAmount(context.Background(), 1, 2))
	h.requireNotice(t, KindUpdateFailed, MsgUpdateFailed)
	assert.Equal(t, 1, h.mgr.Cart()[0].Amount)
}

// ---- persistence and derived values ----

func TestRoundTripThroughStorage(t *testing.T) {
	h := newHarness(t, nil, map[int64]int{1: 5, 2: 5, 3: 5})
	ctx := context.Background()
	require.NoError(t, h.mgr.AddProduct(ctx, 3))
	require.NoError(t, h.mgr.AddProduct(ctx, 1))
	require.NoError(t, h.mgr.AddProduct(ctx, 2))
	require.NoError(t, h.mgr.UpdateProductAmount(ctx, 1, 4))
	require.NoError(t, h.mgr.RemoveProduct(ctx, 2))

	fresh, err := NewCartManager(ctx, h.catalog, h.catalog, h.store, WithLogger(quietLogger()))
	require.NoError(t, err)

	if diff := cmp.Diff(h.mgr.Cart(), fresh.Cart(), decimalEqual); diff != "" {
		t.Fatalf("reloaded cart mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int64{3, 1}, ids(fresh.Cart()))
}

func TestCartReturnsCopy(t *testing.T) {
	h := newHarness(t, model.Cart{{ID: 1, Amount: 1}}, nil)

	c := h.mgr.Cart()
	c[0].Amount = 50

	assert.Equal(t, 1, h.mgr.Cart()[0].Amount)
}

func TestSizeAndTotal(t *testing.T) {
	h := newHarness(t, model.Cart{
		{ID: 1, Price: decimal.RequireFromString("179.90"), Amount: 2},
		{ID: 2, Price: decimal.RequireFromString("139.90"), Amount: 1},
	}, nil)

	assert.Equal(t, 2, h.mgr.Size())
	assert.True(t, h.mgr.Total().Equal(decimal.RequireFromString("499.70")), "got %s", h.mgr.Total())
}

// Two operations started from the same snapshot: the one that commits last
// decides the final cart.
func TestInterleavedOperationsLastCommitWins(t *testing.T) {
	h := newHarness(t, nil, map[int64]int{1: 5, 2: 5})

	entered := make(chan struct{})
	release := make(chan struct{})
	h.catalog.StockFn = func(id int64) (model.Stock, error) {
		if id == 1 {
			close(entered)
			<-release
		}
		return model.Stock{ID: id, Amount: 5}, nil
	}

	done := make(chan error)
	go func() { done <- h.mgr.AddProduct(context.Background(), 1) }()

	<-entered
	require.NoError(t, h.mgr.AddProduct(context.Background(), 2))
	assert.Equal(t, []int64{2}, ids(h.mgr.Cart()))

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1}, ids(h.mgr.Cart()))
	assert.Equal(t, []int64{1}, ids(persisted(t, h.store)))
}
