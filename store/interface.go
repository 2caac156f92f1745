package store

import (
	"context"
	"github.com/pkg/errors"
)

// CartKey is the single key the cart is mirrored under.
const CartKey = "@RocketShoes:cart"

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// Store is a key-value store holding opaque values. Set always overwrites
// the whole value.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error

	Close() error
}
