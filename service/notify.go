package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Kind classifies a user-facing notice.
type Kind string

const (
	KindOutOfStock   Kind = "out_of_stock"
	KindAddFailed    Kind = "add_failed"
	KindRemoveFailed Kind = "remove_failed"
	KindUpdateFailed Kind = "update_failed"
)

// Messages shown to shoppers. They are fixed and must not be reworded.
const (
	MsgOutOfStock   = "Quantidade solicitada fora de estoque"
	MsgAddFailed    = "Erro na adição do produto"
	MsgRemoveFailed = "Erro na remoção do produto"
	MsgUpdateFailed = "Erro na alteração de quantidade do produto"
)

func (k Kind) Message() string {
	switch k {
	case KindOutOfStock:
		return MsgOutOfStock
	case KindAddFailed:
		return MsgAddFailed
	case KindRemoveFailed:
		return MsgRemoveFailed
	case KindUpdateFailed:
		return MsgUpdateFailed
	}
	return string(k)
}

var (
	// ErrOutOfStock rejects amounts above the stock ceiling or below one.
	ErrOutOfStock = errors.New("requested amount out of stock")
	// ErrNotInCart is returned when the product has no cart entry.
	ErrNotInCart = errors.New("product not in cart")
)

// Notice is a transient message for the shopper.
type Notice struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	ProductID int64     `json:"product_id"`
	At        time.Time `json:"at"`
}

// Failure is returned by cart operations. It carries the notice that was
// emitted and the underlying cause.
type Failure struct {
	Notice Notice
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Notice.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Notifier observes failed cart operations.
type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// MultiNotifier fans a notice out in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(n Notice) {
	for _, nt := range m {
		nt.Notify(n)
	}
}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (l LogNotifier) Notify(n Notice) {
	l.Log.WithFields(logrus.Fields{
		"notice_id":  n.ID.String(),
		"kind":       n.Kind,
		"product_id": n.ProductID,
	}).Warn(n.Message)
}

// Recorder keeps every notice it sees. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Last returns the most recent notice, if any.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}
