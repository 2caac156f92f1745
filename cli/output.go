package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"rocketshoes-cart/model"
)

type cartView struct {
	Items model.Cart      `json:"items"`
	Size  int             `json:"size"`
	Total decimal.Decimal `json:"total"`
}

// renderCart writes one line per product and a total line, or an indented
// JSON document.
func renderCart(w io.Writer, format string, cart model.Cart) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cartView{Items: cart, Size: len(cart), Total: cart.Total()})
	}

	for _, p := range cart {
		if _, err := fmt.Fprintf(w, "%d\t%s\t%d x R$ %s\tR$ %s\n",
			p.ID, p.Title, p.Amount, p.Price.StringFixed(2), p.Subtotal().StringFixed(2)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "total\tR$ %s\t(%d products)\n", cart.Total().StringFixed(2), len(cart))
	return err
}
