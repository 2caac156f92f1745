package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"rocketshoes-cart/catalog"
	"rocketshoes-cart/model"
	"rocketshoes-cart/service"
)

// CartHandler is the HTTP layer that talks to service.CartService
type CartHandler struct {
	svc service.CartService
	log logrus.FieldLogger
}

// NewCartHandler returns a CartHandler instance
func NewCartHandler(s service.CartService, log logrus.FieldLogger) *CartHandler {
	return &CartHandler{svc: s, log: log}
}

// RegisterRoutes registers all cart routes on the provided router
func (h *CartHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/cart", h.GetCart).Methods("GET")
	r.HandleFunc("/cart/items", h.AddProduct).Methods("POST")
	r.HandleFunc("/cart/items/{id:[0-9]+}", h.RemoveProduct).Methods("DELETE")
	r.HandleFunc("/cart/items/{id:[0-9]+}", h.UpdateProductAmount).Methods("PUT")
}

// --- request / response shapes ---
type addProductReq struct {
	ProductID int64 `json:"product_id"`
}

type updateAmountReq struct {
	Amount *int `json:"amount"`
}

type cartResp struct {
	Items model.Cart      `json:"items"`
	Size  int             `json:"size"`
	Total decimal.Decimal `json:"total"`
}

type failureResp struct {
	Error  string         `json:"error"`
	Notice service.Notice `json:"notice"`
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func (h *CartHandler) writeCart(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, cartResp{Items: h.svc.Cart(), Size: h.svc.Size(), Total: h.svc.Total()})
}

// writeFailure maps a cart failure to a status code and echoes its notice.
func (h *CartHandler) writeFailure(w http.ResponseWriter, err error) {
	var f *service.Failure
	if !errors.As(err, &f) {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	code := http.StatusBadGateway
	switch {
	case errors.Is(err, service.ErrOutOfStock):
		code = http.StatusConflict
	case errors.Is(err, service.ErrNotInCart), errors.Is(err, catalog.ErrNotFound):
		code = http.StatusNotFound
	}
	writeJSON(w, code, failureResp{Error: f.Notice.Message, Notice: f.Notice})
}

// --- Handler ---

// GetCart handles GET /cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w)
}

// AddProduct handles POST /cart/items
// body: { "product_id": 1 }
func (h *CartHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID <= 0 {
		writeErr(w, http.StatusBadRequest, "product_id is required")
		return
	}
	if err := h.svc.AddProduct(r.Context(), req.ProductID); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeCart(w)
}

// RemoveProduct handles DELETE /cart/items/{id}
func (h *CartHandler) RemoveProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid product id")
		return
	}
	if err := h.svc.RemoveProduct(r.Context(), id); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeCart(w)
}

// UpdateProductAmount handles PUT /cart/items/{id}
// body: { "amount": 3 }
func (h *CartHandler) UpdateProductAmount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req updateAmountReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Amount == nil {
		writeErr(w, http.StatusBadRequest, "amount is required")
		return
	}
	if err := h.svc.UpdateProductAmount(r.Context(), id, *req.Amount); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeCart(w)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// LogRequests logs one line per request.
func LogRequests(log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Info("request")
		})
	}
}
