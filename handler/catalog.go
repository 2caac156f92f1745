package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"rocketshoes-cart/catalog"
)

// CatalogHandler serves products and stock the way the storefront's
// catalog service does.
type CatalogHandler struct {
	src catalog.Source
	log logrus.FieldLogger
}

func NewCatalogHandler(src catalog.Source, log logrus.FieldLogger) *CatalogHandler {
	return &CatalogHandler{src: src, log: log}
}

func (h *CatalogHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/products", h.ListProducts).Methods("GET")
	r.HandleFunc("/products/{id:[0-9]+}", h.GetProduct).Methods("GET")
	r.HandleFunc("/stock/{id:[0-9]+}", h.GetStock).Methods("GET")
	r.HandleFunc("/stock/{id:[0-9]+}", h.UpdateStock).Methods("PUT")
}

type updateStockReq struct {
	Amount *int `json:"amount"`
}

func (h *CatalogHandler) writeSourceErr(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "product not found")
		return
	}
	h.log.WithError(err).Error("catalog lookup failed")
	writeErr(w, http.StatusInternalServerError, err.Error())
}

// ListProducts handles GET /products
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.src.Products(r.Context())
	if err != nil {
		h.writeSourceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// GetProduct handles GET /products/{id}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid product id")
		return
	}
	p, err := h.src.Product(r.Context(), id)
	if err != nil {
		h.writeSourceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetStock handles GET /stock/{id}
func (h *CatalogHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid product id")
		return
	}
	s, err := h.src.Stock(r.Context(), id)
	if err != nil {
		h.writeSourceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateStock handles PUT /stock/{id}
// body: { "amount": 5 }
func (h *CatalogHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	up, ok := h.src.(catalog.StockUpdater)
	if !ok {
		writeErr(w, http.StatusMethodNotAllowed, "stock is read-only")
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req updateStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Amount == nil || *req.Amount < 0 {
		writeErr(w, http.StatusBadRequest, "amount must be >= 0")
		return
	}
	if err := up.SetStock(r.Context(), id, *req.Amount); err != nil {
		h.writeSourceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "amount": *req.Amount})
}
