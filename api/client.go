// Package api talks to the remote catalog service that owns products and
// stock ceilings.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"rocketshoes-cart/catalog"
	"rocketshoes-cart/model"
)

// ErrNotFound is returned when the service answers 404.
var ErrNotFound = catalog.ErrNotFound

// StatusError is returned for any other non-2xx answer.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.Path, e.Code)
}

var _ catalog.Source = (*Client)(nil)

// Client is a read-only client for GET /stock/{id}, GET /products/{id}
// and GET /products.
type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse base url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Stock(ctx context.Context, productID int64) (model.Stock, error) {
	var s model.Stock
	if err := c.get(ctx, fmt.Sprintf("/stock/%d", productID), &s); err != nil {
		return model.Stock{}, err
	}
	return s, nil
}

func (c *Client) Product(ctx context.Context, productID int64) (model.Product, error) {
	var p model.Product
	if err := c.get(ctx, fmt.Sprintf("/products/%d", productID), &p); err != nil {
		return model.Product{}, err
	}
	p.Amount = 0
	return p, nil
}

func (c *Client) Products(ctx context.Context) ([]model.Product, error) {
	var ps []model.Product
	if err := c.get(ctx, "/products", &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrapf(err, "build request %s", path)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("catalog request")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return errors.Wrapf(ErrNotFound, "GET %s", path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Path: path, Code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}
