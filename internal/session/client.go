// Package session is a typed client for the remote vending session API.
//
// Every operation is a single HTTP exchange with no retries. Failures are
// either a *TransportError or an *APIError.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/vending-kiosk/internal/model"
	"github.com/fairyhunter13/vending-kiosk/internal/obs"
)

// Client talks to the /api/distributor endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Metrics   *obs.Metrics
}

// New creates a Client. The transport timeout is the only timeout applied.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: Instrument(cfg.Transport, cfg.Metrics),
		},
	}
}

// ListProducts returns the catalog with purchasability at read time.
func (c *Client) ListProducts(ctx context.Context) ([]model.ProductOffering, error) {
	var out []model.ProductOffering
	if err := c.do(ctx, "list_products", http.MethodGet, "/products", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetState returns the authoritative session state.
func (c *Client) GetState(ctx context.Context) (model.SessionState, error) {
	var out model.SessionState
	if err := c.do(ctx, "get_state", http.MethodGet, "/state", nil, &out); err != nil {
		return model.SessionState{}, err
	}
	return out, nil
}

// InsertCoin adds coin to the balance. A coin outside the accepted set is
// refused with model.ErrInvalidCoin before any request is made.
func (c *Client) InsertCoin(ctx context.Context, coin model.Coin) (*CoinResponse, error) {
	if !coin.Valid() {
		return nil, fmt.Errorf("insert_coin: %w: %d", model.ErrInvalidCoin, int64(coin))
	}
	var out CoinResponse
	body := coinRequest{Value: json.Number(coin.Decimal().String())}
	if err := c.do(ctx, "insert_coin", http.MethodPost, "/coin", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SelectProduct adds one unit of productID to the selection.
func (c *Client) SelectProduct(ctx context.Context, productID int64) (*SelectionResponse, error) {
	var out SelectionResponse
	if err := c.do(ctx, "select_product", http.MethodPost, "/select", selectionRequest{ProductID: productID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeselectProduct removes one unit of productID from the selection.
func (c *Client) DeselectProduct(ctx context.Context, productID int64) (*SelectionResponse, error) {
	var out SelectionResponse
	if err := c.do(ctx, "deselect_product", http.MethodPost, "/deselect", selectionRequest{ProductID: productID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Dispense finalizes the transaction.
func (c *Client) Dispense(ctx context.Context) (*DispenseResponse, error) {
	var out DispenseResponse
	if err := c.do(ctx, "dispense", http.MethodPost, "/dispense", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel aborts the transaction and refunds inserted coins.
func (c *Client) Cancel(ctx context.Context) (*CancelResponse, error) {
	var out CancelResponse
	if err := c.do(ctx, "cancel", http.MethodPost, "/cancel", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddProduct registers a catalog entry through the operator endpoint.
func (c *Client) AddProduct(ctx context.Context, req *AddProductRequest) (*model.Product, error) {
	var out model.Product
	body := addProductBody{Name: req.Name, Price: json.Number(req.Price.String())}
	if err := c.do(ctx, "add_product", http.MethodPost, "/admin/product", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(withOp(ctx, op), method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Op: op, Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil {
			apiErr.Code = eb.Error
			apiErr.Message = eb.Message
			apiErr.IsKey = eb.IsKey
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return nil
}
