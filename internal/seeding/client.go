package seeding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/internal/domain/types"
)

// ErrUnexpectedStatus is returned for responses the run cannot interpret.
var ErrUnexpectedStatus = errors.New("unexpected status")

// importResult classifies one synchronous import.
type importResult int

const (
	resultImported importResult = iota
	resultDuplicate
	resultRejected
	resultFailed
)

// Client talks to the comparo HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{base: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, out, nil
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("connect to service: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: healthz %d", ErrUnexpectedStatus, status)
	}
	return nil
}

// importOne posts one record.
func (c *Client) importOne(ctx context.Context, rec model.ComparableRecord) importResult {
	status, _, err := c.do(ctx, http.MethodPost, "/v1/comparables", rec)
	switch {
	case err != nil:
		return resultFailed
	case status == http.StatusCreated:
		return resultImported
	case status == http.StatusConflict:
		return resultDuplicate
	case status == http.StatusBadRequest:
		return resultRejected
	default:
		return resultFailed
	}
}

// Batch posts records for async import. A 429 still carries a receipt.
func (c *Client) Batch(ctx context.Context, recs []model.ComparableRecord) (types.BatchReceipt, bool, error) {
	var receipt types.BatchReceipt
	status, body, err := c.do(ctx, http.MethodPost, "/v1/comparables:batch", recs)
	if err != nil {
		return receipt, false, err
	}
	if status != http.StatusAccepted && status != http.StatusTooManyRequests {
		return receipt, false, fmt.Errorf("%w: batch %d: %s", ErrUnexpectedStatus, status, body)
	}
	if err := json.Unmarshal(body, &receipt); err != nil {
		return receipt, false, fmt.Errorf("decode receipt: %w", err)
	}
	return receipt, status == http.StatusTooManyRequests, nil
}

// TotalComparables reads the stored comparable count from /stats.
func (c *Client) TotalComparables(ctx context.Context) (int, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/stats", nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("%w: stats %d", ErrUnexpectedStatus, status)
	}
	var stats struct {
		TotalComparables int `json:"totalComparables"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		return 0, fmt.Errorf("decode stats: %w", err)
	}
	return stats.TotalComparables, nil
}

// Valuate posts a valuation request.
func (c *Client) Valuate(ctx context.Context, req model.ValuationRequest) (model.ValuationResult, error) {
	var res model.ValuationResult
	status, body, err := c.do(ctx, http.MethodPost, "/v1/valuations", req)
	if err != nil {
		return res, err
	}
	if status != http.StatusOK {
		return res, fmt.Errorf("%w: valuation %d: %s", ErrUnexpectedStatus, status, body)
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return res, fmt.Errorf("decode valuation: %w", err)
	}
	return res, nil
}
