// Package remote implements the HTTP client for the loyalty validation
// service. Network failures and timeouts are reported as transient errors
// so the engine can fall back to its offline validator.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fidelio-pos/config"
	"fidelio-pos/internal/loyalty"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.RemoteConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type useCodeRequest struct {
	Code        string `json:"code"`
	OrderDate   string `json:"order_date"`
	PartnerID   int64  `json:"partner_id,omitempty"`
	PricelistID int64  `json:"pricelist_id,omitempty"`
}

func (c *Client) ValidateCode(ctx context.Context, req loyalty.CodeRequest) (*loyalty.CodeValidation, error) {
	body := useCodeRequest{
		Code:        req.Code,
		OrderDate:   req.OrderDate.Format(time.RFC3339),
		PartnerID:   req.PartnerID,
		PricelistID: req.PricelistID,
	}
	var result loyalty.CodeValidation
	if err := c.post(ctx, "/api/v1/loyalty/use-code", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CardPartnerByCode(ctx context.Context, code string) (int64, error) {
	var result struct {
		PartnerID int64 `json:"partner_id"`
	}
	q := url.Values{"code": {code}}
	if err := c.get(ctx, "/api/v1/loyalty/card-partner", q, &result); err != nil {
		return 0, err
	}
	return result.PartnerID, nil
}

func (c *Client) FetchCard(ctx context.Context, programID, partnerID int64) (*loyalty.Card, error) {
	var result struct {
		Found bool          `json:"found"`
		Card  *loyalty.Card `json:"card"`
	}
	q := url.Values{
		"program_id": {strconv.FormatInt(programID, 10)},
		"partner_id": {strconv.FormatInt(partnerID, 10)},
	}
	if err := c.get(ctx, "/api/v1/loyalty/card", q, &result); err != nil {
		return nil, err
	}
	if !result.Found {
		return nil, nil
	}
	return result.Card, nil
}

func (c *Client) Status(ctx context.Context, ref string) (*loyalty.StatusResult, error) {
	var result loyalty.StatusResult
	if err := c.get(ctx, "/api/v1/loyalty/status/"+url.PathEscape(ref), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return loyalty.NewTransientError(err, "loyalty service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return loyalty.NewTransientError(nil, "loyalty service returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("loyalty service returned status %d: %s", resp.StatusCode, data)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
