package tkassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/planely/kassa/internal/config"
)

// GatewayError is a rejection from the provider's API (Success=false).
type GatewayError struct {
	Code    string
	Message string
	Details string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway rejected request: code=%s message=%s", e.Code, e.Message)
}

// Response is the common shape of the provider's API replies.
type Response struct {
	Success     bool        `json:"Success"`
	ErrorCode   string      `json:"ErrorCode"`
	Message     string      `json:"Message"`
	Details     string      `json:"Details"`
	TerminalKey string      `json:"TerminalKey"`
	Status      string      `json:"Status"`
	PaymentID   json.Number `json:"PaymentId"`
	OrderID     string      `json:"OrderId"`
	PaymentURL  string      `json:"PaymentURL"`
}

// Client is the HTTP collaborator for the provider API. Timeouts live here,
// not in the reconciliation core.
type Client struct {
	baseURL string
	builder *Builder
	http    *http.Client
}

func NewClient(gateway config.GatewayConfig, builder *Builder) *Client {
	return &Client{
		baseURL: strings.TrimRight(gateway.BaseURL, "/"),
		builder: builder,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Init initiates a payment from a pre-built signed payload.
func (c *Client) Init(ctx context.Context, payload map[string]any) (*Response, error) {
	return c.post(ctx, "/Init", payload)
}

// GetState queries the current status of a payment by provider id.
func (c *Client) GetState(ctx context.Context, paymentID string) (*Response, error) {
	fields := c.builder.Sign(map[string]any{"PaymentId": paymentID})
	return c.post(ctx, "/GetState", fields)
}

// Cancel voids an authorized payment or refunds a confirmed one.
func (c *Client) Cancel(ctx context.Context, paymentID string) (*Response, error) {
	fields := c.builder.Sign(map[string]any{"PaymentId": paymentID})
	return c.post(ctx, "/Cancel", fields)
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded Response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}

	if !decoded.Success {
		return &decoded, &GatewayError{
			Code:    decoded.ErrorCode,
			Message: decoded.Message,
			Details: decoded.Details,
		}
	}
	return &decoded, nil
}
