package tkassa

import (
	"errors"
	"strings"

	"github.com/planely/kassa/internal/config"
)

var (
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrMissingOrderID = errors.New("missing_order_id")
)

// InitParams is the caller-facing input for one payment initiation.
// Amount is kopecks; the provider's Init endpoint takes minor units.
type InitParams struct {
	OrderID     string
	Amount      int64
	Description string
	CustomerKey string
	Email       string
	Language    string
	PayType     string

	ReceiptItems []ReceiptItem
}

// ReceiptItem is one fiscalization line. Price and Amount are kopecks.
type ReceiptItem struct {
	Name     string  `json:"Name"`
	Price    int64   `json:"Price"`
	Quantity float64 `json:"Quantity"`
	Amount   int64   `json:"Amount"`
	Tax      string  `json:"Tax"`
}

// Builder assembles signed Init payloads for one credential pair. It holds
// no mutable state and performs no I/O.
type Builder struct {
	creds    config.Credentials
	urls     callbackURLs
	taxation string
}

type callbackURLs struct {
	notification string
	success      string
	fail         string
}

func NewBuilder(gateway config.GatewayConfig) (*Builder, error) {
	creds, err := gateway.ActiveCredentials()
	if err != nil {
		return nil, err
	}
	return &Builder{
		creds: creds,
		urls: callbackURLs{
			notification: gateway.NotificationURL,
			success:      gateway.SuccessURL,
			fail:         gateway.FailURL,
		},
		taxation: "usn_income",
	}, nil
}

// Init builds the full Init payload with its Token attached. The Receipt
// object is appended after signing; it never participates in the digest.
func (b *Builder) Init(p InitParams) (map[string]any, error) {
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(p.OrderID) == "" {
		return nil, ErrMissingOrderID
	}

	payload := map[string]any{
		"TerminalKey": b.creds.TerminalKey,
		"Amount":      p.Amount,
		"OrderId":     p.OrderID,
	}
	putIfSet(payload, "Description", p.Description)
	putIfSet(payload, "CustomerKey", p.CustomerKey)
	putIfSet(payload, "PayType", p.PayType)
	putIfSet(payload, "Language", p.Language)
	putIfSet(payload, "NotificationURL", b.urls.notification)
	putIfSet(payload, "SuccessURL", b.urls.success)
	putIfSet(payload, "FailURL", b.urls.fail)

	payload["Token"] = Token(payload, b.creds.SecretKey)

	if len(p.ReceiptItems) > 0 {
		payload["Receipt"] = map[string]any{
			"Email":    p.Email,
			"Taxation": b.taxation,
			"Items":    p.ReceiptItems,
		}
	}

	return payload, nil
}

// Sign builds the token for an arbitrary control request (GetState, Cancel).
func (b *Builder) Sign(fields map[string]any) map[string]any {
	fields["TerminalKey"] = b.creds.TerminalKey
	fields["Token"] = Token(fields, b.creds.SecretKey)
	return fields
}

func putIfSet(payload map[string]any, key, value string) {
	if strings.TrimSpace(value) != "" {
		payload[key] = value
	}
}
