package tkassa

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/planely/kassa/internal/config"
)

var (
	ErrMalformedPayload = errors.New("malformed_payload")
	ErrInvalidSignature = errors.New("invalid_signature")
)

// Notification is a verified webhook payload. Fields keeps the full decoded
// body for the audit trail; the typed accessors cover what reconciliation
// needs.
type Notification struct {
	TerminalKey string
	OrderID     string
	Status      string
	PaymentID   string
	Amount      int64
	Success     bool

	Fields map[string]any
	Raw    []byte
}

// ParseNotification decodes and verifies a webhook body. The notification's
// TerminalKey picks which configured secret to verify against; when it
// matches no configured terminal, every known secret is tried before
// rejecting. Signature failures are indistinguishable from each other by
// design.
func ParseNotification(raw []byte, gateway config.GatewayConfig) (*Notification, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, ErrMalformedPayload
	}
	if len(fields) == 0 {
		return nil, ErrMalformedPayload
	}

	if !verifyAgainstConfig(fields, gateway) {
		return nil, ErrInvalidSignature
	}

	n := &Notification{
		TerminalKey: stringField(fields, "TerminalKey"),
		OrderID:     stringField(fields, "OrderId"),
		Status:      strings.ToUpper(stringField(fields, "Status")),
		PaymentID:   numericString(fields, "PaymentId"),
		Amount:      intField(fields, "Amount"),
		Success:     boolField(fields, "Success"),
		Fields:      fields,
		Raw:         raw,
	}
	if n.OrderID == "" && n.PaymentID == "" {
		return nil, ErrMalformedPayload
	}
	return n, nil
}

func verifyAgainstConfig(fields map[string]any, gateway config.GatewayConfig) bool {
	terminalKey := stringField(fields, "TerminalKey")
	if creds, ok := gateway.CredentialsForTerminal(terminalKey); ok {
		return VerifyToken(fields, creds.SecretKey)
	}
	// Compatibility path: unknown terminal key, try each configured secret.
	for _, secret := range gateway.KnownSecrets() {
		if VerifyToken(fields, secret) {
			return true
		}
	}
	return false
}

func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return strings.TrimSpace(value)
}

// numericString renders PaymentId uniformly: the provider sends it as a JSON
// number in notifications but a string in some API responses.
func numericString(fields map[string]any, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	value, ok := scalarString(raw)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func intField(fields map[string]any, key string) int64 {
	switch typed := fields[key].(type) {
	case float64:
		return int64(typed)
	case int64:
		return typed
	case int:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
	}
	return 0
}

func boolField(fields map[string]any, key string) bool {
	value, _ := fields[key].(bool)
	return value
}
