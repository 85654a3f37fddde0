package tkassa

import (
	"encoding/json"
	"testing"

	"github.com/planely/kassa/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestTokenFixedVector(t *testing.T) {
	// sorted keys: Amount, OrderId, Password, TerminalKey
	// concatenated values: "100" + "o1" + "s" + "T1"
	fields := map[string]any{
		"TerminalKey": "T1",
		"Amount":      100,
		"OrderId":     "o1",
	}
	assert.Equal(t,
		"16dc5bd33e59a7f29afb858f7c11dd4d493f079a93a645f0922e880be9a85058",
		Token(fields, "s"),
	)
}

func TestTokenIsDeterministic(t *testing.T) {
	fields := map[string]any{
		"TerminalKey": "TestTerminal",
		"Amount":      99900,
		"OrderId":     "ord-1",
	}
	first := Token(fields, "secretkey")
	second := Token(fields, "secretkey")
	assert.Equal(t, first, second)
	assert.Equal(t, "9f061747237b5b6df6338428558c4b700303a34b54e90f10188461660529326c", first)
}

func TestTokenIgnoresStructuralFields(t *testing.T) {
	base := map[string]any{
		"TerminalKey": "T1",
		"Amount":      100,
		"OrderId":     "o1",
	}
	withExtras := map[string]any{
		"TerminalKey": "T1",
		"Amount":      100,
		"OrderId":     "o1",
		"Token":       "bogus",
		"Receipt":     map[string]any{"Email": "a@b.c"},
		"DATA":        map[string]any{"connection_type": "Widget"},
	}
	assert.Equal(t, Token(base, "s"), Token(withExtras, "s"))
}

func TestTokenSkipsNilAndNested(t *testing.T) {
	base := map[string]any{"TerminalKey": "T1", "Amount": 100, "OrderId": "o1"}
	extended := map[string]any{
		"TerminalKey": "T1",
		"Amount":      100,
		"OrderId":     "o1",
		"Description": nil,
		"Items":       []any{"a", "b"},
		"Extra":       map[string]any{"k": "v"},
	}
	assert.Equal(t, Token(base, "s"), Token(extended, "s"))
}

func TestTokenNumericCoercionMatchesJSONDecoding(t *testing.T) {
	// A payload signed with int values must verify after a JSON round trip,
	// which turns every number into float64.
	signed := map[string]any{
		"TerminalKey": "T1",
		"Amount":      int64(99900),
		"OrderId":     "o1",
		"Success":     true,
	}
	signed["Token"] = Token(signed, "s")

	raw, err := json.Marshal(signed)
	assert.NoError(t, err)

	var decoded map[string]any
	assert.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, VerifyToken(decoded, "s"))
}

func TestVerifyTokenRejectsMutation(t *testing.T) {
	fields := map[string]any{
		"TerminalKey": "T1",
		"Amount":      100,
		"OrderId":     "o1",
	}
	fields["Token"] = Token(fields, "s")
	assert.True(t, VerifyToken(fields, "s"))

	fields["Amount"] = 101
	assert.False(t, VerifyToken(fields, "s"))
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	fields := map[string]any{
		"TerminalKey": "T1",
		"Amount":      100,
		"OrderId":     "o1",
	}
	fields["Token"] = Token(fields, "right")
	assert.False(t, VerifyToken(fields, "wrong"))
}

func TestVerifyTokenCaseInsensitiveHex(t *testing.T) {
	fields := map[string]any{"TerminalKey": "T1", "Amount": 100, "OrderId": "o1"}
	token := Token(fields, "s")
	upper := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		upper[k] = v
	}
	upper["Token"] = toUpperHex(token)
	assert.True(t, VerifyToken(upper, "s"))
}

func toUpperHex(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - ('a' - 'A')
		}
	}
	return string(out)
}

func testGateway() config.GatewayConfig {
	return config.GatewayConfig{
		Mode:            config.ModeTest,
		TestTerminalKey: "TestTerminal",
		TestSecretKey:   "test_secret",
		LiveTerminalKey: "LiveTerminal",
		LiveSecretKey:   "live_secret",
	}
}

func signedNotification(t *testing.T, terminalKey, secret, status string) []byte {
	t.Helper()
	fields := map[string]any{
		"TerminalKey": terminalKey,
		"OrderId":     "ord-1",
		"Status":      status,
		"PaymentId":   700001,
		"Amount":      99900,
		"Success":     true,
	}
	fields["Token"] = Token(fields, secret)
	raw, err := json.Marshal(fields)
	assert.NoError(t, err)
	return raw
}

func TestParseNotificationSelectsSecretByTerminal(t *testing.T) {
	gateway := testGateway()

	raw := signedNotification(t, "LiveTerminal", "live_secret", "CONFIRMED")
	n, err := ParseNotification(raw, gateway)
	assert.NoError(t, err)
	assert.Equal(t, "CONFIRMED", n.Status)
	assert.Equal(t, "700001", n.PaymentID)
	assert.Equal(t, int64(99900), n.Amount)

	// signed with the test secret but claiming the live terminal: the
	// terminal key is authoritative, so this must fail
	raw = signedNotification(t, "LiveTerminal", "test_secret", "CONFIRMED")
	_, err = ParseNotification(raw, gateway)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseNotificationFallsBackToKnownSecrets(t *testing.T) {
	gateway := testGateway()

	// unknown terminal key, valid test-secret signature: compatibility path
	raw := signedNotification(t, "RenamedTerminal", "test_secret", "AUTHORIZED")
	n, err := ParseNotification(raw, gateway)
	assert.NoError(t, err)
	assert.Equal(t, "AUTHORIZED", n.Status)

	raw = signedNotification(t, "RenamedTerminal", "somebody_elses_secret", "AUTHORIZED")
	_, err = ParseNotification(raw, gateway)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseNotificationMalformed(t *testing.T) {
	gateway := testGateway()

	_, err := ParseNotification([]byte("{not json"), gateway)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParseNotification([]byte("{}"), gateway)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestBuilderInit(t *testing.T) {
	gateway := testGateway()
	gateway.NotificationURL = "https://kassa.planely.app/webhooks/tkassa"
	gateway.SuccessURL = "https://planely.app/pay/success"
	gateway.FailURL = "https://planely.app/pay/fail"

	builder, err := NewBuilder(gateway)
	assert.NoError(t, err)

	payload, err := builder.Init(InitParams{
		OrderID:     "ord-1",
		Amount:      99900,
		Description: "Planely Monthly",
		CustomerKey: "user-42",
		Email:       "user@planely.app",
		ReceiptItems: []ReceiptItem{
			{Name: "Planely Monthly", Price: 99900, Quantity: 1, Amount: 99900, Tax: "none"},
		},
	})
	assert.NoError(t, err)

	assert.Equal(t, "TestTerminal", payload["TerminalKey"])
	assert.Equal(t, int64(99900), payload["Amount"])
	assert.Equal(t, "ord-1", payload["OrderId"])
	assert.NotEmpty(t, payload["Receipt"])

	// the attached token verifies with the active secret, and the Receipt
	// object did not participate in the digest
	assert.True(t, VerifyToken(payload, "test_secret"))
}

func TestBuilderInitValidation(t *testing.T) {
	builder, err := NewBuilder(testGateway())
	assert.NoError(t, err)

	_, err = builder.Init(InitParams{OrderID: "ord-1", Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = builder.Init(InitParams{OrderID: "ord-1", Amount: -500})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = builder.Init(InitParams{OrderID: "  ", Amount: 100})
	assert.ErrorIs(t, err, ErrMissingOrderID)
}

func TestBuilderRequiresCredentials(t *testing.T) {
	gateway := config.GatewayConfig{Mode: config.ModeLive}
	_, err := NewBuilder(gateway)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}
