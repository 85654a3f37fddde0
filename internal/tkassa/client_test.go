package tkassa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientInit(t *testing.T) {
	gateway := testGateway()

	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Init", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Success":    true,
			"ErrorCode":  "0",
			"Status":     "NEW",
			"PaymentId":  700001,
			"OrderId":    seen["OrderId"],
			"PaymentURL": "https://securepay.example/pay/700001",
		})
	}))
	defer srv.Close()
	gateway.BaseURL = srv.URL

	builder, err := NewBuilder(gateway)
	require.NoError(t, err)
	client := NewClient(gateway, builder)

	payload, err := builder.Init(InitParams{OrderID: "ord-1", Amount: 99900})
	require.NoError(t, err)

	resp, err := client.Init(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "NEW", resp.Status)
	assert.Equal(t, "700001", resp.PaymentID.String())
	assert.Equal(t, "https://securepay.example/pay/700001", resp.PaymentURL)

	// the request body carried a token the provider can verify
	assert.True(t, VerifyToken(seen, "test_secret"))
}

func TestClientGetStateSignsRequest(t *testing.T) {
	gateway := testGateway()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/GetState", r.URL.Path)
		var fields map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))
		if !VerifyToken(fields, "test_secret") {
			_ = json.NewEncoder(w).Encode(map[string]any{"Success": false, "ErrorCode": "9999", "Message": "bad token"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Success":   true,
			"ErrorCode": "0",
			"Status":    "CONFIRMED",
			"PaymentId": fields["PaymentId"],
		})
	}))
	defer srv.Close()
	gateway.BaseURL = srv.URL

	builder, err := NewBuilder(gateway)
	require.NoError(t, err)
	client := NewClient(gateway, builder)

	resp, err := client.GetState(context.Background(), "700001")
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", resp.Status)
}

func TestClientGatewayRejection(t *testing.T) {
	gateway := testGateway()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Success":   false,
			"ErrorCode": "204",
			"Message":   "Повторный запрос с тем же OrderId",
		})
	}))
	defer srv.Close()
	gateway.BaseURL = srv.URL

	builder, err := NewBuilder(gateway)
	require.NoError(t, err)
	client := NewClient(gateway, builder)

	payload, err := builder.Init(InitParams{OrderID: "ord-1", Amount: 99900})
	require.NoError(t, err)

	_, err = client.Init(context.Background(), payload)
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "204", gwErr.Code)
}
