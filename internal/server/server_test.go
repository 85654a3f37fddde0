package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/planely/kassa/internal/clock"
	"github.com/planely/kassa/internal/config"
	"github.com/planely/kassa/internal/observability"
	paymentdomain "github.com/planely/kassa/internal/payment/domain"
	paymentrepo "github.com/planely/kassa/internal/payment/repository"
	paymentservice "github.com/planely/kassa/internal/payment/service"
	"github.com/planely/kassa/internal/server"
	subscriptiondomain "github.com/planely/kassa/internal/subscription/domain"
	subscriptionrepo "github.com/planely/kassa/internal/subscription/repository"
	subscriptionservice "github.com/planely/kassa/internal/subscription/service"
	"github.com/planely/kassa/internal/tkassa"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	testTerminalKey = "TestTerminal"
	testSecretKey   = "test_secret"
)

type serverEnv struct {
	engine *gin.Engine
	db     *gorm.DB
	node   *snowflake.Node
	clk    *clock.FakeClock
	repo   paymentdomain.Repository
	subSvc subscriptiondomain.Service
}

func setupServer(t *testing.T) *serverEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:srvmemdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&paymentdomain.Payment{},
		&paymentdomain.NotificationRecord{},
		&subscriptiondomain.Subscription{},
	))

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))

	gatewayCfg := config.GatewayConfig{
		BaseURL:         "http://gateway.invalid",
		Mode:            config.ModeTest,
		TestTerminalKey: testTerminalKey,
		TestSecretKey:   testSecretKey,
	}
	cfg := config.Config{
		AppName:  "kassa",
		HTTPAddr: ":0",
		Gateway:  gatewayCfg,
	}

	catalog, err := config.NewStaticPlanCatalog(
		config.Plan{ID: "monthly", Name: "Planely Monthly", Amount: 99900, Currency: "RUB", PeriodMonths: 1},
	)
	require.NoError(t, err)

	builder, err := tkassa.NewBuilder(gatewayCfg)
	require.NoError(t, err)
	client := tkassa.NewClient(gatewayCfg, builder)

	repo := paymentrepo.Provide()
	subSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  subscriptionrepo.Provide(),
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           clk,
		Repo:            repo,
		Catalog:         catalog,
		Builder:         builder,
		Gateway:         client,
		SubscriptionSvc: subSvc,
	})

	engine := server.NewEngine(observability.Config{ServiceName: "kassa", Environment: "test"})
	server.NewServer(server.ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		PaymentSvc:      paymentSvc,
		SubscriptionSvc: subSvc,
	})

	return &serverEnv{
		engine: engine,
		db:     db,
		node:   node,
		clk:    clk,
		repo:   repo,
		subSvc: subSvc,
	}
}

func (env *serverEnv) seedPayment(t *testing.T, orderID string, status paymentdomain.PaymentStatus, providerPaymentID string) {
	t.Helper()
	now := env.clk.Now()
	payment := &paymentdomain.Payment{
		ID:        env.node.Generate(),
		OrderID:   orderID,
		UserID:    "user-1",
		PlanID:    "monthly",
		Amount:    99900,
		Currency:  "RUB",
		Status:    status,
		Meta:      datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if providerPaymentID != "" {
		payment.ProviderPaymentID = &providerPaymentID
	}
	require.NoError(t, env.repo.Insert(context.Background(), env.db, payment))
}

func signedNotification(t *testing.T, orderID, status string) []byte {
	t.Helper()
	fields := map[string]any{
		"TerminalKey": testTerminalKey,
		"OrderId":     orderID,
		"PaymentId":   700001,
		"Status":      status,
		"Amount":      99900,
		"Success":     true,
	}
	fields["Token"] = tkassa.Token(fields, testSecretKey)
	body, err := json.Marshal(fields)
	require.NoError(t, err)
	return body
}

func (env *serverEnv) post(path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

func (env *serverEnv) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

func TestWebhookConfirmsPaymentAndAnswersOK(t *testing.T) {
	env := setupServer(t)
	env.seedPayment(t, "ord-1", paymentdomain.StatusAuthorized, "700001")

	rec := env.post("/webhooks/tkassa", signedNotification(t, "ord-1", "CONFIRMED"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())

	var status string
	require.NoError(t, env.db.Raw(`SELECT status FROM payments WHERE order_id = ?`, "ord-1").Scan(&status).Error)
	require.Equal(t, string(paymentdomain.StatusConfirmed), status)

	subscription, err := env.subSvc.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.StatusActive, subscription.Status)
}

func TestWebhookRedeliveryStaysOK(t *testing.T) {
	env := setupServer(t)
	env.seedPayment(t, "ord-1", paymentdomain.StatusAuthorized, "700001")

	body := signedNotification(t, "ord-1", "CONFIRMED")
	require.Equal(t, http.StatusOK, env.post("/webhooks/tkassa", body).Code)

	rec := env.post("/webhooks/tkassa", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())

	var count int64
	require.NoError(t, env.db.Raw(`SELECT COUNT(*) FROM subscriptions`).Scan(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := setupServer(t)
	env.seedPayment(t, "ord-1", paymentdomain.StatusAuthorized, "700001")

	fields := map[string]any{
		"TerminalKey": testTerminalKey,
		"OrderId":     "ord-1",
		"PaymentId":   700001,
		"Status":      "CONFIRMED",
		"Amount":      99900,
		"Token":       "deadbeef",
	}
	body, err := json.Marshal(fields)
	require.NoError(t, err)

	rec := env.post("/webhooks/tkassa", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// the payment must be untouched
	var status string
	require.NoError(t, env.db.Raw(`SELECT status FROM payments WHERE order_id = ?`, "ord-1").Scan(&status).Error)
	require.Equal(t, string(paymentdomain.StatusAuthorized), status)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	env := setupServer(t)

	rec := env.post("/webhooks/tkassa", []byte("{not json"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookUnknownOrderIsRetryable(t *testing.T) {
	env := setupServer(t)

	rec := env.post("/webhooks/tkassa", signedNotification(t, "missing", "CONFIRMED"))
	require.Equal(t, http.StatusNotFound, rec.Code, "non-200 so the provider keeps retrying")
}

func TestCreatePaymentRequestValidation(t *testing.T) {
	env := setupServer(t)

	rec := env.post("/api/payments", []byte(`{"plan_id":"monthly"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "validation_error", resp.Error.Type)
}

func TestListPaymentsByUser(t *testing.T) {
	env := setupServer(t)
	env.seedPayment(t, "ord-1", paymentdomain.StatusPending, "")
	env.seedPayment(t, "ord-2", paymentdomain.StatusConfirmed, "700001")

	rec := env.get("/api/payments?user_id=user-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Payments []paymentdomain.Payment `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Payments, 2)

	rec = env.get("/api/payments?user_id=nobody")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Payments)

	require.Equal(t, http.StatusBadRequest, env.get("/api/payments").Code)
}

func TestGetPaymentNotFound(t *testing.T) {
	env := setupServer(t)

	rec := env.get("/api/payments/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSubscription(t *testing.T) {
	env := setupServer(t)
	env.seedPayment(t, "ord-1", paymentdomain.StatusAuthorized, "700001")
	require.Equal(t, http.StatusOK, env.post("/webhooks/tkassa", signedNotification(t, "ord-1", "CONFIRMED")).Code)

	rec := env.get("/api/subscriptions/user-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var subscription subscriptiondomain.Subscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subscription))
	require.Equal(t, subscriptiondomain.StatusActive, subscription.Status)

	require.Equal(t, http.StatusNotFound, env.get("/api/subscriptions/nobody").Code)
}

func TestCancelSubscriptionAtPeriodEnd(t *testing.T) {
	env := setupServer(t)
	env.seedPayment(t, "ord-1", paymentdomain.StatusAuthorized, "700001")
	require.Equal(t, http.StatusOK, env.post("/webhooks/tkassa", signedNotification(t, "ord-1", "CONFIRMED")).Code)

	rec := env.post("/api/subscriptions/user-1/cancel", []byte(`{}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var subscription subscriptiondomain.Subscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subscription))
	require.True(t, subscription.CancelAtPeriodEnd)
}

func TestHealthEndpoint(t *testing.T) {
	env := setupServer(t)
	require.Equal(t, http.StatusOK, env.get("/health").Code)
}
