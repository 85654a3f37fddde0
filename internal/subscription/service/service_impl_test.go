package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/planely/kassa/internal/clock"
	"github.com/planely/kassa/internal/subscription/domain"
	subscriptionrepo "github.com/planely/kassa/internal/subscription/repository"
	subscriptionservice "github.com/planely/kassa/internal/subscription/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:submemdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Subscription{}))

	node, err := snowflake.NewNode(8)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	svc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  subscriptionrepo.Provide(),
	})
	return svc, db, clk
}

func TestActivateCreatesSubscription(t *testing.T) {
	svc, db, clk := setup(t)
	at := clk.Now()

	subscription, err := svc.Activate(context.Background(), db, "user-1", "monthly", 1, at)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, subscription.Status)
	require.Equal(t, at, subscription.CurrentPeriodStart)
	require.Equal(t, at.AddDate(0, 1, 0), subscription.CurrentPeriodEnd)
	require.False(t, subscription.CancelAtPeriodEnd)

	fetched, err := svc.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, subscription.ID, fetched.ID)
}

func TestActivateReplacesExistingPeriod(t *testing.T) {
	svc, db, clk := setup(t)

	first, err := svc.Activate(context.Background(), db, "user-1", "monthly", 1, clk.Now())
	require.NoError(t, err)

	clk.Advance(20 * 24 * time.Hour)
	second, err := svc.Activate(context.Background(), db, "user-1", "yearly", 12, clk.Now())
	require.NoError(t, err)

	// renewal keeps the row identity but replaces plan and period
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "yearly", second.PlanID)
	require.Equal(t, clk.Now().AddDate(0, 12, 0), second.CurrentPeriodEnd)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM subscriptions`).Scan(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestActivateClearsCancelFlag(t *testing.T) {
	svc, db, clk := setup(t)

	_, err := svc.Activate(context.Background(), db, "user-1", "monthly", 1, clk.Now())
	require.NoError(t, err)

	flagged, err := svc.SetCancelAtPeriodEnd(context.Background(), "user-1", true)
	require.NoError(t, err)
	require.True(t, flagged.CancelAtPeriodEnd)

	renewed, err := svc.Activate(context.Background(), db, "user-1", "monthly", 1, clk.Now())
	require.NoError(t, err)
	require.False(t, renewed.CancelAtPeriodEnd)
}

func TestActivateDefaultsPeriodToOneMonth(t *testing.T) {
	svc, db, clk := setup(t)

	subscription, err := svc.Activate(context.Background(), db, "user-1", "monthly", 0, clk.Now())
	require.NoError(t, err)
	require.Equal(t, clk.Now().AddDate(0, 1, 0), subscription.CurrentPeriodEnd)
}

func TestGetByUserIDNotFound(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.GetByUserID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestSetCancelAtPeriodEndNotFound(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.SetCancelAtPeriodEnd(context.Background(), "missing", true)
	require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}
