package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Payment, error)
	FindByProviderPaymentID(ctx context.Context, db *gorm.DB, providerPaymentID string) (*Payment, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) ([]Payment, error)

	// SetProviderPayment backfills the provider id and payment URL once.
	// A row whose provider id is already set is left untouched.
	SetProviderPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, providerPaymentID, providerPaymentURL string) error

	// UpdateStatusFrom is a conditional status update: it succeeds only when
	// the row still holds the expected current status. The boolean reports
	// whether this caller won the transition.
	UpdateStatusFrom(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to PaymentStatus, at time.Time) (bool, error)

	// MergeMeta unions the given entries into the payment's meta map as one
	// statement. Existing keys are preserved; meta never shrinks.
	MergeMeta(ctx context.Context, db *gorm.DB, id snowflake.ID, entries map[string]any, at time.Time) error

	InsertNotification(ctx context.Context, db *gorm.DB, record *NotificationRecord) error
	MarkNotificationProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
