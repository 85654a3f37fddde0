// Package domain contains the payment record, its status machine, and the
// persistence contract for the reconciliation core.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentStatus is the internal lifecycle status of one payment.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusAuthorized PaymentStatus = "authorized"
	StatusConfirmed  PaymentStatus = "confirmed"
	StatusCanceled   PaymentStatus = "canceled"
	StatusRejected   PaymentStatus = "rejected"
	StatusRefunded   PaymentStatus = "refunded"
	StatusFailed     PaymentStatus = "failed"
)

// transitions is the full state machine. A status missing from a row's set
// is not reachable from it; out-of-order or redelivered notifications that
// ask for an unreachable transition are no-ops on status.
var transitions = map[PaymentStatus]map[PaymentStatus]bool{
	StatusPending: {
		StatusAuthorized: true,
		StatusConfirmed:  true,
		StatusCanceled:   true,
		StatusRejected:   true,
		StatusFailed:     true,
	},
	StatusAuthorized: {
		StatusConfirmed: true,
		StatusCanceled:  true,
		StatusRefunded:  true,
	},
	StatusConfirmed: {
		StatusRefunded: true,
	},
	StatusCanceled: {},
	StatusRejected: {},
	StatusRefunded: {},
	StatusFailed:   {},
}

// CanTransition reports whether from → to is a legal status change.
// Identity transitions are not legal changes; callers treat them as
// already applied.
func CanTransition(from, to PaymentStatus) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// Terminal reports whether a status accepts no further movement.
// confirmed still accepts a refund, so it is not terminal here.
func (s PaymentStatus) Terminal() bool {
	allowed, ok := transitions[s]
	return ok && len(allowed) == 0
}

// providerStatuses maps Т-Касса notification statuses to internal ones.
// Anything unrecognized maps to failed rather than crashing reconciliation.
var providerStatuses = map[string]PaymentStatus{
	"NEW":              StatusPending,
	"FORM_SHOWED":      StatusPending,
	"AUTHORIZING":      StatusPending,
	"3DS_CHECKING":     StatusPending,
	"3DS_CHECKED":      StatusPending,
	"AUTHORIZED":       StatusAuthorized,
	"CONFIRMING":       StatusAuthorized,
	"CONFIRMED":        StatusConfirmed,
	"REVERSING":        StatusAuthorized,
	"REVERSED":         StatusCanceled,
	"CANCELED":         StatusCanceled,
	"REJECTED":         StatusRejected,
	"AUTH_FAIL":        StatusRejected,
	"DEADLINE_EXPIRED": StatusRejected,
	"REFUNDING":        StatusConfirmed,
	"REFUNDED":         StatusRefunded,
	"PARTIAL_REFUNDED": StatusRefunded,
}

// MapProviderStatus translates a provider status string.
func MapProviderStatus(provider string) PaymentStatus {
	if status, ok := providerStatuses[provider]; ok {
		return status
	}
	return StatusFailed
}

// Payment is the lifecycle row for one order. OrderID is assigned exactly
// once before the provider ever sees the order and is never reused;
// ProviderPaymentID is backfilled once from the first provider response
// carrying it and stable afterwards.
type Payment struct {
	ID                 snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrderID            string            `json:"order_id" gorm:"type:text;not null;uniqueIndex"`
	UserID             string            `json:"user_id" gorm:"type:text;not null;index"`
	PlanID             string            `json:"plan_id" gorm:"type:text;not null"`
	Amount             int64             `json:"amount" gorm:"not null"`
	Currency           string            `json:"currency" gorm:"type:text;not null"`
	Status             PaymentStatus     `json:"status" gorm:"type:text;not null"`
	ProviderPaymentID  *string           `json:"provider_payment_id" gorm:"type:text;uniqueIndex"`
	ProviderPaymentURL *string           `json:"provider_payment_url" gorm:"type:text"`
	Meta               datatypes.JSONMap `json:"meta" gorm:"type:jsonb"`
	CreatedAt          time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time         `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// NotificationRecord is the audit row for one webhook delivery. Written for
// every verified delivery, including duplicates and no-op status updates.
type NotificationRecord struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrderID           string         `json:"order_id" gorm:"type:text;not null;index"`
	ProviderPaymentID string         `json:"provider_payment_id" gorm:"type:text;index"`
	ProviderStatus    string         `json:"provider_status" gorm:"type:text;not null"`
	Payload           datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt        time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt       *time.Time     `json:"processed_at"`
}

func (NotificationRecord) TableName() string { return "payment_notifications" }

// ProviderUpdate is one verified status report from the provider, whether it
// arrived as a webhook or as a GetState reply.
type ProviderUpdate struct {
	OrderID           string
	ProviderPaymentID string
	ProviderStatus    string
	Amount            int64
	Fields            map[string]any
	Raw               []byte
}
