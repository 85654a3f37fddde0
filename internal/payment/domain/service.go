package domain

import (
	"context"
	"errors"
)

var (
	ErrPaymentNotFound  = errors.New("payment_not_found")
	ErrOrderExists      = errors.New("order_exists")
	ErrUnknownPlan      = errors.New("unknown_plan")
	ErrInvalidInput     = errors.New("invalid_input")
	ErrInvalidUpdate    = errors.New("invalid_update")
	ErrNoProviderID     = errors.New("no_provider_payment_id")
	ErrStoreUnavailable = errors.New("store_unavailable")

	// ErrConcurrentUpdate reports that another delivery for the same order is
	// being reconciled right now; the caller should have the provider retry.
	ErrConcurrentUpdate = errors.New("concurrent_update")
)

// CreatePaymentInput starts one payment for a user and plan.
type CreatePaymentInput struct {
	UserID string
	PlanID string
	Email  string
}

// CreatePaymentResult carries what the UI needs to send the user to the
// provider's payment form.
type CreatePaymentResult struct {
	Payment    *Payment
	PaymentURL string
}

type Service interface {
	// CreatePayment assigns a fresh order id, persists the pending record,
	// initiates the payment with the provider, and backfills the provider's
	// payment id and form URL.
	CreatePayment(ctx context.Context, input CreatePaymentInput) (*CreatePaymentResult, error)

	// ProcessUpdate reconciles one verified provider status report. It is
	// idempotent under redelivery and safe under concurrent delivery for
	// the same order.
	ProcessUpdate(ctx context.Context, update *ProviderUpdate) error

	// SyncState queries the provider for the payment's current status and
	// reconciles it through the same path webhooks take.
	SyncState(ctx context.Context, orderID string) (*Payment, error)

	// Cancel asks the provider to void or refund the payment, then
	// reconciles the resulting status.
	Cancel(ctx context.Context, orderID string) (*Payment, error)

	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)

	// ListByUserID returns the user's payments, newest first.
	ListByUserID(ctx context.Context, userID string) ([]Payment, error)
}
