// Package domain contains the subscription row activated by confirmed
// payments.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "ACTIVE"
	StatusCanceled SubscriptionStatus = "CANCELED"
	StatusExpired  SubscriptionStatus = "EXPIRED"
)

var ErrSubscriptionNotFound = errors.New("subscription_not_found")

// Subscription is one user's access grant. A user has at most one row;
// repeated confirmed payments re-activate and re-anchor the period.
type Subscription struct {
	ID                 snowflake.ID       `json:"id" gorm:"primaryKey"`
	UserID             string             `json:"user_id" gorm:"type:text;not null;uniqueIndex"`
	PlanID             string             `json:"plan_id" gorm:"type:text;not null"`
	Status             SubscriptionStatus `json:"status" gorm:"type:text;not null"`
	CurrentPeriodStart time.Time          `json:"current_period_start" gorm:"not null"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end" gorm:"not null"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end" gorm:"not null;default:false"`
	CreatedAt          time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, db *gorm.DB, userID string, cancel bool, at time.Time) (bool, error)
}

type Service interface {
	// Activate grants or extends access inside the caller's transaction.
	// The caller guarantees it runs once per confirmed payment; Activate
	// itself re-anchors the period unconditionally.
	Activate(ctx context.Context, tx *gorm.DB, userID, planID string, periodMonths int, at time.Time) (*Subscription, error)

	GetByUserID(ctx context.Context, userID string) (*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) (*Subscription, error)
}
