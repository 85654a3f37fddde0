package repository

import (
	"context"
	"time"

	"github.com/planely/kassa/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, user_id, plan_id, status, current_period_start, current_period_end,
			cancel_at_period_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			status = excluded.status,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			updated_at = excluded.updated_at`,
		subscription.ID,
		subscription.UserID,
		subscription.PlanID,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CancelAtPeriodEnd,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, plan_id, status, current_period_start, current_period_end,
			cancel_at_period_end, created_at, updated_at
		 FROM subscriptions
		 WHERE user_id = ?
		 LIMIT 1`,
		userID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) SetCancelAtPeriodEnd(ctx context.Context, db *gorm.DB, userID string, cancel bool, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET cancel_at_period_end = ?, updated_at = ? WHERE user_id = ?`,
		cancel,
		at,
		userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
