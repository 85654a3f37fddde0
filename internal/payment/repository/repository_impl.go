package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/planely/kassa/internal/payment/domain"
	pkgdb "github.com/planely/kassa/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, order_id, user_id, plan_id, amount, currency, status,
			provider_payment_id, provider_payment_url, meta, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_id) DO NOTHING`,
		payment.ID,
		payment.OrderID,
		payment.UserID,
		payment.PlanID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.ProviderPaymentID,
		payment.ProviderPaymentURL,
		payment.Meta,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if res.Error != nil {
		// ON CONFLICT only covers order_id; a preset provider id colliding
		// with another payment's unique index surfaces here
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return domain.ErrOrderExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrderExists
	}
	return nil
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*domain.Payment, error) {
	return r.findOne(ctx, db, `order_id = ?`, orderID)
}

func (r *repo) FindByProviderPaymentID(ctx context.Context, db *gorm.DB, providerPaymentID string) (*domain.Payment, error) {
	return r.findOne(ctx, db, `provider_payment_id = ?`, providerPaymentID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, cond string, arg any) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, user_id, plan_id, amount, currency, status,
			provider_payment_id, provider_payment_url, meta, created_at, updated_at
		 FROM payments
		 WHERE `+cond+`
		 LIMIT 1`,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, user_id, plan_id, amount, currency, status,
			provider_payment_id, provider_payment_url, meta, created_at, updated_at
		 FROM payments
		 WHERE user_id = ?
		 ORDER BY created_at DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SetProviderPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, providerPaymentID, providerPaymentURL string) error {
	// an empty provider id stays NULL so the unique index never collects
	// two payments holding ""
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET provider_payment_id = COALESCE(?, provider_payment_id),
		     provider_payment_url = COALESCE(?, provider_payment_url),
		     updated_at = ?
		 WHERE id = ? AND provider_payment_id IS NULL`,
		nullable(providerPaymentID),
		nullable(providerPaymentURL),
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) UpdateStatusFrom(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.PaymentStatus, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		at,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MergeMeta unions the entries into meta with a single UPDATE so concurrent
// deliveries cannot read the same snapshot and overwrite each other's keys.
// The stored value wins on collision, so meta never shrinks and never mutates.
func (r *repo) MergeMeta(ctx context.Context, db *gorm.DB, id snowflake.ID, entries map[string]any, at time.Time) error {
	if len(entries) == 0 {
		return nil
	}
	patch, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	var res *gorm.DB
	switch db.Dialector.Name() {
	case "postgres":
		res = db.WithContext(ctx).Exec(
			`UPDATE payments
			 SET meta = ?::jsonb || COALESCE(meta, '{}'::jsonb), updated_at = ?
			 WHERE id = ?`,
			string(patch), at, id,
		)
	case "mysql":
		res = db.WithContext(ctx).Exec(
			`UPDATE payments
			 SET meta = JSON_MERGE_PATCH(CAST(? AS JSON), COALESCE(meta, JSON_OBJECT())), updated_at = ?
			 WHERE id = ?`,
			string(patch), at, id,
		)
	default:
		res = db.WithContext(ctx).Exec(
			`UPDATE payments
			 SET meta = json_patch(?, COALESCE(meta, '{}')), updated_at = ?
			 WHERE id = ?`,
			string(patch), at, id,
		)
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *repo) InsertNotification(ctx context.Context, db *gorm.DB, record *domain.NotificationRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_notifications (
			id, order_id, provider_payment_id, provider_status, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.OrderID,
		record.ProviderPaymentID,
		record.ProviderStatus,
		record.Payload,
		record.ReceivedAt,
		record.ProcessedAt,
	).Error
}

func (r *repo) MarkNotificationProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_notifications SET processed_at = ? WHERE id = ?`,
		processedAt,
		id,
	).Error
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
