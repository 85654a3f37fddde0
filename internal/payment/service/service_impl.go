package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/planely/kassa/internal/clock"
	"github.com/planely/kassa/internal/config"
	"github.com/planely/kassa/internal/locker"
	obsmetrics "github.com/planely/kassa/internal/observability/metrics"
	"github.com/planely/kassa/internal/payment/domain"
	subscriptiondomain "github.com/planely/kassa/internal/subscription/domain"
	"github.com/planely/kassa/internal/tkassa"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const updateLockTTL = 15 * time.Second

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            domain.Repository
	Catalog         *config.PlanCatalog
	Builder         *tkassa.Builder
	Gateway         *tkassa.Client
	SubscriptionSvc subscriptiondomain.Service
	Locker          *locker.Locker      `optional:"true"`
	Metrics         *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            domain.Repository
	catalog         *config.PlanCatalog
	builder         *tkassa.Builder
	gateway         *tkassa.Client
	subscriptionSvc subscriptiondomain.Service
	locker          *locker.Locker
	metrics         *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		catalog:         p.Catalog,
		builder:         p.Builder,
		gateway:         p.Gateway,
		subscriptionSvc: p.SubscriptionSvc,
		locker:          p.Locker,
		metrics:         p.Metrics,
	}
}

func (s *Service) CreatePayment(ctx context.Context, input domain.CreatePaymentInput) (*domain.CreatePaymentResult, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.PlanID = strings.TrimSpace(input.PlanID)
	if input.UserID == "" || input.PlanID == "" {
		return nil, domain.ErrInvalidInput
	}

	plan, ok := s.catalog.Find(input.PlanID)
	if !ok {
		return nil, domain.ErrUnknownPlan
	}

	now := s.clock.Now()
	payment := &domain.Payment{
		ID:        s.genID.Generate(),
		OrderID:   uuid.NewString(),
		UserID:    input.UserID,
		PlanID:    plan.ID,
		Amount:    plan.Amount,
		Currency:  plan.Currency,
		Status:    domain.StatusPending,
		Meta:      datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, payment); err != nil {
		return nil, err
	}

	payload, err := s.builder.Init(tkassa.InitParams{
		OrderID:     payment.OrderID,
		Amount:      payment.Amount,
		Description: plan.Name,
		CustomerKey: payment.UserID,
		Email:       input.Email,
		Language:    "ru",
		ReceiptItems: []tkassa.ReceiptItem{
			{
				Name:     plan.Name,
				Price:    plan.Amount,
				Quantity: 1,
				Amount:   plan.Amount,
				Tax:      "none",
			},
		},
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.Init(ctx, payload)
	if err != nil {
		s.failInitiation(ctx, payment, err)
		return nil, err
	}

	providerPaymentID := resp.PaymentID.String()
	if err := s.repo.SetProviderPayment(ctx, s.db, payment.ID, providerPaymentID, resp.PaymentURL); err != nil {
		return nil, err
	}
	if err := s.repo.MergeMeta(ctx, s.db, payment.ID, map[string]any{
		"init_response": map[string]any{
			"payment_id": providerPaymentID,
			"status":     resp.Status,
			"error_code": resp.ErrorCode,
		},
	}, s.clock.Now()); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordPaymentInitiated(plan.ID)
	}
	s.log.Info("payment initiated",
		zap.String("order_id", payment.OrderID),
		zap.String("provider_payment_id", providerPaymentID),
		zap.Int64("amount", payment.Amount),
	)

	refreshed, err := s.repo.FindByOrderID(ctx, s.db, payment.OrderID)
	if err != nil {
		return nil, err
	}
	return &domain.CreatePaymentResult{Payment: refreshed, PaymentURL: resp.PaymentURL}, nil
}

// failInitiation moves a freshly created record to failed when the provider
// rejects Init. Best effort: the original error is what the caller sees.
func (s *Service) failInitiation(ctx context.Context, payment *domain.Payment, cause error) {
	now := s.clock.Now()
	if _, err := s.repo.UpdateStatusFrom(ctx, s.db, payment.ID, domain.StatusPending, domain.StatusFailed, now); err != nil {
		s.log.Warn("failed to mark payment failed", zap.String("order_id", payment.OrderID), zap.Error(err))
		return
	}
	_ = s.repo.MergeMeta(ctx, s.db, payment.ID, map[string]any{
		"init_error": cause.Error(),
	}, now)
}

func (s *Service) ProcessUpdate(ctx context.Context, update *domain.ProviderUpdate) error {
	if update == nil {
		return domain.ErrInvalidUpdate
	}
	update.ProviderStatus = strings.ToUpper(strings.TrimSpace(update.ProviderStatus))
	update.OrderID = strings.TrimSpace(update.OrderID)
	update.ProviderPaymentID = strings.TrimSpace(update.ProviderPaymentID)
	if update.ProviderStatus == "" {
		return domain.ErrInvalidUpdate
	}
	if update.OrderID == "" && update.ProviderPaymentID == "" {
		return domain.ErrInvalidUpdate
	}

	lockKey := "kassa:payment:" + update.OrderID
	if update.OrderID == "" {
		// resolve the order id so pid-keyed and order-keyed deliveries for
		// the same payment contend on one key
		lockKey = "kassa:payment:pid:" + update.ProviderPaymentID
		if payment, err := s.repo.FindByProviderPaymentID(ctx, s.db, update.ProviderPaymentID); err == nil && payment != nil {
			lockKey = "kassa:payment:" + payment.OrderID
		}
	}
	token, acquired, err := s.locker.TryLock(ctx, lockKey, updateLockTTL)
	if err != nil {
		s.log.Warn("payment lock unavailable", zap.String("key", lockKey), zap.Error(err))
	} else if !acquired {
		// another delivery for this order is mid-flight; let the provider retry
		return domain.ErrConcurrentUpdate
	}
	defer func() {
		_ = s.locker.Release(context.WithoutCancel(ctx), lockKey, token)
	}()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.reconcile(ctx, tx, update)
	})
}

func (s *Service) reconcile(ctx context.Context, tx *gorm.DB, update *domain.ProviderUpdate) error {
	payment, err := s.lookup(ctx, tx, update)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	record := &domain.NotificationRecord{
		ID:                s.genID.Generate(),
		OrderID:           payment.OrderID,
		ProviderPaymentID: update.ProviderPaymentID,
		ProviderStatus:    update.ProviderStatus,
		Payload:           notificationPayload(update),
		ReceivedAt:        now,
	}
	if err := s.repo.InsertNotification(ctx, tx, record); err != nil {
		return err
	}

	// audit trail first: the raw payload lands in meta even when the status
	// change is a no-op
	metaKey := fmt.Sprintf("notification:%s", record.ID.String())
	if err := s.repo.MergeMeta(ctx, tx, payment.ID, map[string]any{metaKey: metaValue(update)}, now); err != nil {
		return err
	}

	mapped := domain.MapProviderStatus(update.ProviderStatus)
	switch {
	case mapped == payment.Status:
		// redelivery of a state we already hold
	case domain.CanTransition(payment.Status, mapped):
		won, err := s.repo.UpdateStatusFrom(ctx, tx, payment.ID, payment.Status, mapped, now)
		if err != nil {
			return err
		}
		if !won {
			// a concurrent delivery advanced the record first
			s.log.Info("payment status already advanced",
				zap.String("order_id", payment.OrderID),
				zap.String("provider_status", update.ProviderStatus),
			)
			break
		}
		if s.metrics != nil {
			s.metrics.RecordStatusTransition(string(mapped))
		}
		if mapped == domain.StatusConfirmed {
			if err := s.activate(ctx, tx, payment); err != nil {
				return err
			}
		}
	default:
		// terminal protection or out-of-order delivery: status stays put
		s.log.Info("ignoring unreachable status transition",
			zap.String("order_id", payment.OrderID),
			zap.String("current", string(payment.Status)),
			zap.String("incoming", string(mapped)),
			zap.String("provider_status", update.ProviderStatus),
		)
	}

	return s.repo.MarkNotificationProcessed(ctx, tx, record.ID, s.clock.Now())
}

// lookup resolves the payment by provider id first, then by order id,
// backfilling the provider id on first sight.
func (s *Service) lookup(ctx context.Context, tx *gorm.DB, update *domain.ProviderUpdate) (*domain.Payment, error) {
	if update.ProviderPaymentID != "" {
		payment, err := s.repo.FindByProviderPaymentID(ctx, tx, update.ProviderPaymentID)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}

	if update.OrderID == "" {
		return nil, domain.ErrPaymentNotFound
	}
	payment, err := s.repo.FindByOrderID(ctx, tx, update.OrderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}

	if update.ProviderPaymentID != "" && payment.ProviderPaymentID == nil {
		if err := s.repo.SetProviderPayment(ctx, tx, payment.ID, update.ProviderPaymentID, ""); err != nil {
			return nil, err
		}
		id := update.ProviderPaymentID
		payment.ProviderPaymentID = &id
	}
	return payment, nil
}

func (s *Service) activate(ctx context.Context, tx *gorm.DB, payment *domain.Payment) error {
	periodMonths := 1
	if plan, ok := s.catalog.Find(payment.PlanID); ok {
		periodMonths = plan.PeriodMonths
	}
	_, err := s.subscriptionSvc.Activate(ctx, tx, payment.UserID, payment.PlanID, periodMonths, s.clock.Now())
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordSubscriptionActivated(payment.PlanID)
	}
	return nil
}

func (s *Service) SyncState(ctx context.Context, orderID string) (*domain.Payment, error) {
	return s.controlRequest(ctx, orderID, s.gateway.GetState)
}

func (s *Service) Cancel(ctx context.Context, orderID string) (*domain.Payment, error) {
	return s.controlRequest(ctx, orderID, s.gateway.Cancel)
}

func (s *Service) controlRequest(
	ctx context.Context,
	orderID string,
	call func(context.Context, string) (*tkassa.Response, error),
) (*domain.Payment, error) {

	payment, err := s.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment.ProviderPaymentID == nil {
		return nil, domain.ErrNoProviderID
	}

	resp, err := call(ctx, *payment.ProviderPaymentID)
	if err != nil {
		var gwErr *tkassa.GatewayError
		if !errors.As(err, &gwErr) {
			return nil, err
		}
		// the provider answered; its rejection is part of the audit trail
		_ = s.repo.MergeMeta(ctx, s.db, payment.ID, map[string]any{
			fmt.Sprintf("gateway_error:%d", s.clock.Now().UnixNano()): gwErr.Error(),
		}, s.clock.Now())
		return nil, err
	}

	if strings.TrimSpace(resp.Status) != "" {
		update := &domain.ProviderUpdate{
			OrderID:           payment.OrderID,
			ProviderPaymentID: *payment.ProviderPaymentID,
			ProviderStatus:    resp.Status,
			Fields: map[string]any{
				"TerminalKey": resp.TerminalKey,
				"Status":      resp.Status,
				"PaymentId":   resp.PaymentID.String(),
				"OrderId":     payment.OrderID,
			},
		}
		if err := s.ProcessUpdate(ctx, update); err != nil {
			return nil, err
		}
	}

	return s.GetByOrderID(ctx, orderID)
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	payment, err := s.repo.FindByOrderID(ctx, s.db, strings.TrimSpace(orderID))
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) ListByUserID(ctx context.Context, userID string) ([]domain.Payment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.repo.FindByUserID(ctx, s.db, userID)
}

func notificationPayload(update *domain.ProviderUpdate) datatypes.JSON {
	if len(update.Raw) > 0 {
		return datatypes.JSON(update.Raw)
	}
	return datatypes.JSON([]byte(fmt.Sprintf(`{"Status":%q}`, update.ProviderStatus)))
}

func metaValue(update *domain.ProviderUpdate) any {
	if len(update.Fields) > 0 {
		return update.Fields
	}
	return map[string]any{"Status": update.ProviderStatus}
}
