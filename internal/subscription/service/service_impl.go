package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/planely/kassa/internal/clock"
	"github.com/planely/kassa/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Activate(ctx context.Context, tx *gorm.DB, userID, planID string, periodMonths int, at time.Time) (*domain.Subscription, error) {
	if periodMonths <= 0 {
		periodMonths = 1
	}
	at = at.UTC()

	existing, err := s.repo.FindByUserID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	subscription := &domain.Subscription{
		ID:                 s.genID.Generate(),
		UserID:             userID,
		PlanID:             planID,
		Status:             domain.StatusActive,
		CurrentPeriodStart: at,
		CurrentPeriodEnd:   at.AddDate(0, periodMonths, 0),
		CancelAtPeriodEnd:  false,
		CreatedAt:          at,
		UpdatedAt:          at,
	}
	if existing != nil {
		subscription.ID = existing.ID
		subscription.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.Upsert(ctx, tx, subscription); err != nil {
		return nil, err
	}

	s.log.Info("subscription activated",
		zap.String("user_id", userID),
		zap.String("plan_id", planID),
		zap.Time("period_end", subscription.CurrentPeriodEnd),
	)
	return subscription, nil
}

func (s *Service) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	subscription, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (s *Service) SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) (*domain.Subscription, error) {
	updated, err := s.repo.SetCancelAtPeriodEnd(ctx, s.db, userID, cancel, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrSubscriptionNotFound
	}
	return s.GetByUserID(ctx, userID)
}
