package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/simcore/internal/cache"
	"github.com/smallbiznis/simcore/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository

	Cache cache.PlanCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.PlanCache
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	if id == 0 {
		return nil, domain.ErrInvalidPlan
	}
	if s.cache != nil {
		if plan, ok := s.cache.GetPlan(id); ok {
			return &plan, nil
		}
	}
	plan, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	s.remember(plan)
	return plan, nil
}

func (s *Service) GetBySKU(ctx context.Context, sku string) (*domain.Plan, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, domain.ErrInvalidPlan
	}
	if s.cache != nil {
		if plan, ok := s.cache.GetPlanBySKU(sku); ok {
			return &plan, nil
		}
	}
	plan, err := s.repo.FindBySKU(ctx, s.db, sku)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	s.remember(plan)
	return plan, nil
}

func (s *Service) remember(plan *domain.Plan) {
	if s.cache != nil {
		s.cache.SetPlan(*plan)
	}
}
