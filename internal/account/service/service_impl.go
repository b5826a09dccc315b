package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/simcore/internal/account/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("account.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Account, error) {
	if id == 0 {
		return nil, domain.ErrInvalidAccount
	}
	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

func (s *Service) IsTestAccount(ctx context.Context, id snowflake.ID) (bool, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return account.IsTestAccount, nil
}
