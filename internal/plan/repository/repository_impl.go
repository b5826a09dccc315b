package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/simcore/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	return r.findOne(ctx, db,
		`SELECT id, sku, name, data_gb, validity_days, price_amount, currency, created_at
		 FROM plans WHERE id = ?`,
		id,
	)
}

func (r *repo) FindBySKU(ctx context.Context, db *gorm.DB, sku string) (*domain.Plan, error) {
	return r.findOne(ctx, db,
		`SELECT id, sku, name, data_gb, validity_days, price_amount, currency, created_at
		 FROM plans WHERE sku = ?`,
		sku,
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Plan, error) {
	var plan domain.Plan
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&plan).Error; err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}
