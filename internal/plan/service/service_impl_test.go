package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/simcore/internal/cache"
	"github.com/smallbiznis/simcore/internal/plan/domain"
	"github.com/smallbiznis/simcore/internal/plan/repository"
	"github.com/smallbiznis/simcore/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGet_LoadsPlanWithAllowance(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedPlan(t, db, 7, "jp-1.5gb-7d", 1.5, 7)
	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})

	plan, err := svc.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "jp-1.5gb-7d", plan.SKU)
	assert.Equal(t, 7, plan.ValidityDays)
	assert.Equal(t, int64(1_500_000_000), plan.TotalBytes())

	bySKU, err := svc.GetBySKU(context.Background(), " jp-1.5gb-7d ")
	require.NoError(t, err)
	assert.Equal(t, plan.ID, bySKU.ID)
}

func TestGet_Missing(t *testing.T) {
	db := dbtest.Open(t)
	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})

	_, err := svc.Get(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)

	_, err = svc.GetBySKU(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)
}

func TestGet_ServesFromCache(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedPlan(t, db, 7, "jp-1.5gb-7d", 1.5, 7)
	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide(), Cache: cache.NewPlanCache()})
	ctx := context.Background()

	_, err := svc.Get(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, db.Exec(`DELETE FROM plans WHERE id = 7`).Error)

	plan, err := svc.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "jp-1.5gb-7d", plan.SKU)

	bySKU, err := svc.GetBySKU(ctx, "JP-1.5GB-7D")
	require.NoError(t, err)
	assert.Equal(t, plan.ID, bySKU.ID)
}
