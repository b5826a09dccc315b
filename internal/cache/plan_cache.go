package cache

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/simcore/internal/plan/domain"
)

const defaultPlanTTL = 10 * time.Minute

// PlanCache stores catalog lookups for the order read path and the usage
// refresh job. Plans are read-only here, so a short TTL is enough.
type PlanCache interface {
	GetPlan(id snowflake.ID) (plandomain.Plan, bool)
	GetPlanBySKU(sku string) (plandomain.Plan, bool)
	SetPlan(plan plandomain.Plan)
}

type planCache struct {
	byID  Cache[snowflake.ID, plandomain.Plan]
	bySKU Cache[string, plandomain.Plan]
	ttl   time.Duration
}

// NewPlanCache returns an in-memory plan cache.
func NewPlanCache() PlanCache {
	return &planCache{
		byID:  NewTTLCache[snowflake.ID, plandomain.Plan](),
		bySKU: NewTTLCache[string, plandomain.Plan](),
		ttl:   defaultPlanTTL,
	}
}

func (c *planCache) GetPlan(id snowflake.ID) (plandomain.Plan, bool) {
	return c.byID.Get(id)
}

func (c *planCache) GetPlanBySKU(sku string) (plandomain.Plan, bool) {
	return c.bySKU.Get(cacheKey(sku))
}

func (c *planCache) SetPlan(plan plandomain.Plan) {
	if plan.ID == 0 {
		return
	}
	c.byID.Set(plan.ID, plan, c.ttl)
	if key := cacheKey(plan.SKU); key != "" {
		c.bySKU.Set(key, plan, c.ttl)
	}
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
