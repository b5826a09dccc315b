package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/simcore/internal/config"
	"github.com/smallbiznis/simcore/internal/notification/adapters/midtrans"
	"github.com/smallbiznis/simcore/internal/notification/adapters/partner"
	"github.com/smallbiznis/simcore/internal/notification/adapters/stripe"
	"github.com/smallbiznis/simcore/internal/notification/domain"
)

type Registry struct {
	adapters map[string]domain.Adapter
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	registry := &Registry{adapters: map[string]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		source := strings.ToLower(strings.TrimSpace(adapter.Source()))
		if source == "" {
			continue
		}
		registry.adapters[source] = adapter
	}
	return registry
}

// NewFromConfig registers every built-in source. A source without a secret
// is still registered and rejects notifications as not configured.
func NewFromConfig(cfg config.Config) *Registry {
	return NewRegistry(
		stripe.New(cfg.Payment.StripeWebhookSecret),
		midtrans.New(cfg.Payment.MidtransServerKey),
		partner.New(cfg.Provisioning.WebhookSecret),
	)
}

func (r *Registry) Get(source string) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrUnknownSource
	}
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(source))]
	if !ok {
		return nil, domain.ErrUnknownSource
	}
	return adapter, nil
}

func (r *Registry) Sources() []string {
	sources := make([]string, 0, len(r.adapters))
	for source := range r.adapters {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}
