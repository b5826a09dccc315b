package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("source", "stripe"),
		attribute.String("order_id", "456"),
		attribute.String("outcome", "duplicate"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "order_id" {
			t.Fatalf("order_id must not be used as a label")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordNotification(context.Background(), "stripe", "accepted")
	m.RecordPartnerCall(context.Background(), "provisioning", "create_order", "ok", time.Second)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "simcore"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.RecordOrderTransition(context.Background(), "paid", "provisioning")
	m.RecordRateLimitDenied(context.Background(), "partner")
}
