package obscontext

import (
	"context"
	"testing"
)

func TestContextValuesRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	ctx = WithCorrelationID(ctx, "01HZX")
	ctx = WithActor(ctx, "system", "reconcile")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected request id req-1, got %q", got)
	}
	if got := CorrelationIDFromContext(ctx); got != "01HZX" {
		t.Fatalf("expected correlation id, got %q", got)
	}
	kind, id := ActorFromContext(ctx)
	if kind != "system" || id != "reconcile" {
		t.Fatalf("unexpected actor %q/%q", kind, id)
	}
}

func TestBlankValuesAreIgnored(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  ")
	ctx = WithActor(ctx, "", "x")
	if RequestIDFromContext(ctx) != "" {
		t.Fatalf("expected empty request id")
	}
	if kind, _ := ActorFromContext(ctx); kind != "" {
		t.Fatalf("expected no actor, got %q", kind)
	}
}
