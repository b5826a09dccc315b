package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/simcore/internal/observability/context"
)

// HeaderName carries a caller-supplied correlation id on inbound requests.
const HeaderName = "X-Correlation-Id"

// NewID returns a lexically sortable correlation id.
func NewID() string {
	return ulid.Make().String()
}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	return obscontext.CorrelationIDFromContext(ctx)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = NewID()
	}
	return obscontext.WithCorrelationID(ctx, cid), cid
}

// FromHeader adopts a well-formed inbound correlation id, or mints a new one.
func FromHeader(ctx context.Context, value string) (context.Context, string) {
	value = strings.TrimSpace(value)
	if _, err := ulid.ParseStrict(value); err == nil {
		return obscontext.WithCorrelationID(ctx, value), value
	}
	return EnsureCorrelationID(ctx)
}
