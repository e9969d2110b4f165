// Package requestctx carries the per-request correlation record created by the
// request ID middleware.
package requestctx

import (
	"context"
	"time"
)

// DefaultMaxIDLength caps inbound correlation identifiers, in bytes.
const DefaultMaxIDLength = 8 << 10

// RequestContext is created once per inbound request and never mutated.
type RequestContext struct {
	ID         string
	ReceivedAt time.Time
}

type contextKey struct{}

// With returns a copy of ctx carrying rc.
func With(ctx context.Context, rc RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, rc)
}

// From retrieves the RequestContext stored on ctx, if any.
func From(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	rc, ok := ctx.Value(contextKey{}).(RequestContext)
	return rc, ok
}

// ID returns the correlation ID stored on ctx or "".
func ID(ctx context.Context) string {
	rc, _ := From(ctx)
	return rc.ID
}

// Acceptable reports whether an externally supplied identifier is reused
// verbatim. Any non-empty value is, up to maxLen bytes; maxLen <= 0 disables
// the cap. Header syntax has already been enforced by net/http.
func Acceptable(id string, maxLen int) bool {
	if id == "" {
		return false
	}
	return maxLen <= 0 || len(id) <= maxLen
}
