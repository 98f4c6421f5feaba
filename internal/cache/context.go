package cache

import "context"

type contextKey struct{}

// MissingContextError is the panic value of FromContext when no cache was
// attached to the context. It marks a wiring bug, not a runtime condition.
type MissingContextError struct{}

func (*MissingContextError) Error() string {
	return "cache: FromContext called outside a session; no event cache in context"
}

// NewContext returns a copy of ctx carrying c.
func NewContext(ctx context.Context, c *Cache) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// Lookup returns the cache attached to ctx, if any.
func Lookup(ctx context.Context) (*Cache, bool) {
	c, ok := ctx.Value(contextKey{}).(*Cache)
	return c, ok && c != nil
}

// FromContext returns the cache attached to ctx and panics with
// *MissingContextError when there is none.
func FromContext(ctx context.Context) *Cache {
	c, ok := Lookup(ctx)
	if !ok {
		panic(&MissingContextError{})
	}
	return c
}
