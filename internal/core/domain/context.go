package domain

import "context"

// CurrentPrincipal is attached to every authenticated request. Business
// handlers read it without knowing anything about tokens.
type CurrentPrincipal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Kind Kind   `json:"kind"`
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p CurrentPrincipal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the principal set by the auth middleware.
func PrincipalFrom(ctx context.Context) (CurrentPrincipal, bool) {
	p, ok := ctx.Value(principalKey{}).(CurrentPrincipal)
	return p, ok
}
