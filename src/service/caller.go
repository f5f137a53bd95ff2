package service

import (
	"context"
)

// Tier is the trust classification of a route: who is expected to call it.
type Tier int

const (
	// Admin routes manage the node itself.
	Admin Tier = iota
	// Private routes are called on behalf of a local user.
	Private
	// Public routes are called by the node of the counterpart of a friend
	// request.
	Public
	// Friend routes are called by the node of an established friend.
	Friend
)

// String ...
func (t Tier) String() string {
	switch t {
	case Admin:
		return "admin"
	case Private:
		return "private"
	case Public:
		return "public"
	case Friend:
		return "friend"
	default:
		return "unknown"
	}
}

// Caller describes who made a request: the tier of the route it called and
// its remote address.
type Caller struct {
	Tier   Tier
	Remote string
}

type callerKey struct{}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the Caller stored in ctx by the service.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// Guard decides whether a caller may use a route on behalf of, or addressed
// to, a local user. username is empty for admin routes that do not name a
// user. A non-nil error refuses the request and is returned to the caller.
type Guard interface {
	Allow(ctx context.Context, c Caller, username string) error
}

// GuardFunc adapts a function to the Guard interface.
type GuardFunc func(ctx context.Context, c Caller, username string) error

// Allow implements the Guard interface.
func (f GuardFunc) Allow(ctx context.Context, c Caller, username string) error {
	return f(ctx, c, username)
}

// AllowAll is the default Guard. Callers are not authenticated, so every tier
// is open to everyone.
var AllowAll Guard = GuardFunc(func(context.Context, Caller, string) error {
	return nil
})
