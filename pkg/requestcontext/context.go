// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them. Keeping
// this package free of net/http lets services import only what they need.
//
// The request time accessor doubles as the injected clock: validated paths
// call Now(ctx) instead of time.Now() so tests can pin the clock.
package requestcontext

import (
	"context"
	"time"

	id "idecide/pkg/domain"
)

type (
	userIDKey      struct{}
	userRolesKey   struct{}
	consumerIDKey  struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyUserID      = userIDKey{}
	ContextKeyUserRoles   = userRolesKey{}
	ContextKeyConsumerID  = consumerIDKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// UserID retrieves the authenticated user ID, or the zero value if unset.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(ContextKeyUserID).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// WithUserID injects an authenticated user ID.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// Roles retrieves the authenticated caller's roles.
func Roles(ctx context.Context) []string {
	if roles, ok := ctx.Value(ContextKeyUserRoles).([]string); ok {
		return roles
	}
	return nil
}

// WithRoles injects the caller's roles.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, ContextKeyUserRoles, roles)
}

// HasRole reports whether the caller carries the named role.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range Roles(ctx) {
		if r == role {
			return true
		}
	}
	return false
}

// ConsumerID retrieves the authenticated consumer system ID.
func ConsumerID(ctx context.Context) id.ConsumerID {
	if consumerID, ok := ctx.Value(ContextKeyConsumerID).(id.ConsumerID); ok {
		return consumerID
	}
	return id.ConsumerID{}
}

// WithConsumerID injects an authenticated consumer system ID.
func WithConsumerID(ctx context.Context, consumerID id.ConsumerID) context.Context {
	return context.WithValue(ctx, ContextKeyConsumerID, consumerID)
}

// ClientIP retrieves the client IP address.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects the client IP address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// UserAgent retrieves the parsed client user-agent description.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithUserAgent injects the client user-agent description.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ContextKeyUserAgent, ua)
}

// RequestID retrieves the request correlation ID.
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID injects a request correlation ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now returns the request-pinned time when one was injected, otherwise the
// wall clock. Services never call time.Now directly on validated paths.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok && !t.IsZero() {
		return t
	}
	return time.Now()
}

// WithTime pins the request time. Middleware sets it once per request; tests
// use it to make recency-window checks deterministic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
