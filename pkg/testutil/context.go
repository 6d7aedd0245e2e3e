package testutil

import (
	"net/http"
	"time"

	id "idecide/pkg/domain"
	"idecide/pkg/requestcontext"
)

// WithUser stamps the request context with an authenticated citizen, the way
// the auth middleware would after validating a token. Invalid user IDs are
// silently ignored.
func WithUser(req *http.Request, userID string, roles ...string) *http.Request {
	ctx := req.Context()
	if parsed, err := id.ParseUserID(userID); err == nil {
		ctx = requestcontext.WithUserID(ctx, parsed)
	}
	if len(roles) > 0 {
		ctx = requestcontext.WithRoles(ctx, roles)
	}
	return req.WithContext(ctx)
}

// WithConsumer stamps the request context with an authenticated consumer, the
// way the basic-auth middleware would. Invalid consumer IDs are silently
// ignored.
func WithConsumer(req *http.Request, consumerID string) *http.Request {
	if parsed, err := id.ParseConsumerID(consumerID); err == nil {
		return req.WithContext(requestcontext.WithConsumerID(req.Context(), parsed))
	}
	return req
}

// WithFrozenTime pins the request clock so handlers under test stamp
// deterministic dates.
func WithFrozenTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
