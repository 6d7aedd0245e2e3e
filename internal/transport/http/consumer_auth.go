package http

import (
	"context"
	"log/slog"
	"net/http"

	"idecide/internal/consumer"
	id "idecide/pkg/domain"
	"idecide/pkg/requestcontext"
)

// ConsumerAuthenticator checks a consumer's API credentials.
type ConsumerAuthenticator interface {
	Authenticate(ctx context.Context, consumerID id.ConsumerID, secret string) (*consumer.Consumer, error)
}

// RequireConsumer authenticates the adoption surface with HTTP basic auth:
// the username is the consumer id, the password the API secret. The resolved
// consumer id is injected into the request context for the services.
func RequireConsumer(auth ConsumerAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, secret, ok := r.BasicAuth()
			if !ok {
				writeConsumerUnauthorized(w)
				return
			}
			consumerID, err := id.ParseConsumerID(username)
			if err != nil {
				writeConsumerUnauthorized(w)
				return
			}
			c, err := auth.Authenticate(r.Context(), consumerID, secret)
			if err != nil {
				logger.WarnContext(r.Context(), "consumer authentication rejected",
					"consumer_id", username,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				writeConsumerUnauthorized(w)
				return
			}
			ctx := requestcontext.WithConsumerID(r.Context(), c.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeConsumerUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="idecide-adoption"`)
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid consumer credentials"})
}
