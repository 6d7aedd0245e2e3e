package verification

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idecide/pkg/platform/sentinel"
)

func TestLimiter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("allows up to the cap inside the window", func(t *testing.T) {
		l := NewLimiter(NewInMemoryLimiterStore(), 3, time.Hour)
		ctx := t.Context()
		for i := 0; i < 3; i++ {
			require.NoError(t, l.Allow(ctx, now.Add(time.Duration(i)*time.Minute), "nhs:123"))
		}
		err := l.Allow(ctx, now.Add(4*time.Minute), "nhs:123")
		assert.True(t, errors.Is(err, sentinel.ErrRateLimited))
	})

	t.Run("expired attempts fall out of the window", func(t *testing.T) {
		l := NewLimiter(NewInMemoryLimiterStore(), 2, 10*time.Minute)
		ctx := t.Context()
		require.NoError(t, l.Allow(ctx, now, "k"))
		require.NoError(t, l.Allow(ctx, now.Add(time.Minute), "k"))
		require.Error(t, l.Allow(ctx, now.Add(2*time.Minute), "k"))

		// The first two attempts are older than the window by now.
		assert.NoError(t, l.Allow(ctx, now.Add(12*time.Minute), "k"))
	})

	t.Run("any key over the cap rejects the request", func(t *testing.T) {
		l := NewLimiter(NewInMemoryLimiterStore(), 1, time.Hour)
		ctx := t.Context()
		require.NoError(t, l.Allow(ctx, now, "nhs:1", "ip:10.0.0.1"))
		// Fresh nhs key, saturated ip key.
		err := l.Allow(ctx, now.Add(time.Minute), "nhs:2", "ip:10.0.0.1")
		assert.True(t, errors.Is(err, sentinel.ErrRateLimited))
	})

	t.Run("rejected attempts still count", func(t *testing.T) {
		l := NewLimiter(NewInMemoryLimiterStore(), 1, time.Hour)
		ctx := t.Context()
		require.NoError(t, l.Allow(ctx, now, "k"))
		require.Error(t, l.Allow(ctx, now.Add(time.Minute), "k"))

		// The first attempt has aged out, but the rejected second one has
		// not, so the budget is still spent.
		err := l.Allow(ctx, now.Add(time.Hour+30*time.Second), "k")
		assert.True(t, errors.Is(err, sentinel.ErrRateLimited))
	})

	t.Run("nil limiter allows everything", func(t *testing.T) {
		var l *Limiter
		assert.NoError(t, l.Allow(t.Context(), now, "k"))
	})
}
