package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuota(t *testing.T) {
	t.Run("unknown quota is never exhausted", func(t *testing.T) {
		q := newQuota()

		assert.False(t, q.exhausted(DefaultMinRateToSleep))
	})

	t.Run("exhausted at or below the floor", func(t *testing.T) {
		q := quota{remaining: 10}
		assert.True(t, q.exhausted(10))

		q.remaining = 11
		assert.False(t, q.exhausted(10))

		q.remaining = 0
		assert.True(t, q.exhausted(10))
	})

	t.Run("sleep duration never goes negative", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		q := quota{resetAt: now.Add(-time.Minute)}

		assert.Equal(t, time.Duration(0), q.sleepFor(now))

		q.resetAt = now.Add(time.Minute)
		assert.Equal(t, time.Minute, q.sleepFor(now))
	})

	t.Run("update reads quota headers", func(t *testing.T) {
		h := http.Header{}
		h.Set(HeaderRateRemaining, "37")
		h.Set(HeaderRateReset, "1700000123")

		q := newQuota()
		q.updateFrom(h, HeaderRateRemaining, HeaderRateReset)

		assert.Equal(t, 37, q.remaining)
		assert.Equal(t, time.Unix(1700000123, 0), q.resetAt)
	})

	t.Run("missing remaining header clears tracking", func(t *testing.T) {
		q := quota{remaining: 3}
		q.updateFrom(http.Header{}, HeaderRateRemaining, HeaderRateReset)

		assert.Equal(t, -1, q.remaining)
	})

	t.Run("retry-after wins over the reset header", func(t *testing.T) {
		h := http.Header{}
		h.Set(HeaderRateReset, "1700000123")
		h.Set(HeaderRetryAfter, "60")

		q := newQuota()
		before := time.Now()
		q.updateFrom(h, HeaderRateRemaining, HeaderRateReset)

		assert.True(t, q.resetAt.After(before.Add(59*time.Second)))
		assert.True(t, q.resetAt.Before(before.Add(61*time.Second)))
	})
}
