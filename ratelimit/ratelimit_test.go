package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffEscalatesThenCaps(t *testing.T) {
	assert := assert.New(t)

	prev := time.Duration(0)
	for hits := 1; hits <= 5; hits++ {
		b := Backoff(hits)
		assert.Greater(b, prev, "backoff must strictly increase through hit 5")
		prev = b
	}

	assert.Equal(6*time.Hour, Backoff(5))
	assert.Equal(Backoff(5), Backoff(6))
	assert.Equal(Backoff(5), Backoff(100))
	assert.Equal(30*time.Minute, Backoff(0))
}

func TestIsRateLimitedByExitCode(t *testing.T) {
	assert := assert.New(t)

	assert.True(IsRateLimited(173, "", ""))
	assert.False(IsRateLimited(1, "", ""))
	assert.False(IsRateLimited(0, "", ""))
}

func TestIsRateLimitedByPhrase(t *testing.T) {
	assert := assert.New(t)

	assert.True(IsRateLimited(1, "", "Limit reached"))
	assert.True(IsRateLimited(2, "Too Many Requests", ""))
	assert.True(IsRateLimited(1, "", "HTTP 429 from server"))
	assert.True(IsRateLimited(1, "RATE LIMIT exceeded", ""))
	assert.False(IsRateLimited(1, "connection refused", "no route to host"))
}
