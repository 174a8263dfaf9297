package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l := NewLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		result := l.Check("ip1")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}

	result := l.Check("ip1")
	assert.False(t, result.Allowed)
	assert.Zero(t, result.Remaining)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(1, time.Minute)

	assert.True(t, l.Check("ip1").Allowed)
	assert.False(t, l.Check("ip1").Allowed)
	assert.True(t, l.Check("ip2").Allowed)
}

func TestLimiter_WindowResets(t *testing.T) {
	l := NewLimiter(1, time.Minute)

	now := time.Unix(1000, 0)
	l.nowFunc = func() time.Time { return now }

	assert.True(t, l.Check("ip1").Allowed)
	assert.False(t, l.Check("ip1").Allowed)

	now = now.Add(time.Minute + time.Second)
	assert.True(t, l.Check("ip1").Allowed)
}

func TestLimiter_RetryAfterCountsDown(t *testing.T) {
	l := NewLimiter(1, time.Minute)

	now := time.Unix(1000, 0)
	l.nowFunc = func() time.Time { return now }

	l.Check("ip1")
	now = now.Add(20 * time.Second)

	result := l.Check("ip1")
	assert.False(t, result.Allowed)
	assert.Equal(t, 40*time.Second, result.RetryAfter)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 70.41.3.18")
	assert.Equal(t, "203.0.113.9", ClientIP(r))

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-Ip", "203.0.113.10")
	assert.Equal(t, "203.0.113.10", ClientIP(r))

	r = httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "unknown", ClientIP(r))
}
