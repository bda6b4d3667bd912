package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBurstPerKey(t *testing.T) {
	l := NewLimiter(0.001, 2)
	assert.True(t, l.Allow("page-a"))
	assert.True(t, l.Allow("page-a"))
	assert.False(t, l.Allow("page-a"))

	// independent bucket
	assert.True(t, l.Allow("page-b"))
}

func TestForgetResetsBucket(t *testing.T) {
	l := NewLimiter(0.001, 1)
	require.True(t, l.Allow("k"))
	require.False(t, l.Allow("k"))
	l.Forget("k")
	assert.True(t, l.Allow("k"))
}

func TestUnlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("k"))
	}
}

func TestWaitHonoursContext(t *testing.T) {
	l := NewLimiter(0.001, 1)
	require.NoError(t, l.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}
