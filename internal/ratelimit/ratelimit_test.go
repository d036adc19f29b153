package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_RespectsConfiguredDelay(t *testing.T) {
	l := New()
	jobID := uuid.New()
	l.SetDelay(jobID, "example.com", 50*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, jobID, "example.com"))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, jobID, "example.com"))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestAcquire_IndependentPerDomain(t *testing.T) {
	l := New()
	jobID := uuid.New()
	l.SetDelay(jobID, "slow.example.com", 200*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, jobID, "slow.example.com"))
	require.NoError(t, l.Acquire(ctx, jobID, "fast.example.com"))
	require.NoError(t, l.Acquire(ctx, jobID, "fast.example.com"))
}

func TestThrottle_DelaysNextAcquire(t *testing.T) {
	l := New()
	jobID := uuid.New()
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, jobID, "example.com"))

	l.Throttle(jobID, "example.com", 60*time.Millisecond)

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, jobID, "example.com"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquire_ContextCancellation(t *testing.T) {
	l := New()
	jobID := uuid.New()
	l.SetDelay(jobID, "example.com", time.Second)

	require.NoError(t, l.Acquire(context.Background(), jobID, "example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, jobID, "example.com")
	assert.Error(t, err)
}
