package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type scriptedExpirer struct {
	mu      sync.Mutex
	results []int
	err     error
	calls   int
}

func (e *scriptedExpirer) ExpireStale(_ context.Context, limit int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return 0, e.err
	}
	if len(e.results) == 0 {
		return 0, nil
	}
	n := e.results[0]
	e.results = e.results[1:]
	return n, nil
}

func (e *scriptedExpirer) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func TestCheckDrainsFullBatches(t *testing.T) {
	exp := &scriptedExpirer{results: []int{10, 10, 3}}
	job := NewCheckoutExpirationJob(exp, time.Hour, 10)

	job.checkExpiredCheckouts(context.Background())
	assert.Equal(t, 3, exp.callCount())
}

func TestCheckStopsOnError(t *testing.T) {
	exp := &scriptedExpirer{err: errors.New("db down")}
	job := NewCheckoutExpirationJob(exp, time.Hour, 10)

	job.checkExpiredCheckouts(context.Background())
	assert.Equal(t, 1, exp.callCount())
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	exp := &scriptedExpirer{}
	job := NewCheckoutExpirationJob(exp, time.Hour, 0)
	assert.Equal(t, 100, job.batchSize)

	job.Start(context.Background())
	assert.Eventually(t, func() bool { return exp.callCount() == 1 }, time.Second, 5*time.Millisecond)

	job.Stop()
	job.Stop()
}

func TestStartTicks(t *testing.T) {
	exp := &scriptedExpirer{}
	job := NewCheckoutExpirationJob(exp, 10*time.Millisecond, 5)

	ctx, cancel := context.WithCancel(context.Background())
	job.Start(ctx)
	assert.Eventually(t, func() bool { return exp.callCount() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	job.Stop()
}
