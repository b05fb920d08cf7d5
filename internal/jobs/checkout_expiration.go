package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Expirer settles stale checkouts as EXPIRED.
type Expirer interface {
	ExpireStale(ctx context.Context, limit int) (int, error)
}

// CheckoutExpirationJob periodically expires checkouts the payment gateway
// never answered.
type CheckoutExpirationJob struct {
	expirer   Expirer
	interval  time.Duration
	batchSize int
	ticker    *time.Ticker
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

func NewCheckoutExpirationJob(expirer Expirer, interval time.Duration, batchSize int) *CheckoutExpirationJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &CheckoutExpirationJob{
		expirer:   expirer,
		interval:  interval,
		batchSize: batchSize,
		done:      make(chan struct{}),
	}
}

// Start runs a check immediately and then once per interval until Stop or
// ctx cancellation.
func (j *CheckoutExpirationJob) Start(ctx context.Context) {
	slog.Info("Starting checkout expiration job", "check_interval", j.interval, "batch_size", j.batchSize)

	j.ticker = time.NewTicker(j.interval)
	j.wg.Add(1)

	go func() {
		defer j.wg.Done()
		j.checkExpiredCheckouts(ctx)
		for {
			select {
			case <-j.ticker.C:
				j.checkExpiredCheckouts(ctx)
			case <-ctx.Done():
				slog.Info("Checkout expiration job stopped", "reason", ctx.Err())
				return
			case <-j.done:
				slog.Info("Checkout expiration job stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the background job and waits for the running check.
func (j *CheckoutExpirationJob) Stop() {
	j.stopOnce.Do(func() {
		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.done)
	})
	j.wg.Wait()
}

func (j *CheckoutExpirationJob) checkExpiredCheckouts(ctx context.Context) {
	// батчами, пока находится что просрочить
	for {
		n, err := j.expirer.ExpireStale(ctx, j.batchSize)
		if err != nil {
			slog.Error("Failed to expire checkouts", "error", err)
			return
		}
		if n > 0 {
			slog.Info("Expired stale checkouts", "count", n)
		}
		if n < j.batchSize {
			return
		}
	}
}
