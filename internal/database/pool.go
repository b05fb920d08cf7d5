package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

type PoolStats struct {
	MaxOpenConns int           `json:"max_open_connections"`
	OpenConns    int           `json:"open_connections"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

type HealthCheck struct {
	Status       string        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
	Warnings     []string      `json:"warnings,omitempty"`
}

func (db *DB) GetPoolStats() PoolStats {
	s := db.Stats()
	return PoolStats{
		MaxOpenConns: s.MaxOpenConnections,
		OpenConns:    s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}

// HealthCheck pings the database and reports pool pressure.
func (db *DB) HealthCheck(ctx context.Context) HealthCheck {
	start := time.Now()
	hc := HealthCheck{Stats: db.GetPoolStats()}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := db.PingContext(pingCtx)
	hc.ResponseTime = time.Since(start)
	if err != nil {
		hc.Status = "unhealthy"
		hc.Error = err.Error()
		slog.Error("Database health check failed", "error", err)
		return hc
	}

	hc.Status = "healthy"
	hc.Warnings = poolWarnings(hc.Stats)
	return hc
}

// poolWarnings flags a pool close to exhaustion; checkout transactions queue
// behind each other when it is.
func poolWarnings(s PoolStats) []string {
	var warnings []string
	if s.MaxOpenConns > 0 && s.InUse*10 >= s.MaxOpenConns*9 {
		warnings = append(warnings, fmt.Sprintf("%d of %d connections in use", s.InUse, s.MaxOpenConns))
	}
	if s.WaitCount > 0 && s.WaitDuration/time.Duration(s.WaitCount) > 100*time.Millisecond {
		warnings = append(warnings, fmt.Sprintf("average connection wait %s", s.WaitDuration/time.Duration(s.WaitCount)))
	}
	return warnings
}

// Reader runs single statements outside transactions and retries reads that
// failed on a dropped connection. Writes are never retried here.
type Reader struct {
	db *DB
}

func (db *DB) Reader() *Reader {
	return &Reader{db: db}
}

func (r *Reader) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := retry.Do(
		func() error {
			var err error
			rows, err = r.db.QueryContext(ctx, query, args...)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(isConnectionError),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Query failed on connection error, retrying", "attempt", n+1, "error", err)
		}),
	)
	return rows, err
}

func (r *Reader) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, query, args...)
}

func (r *Reader) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, query, args...)
}

func isConnectionError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := err.Error()
	for _, s := range []string{"driver: bad connection", "connection reset", "broken pipe", "connection refused"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
