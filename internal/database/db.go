package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/lib/pq"
)

type DB struct {
	*sql.DB
	txAttempts uint
}

type Config struct {
	Host               string `env:"DB_HOST" env-default:"localhost"`
	Port               int    `env:"DB_PORT" env-default:"5432"`
	User               string `env:"DB_USER" env-default:"eventcart"`
	Password           string `env:"DB_PASSWORD" env-default:"eventcart"`
	DBName             string `env:"DB_NAME" env-default:"eventcart"`
	SSLMode            string `env:"DB_SSLMODE" env-default:"disable"`
	MaxOpenConns       int    `env:"DB_MAX_OPEN_CONNS" env-default:"50"`
	MaxIdleConns       int    `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	ConnMaxLifetimeMin int    `env:"DB_CONN_MAX_LIFETIME_MIN" env-default:"5"`
	ConnMaxIdleTimeMin int    `env:"DB_CONN_MAX_IDLE_TIME_MIN" env-default:"1"`
	// TxAttempts: сколько раз повторять транзакцию при serialization failure
	TxAttempts uint `env:"DB_TX_ATTEMPTS" env-default:"5"`
}

func Connect(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMin) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMin) * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Connected to database",
		"host", cfg.Host, "port", cfg.Port, "dbname", cfg.DBName,
		"max_open_conns", cfg.MaxOpenConns, "max_idle_conns", cfg.MaxIdleConns)

	attempts := cfg.TxAttempts
	if attempts == 0 {
		attempts = 5
	}

	return &DB{DB: db, txAttempts: attempts}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// WithTx runs fn inside a SERIALIZABLE transaction. Serialization failures
// and deadlocks are retried with backoff; any other error rolls back and is
// returned as is.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retry.Do(
		func() error {
			return db.runTx(ctx, fn)
		},
		retry.Context(ctx),
		retry.Attempts(db.txAttempts),
		retry.Delay(10*time.Millisecond),
		retry.MaxDelay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsSerializationFailure),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("Retrying transaction", "attempt", n+1, "error", err)
		}),
	)
}

func (db *DB) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsSerializationFailure reports 40001 / 40P01 postgres errors.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// IsUniqueViolation reports a 23505 postgres error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
