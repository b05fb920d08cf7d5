//go:build integration

package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"eventcart/internal/database"
	"eventcart/internal/models"

	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Запуск: DB_HOST=localhost go test -tags integration ./internal/repository/
func openStore(t *testing.T) *PostgresStore {
	t.Helper()
	if os.Getenv("DB_HOST") == "" {
		t.Skip("DB_HOST is not set")
	}
	var cfg database.Config
	require.NoError(t, cleanenv.ReadEnv(&cfg))

	db, err := database.Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	store := NewPostgresStore(db)
	t.Cleanup(func() { store.Close() })
	return store
}

func saveEvent(t *testing.T, s *PostgresStore, capacities map[string]int) *models.Event {
	t.Helper()
	ctx := context.Background()
	e := &models.Event{
		ID:                   uuid.NewString(),
		Name:                 "Integration",
		City:                 "Rosario",
		EventDate:            time.Now().Add(240 * time.Hour),
		Type:                 models.EventTypeConcert,
		AvailableForPurchase: true,
	}
	for _, name := range []string{"GEN", "VIP"} {
		if n, ok := capacities[name]; ok {
			e.Localities = append(e.Localities, models.Locality{
				Name: name, Price: decimal.NewFromInt(20), RemainingCapacity: n, TotalCapacity: n,
			})
		}
	}
	require.NoError(t, s.Repos().Events.Save(ctx, e))
	t.Cleanup(func() { s.Repos().Events.Delete(context.Background(), e.ID) })
	return e
}

func TestAdjustLocalityCapacityBounds(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	e := saveEvent(t, s, map[string]int{"GEN": 5, "VIP": 2})
	events := s.Repos().Events

	tests := []struct {
		name     string
		locality string
		delta    int
		wantErr  error
		want     int
	}{
		{"take some", "GEN", -3, nil, 4},
		{"take exactly remaining", "GEN", -2, nil, 2},
		{"nothing left", "GEN", -1, ErrInsufficientCapacity, 2},
		{"return all", "GEN", 5, nil, 7},
		{"above total", "GEN", 1, ErrCapacityOverflow, 7},
		{"take vip", "VIP", -2, nil, 5},
		{"unknown locality", "BALCONY", -1, ErrLocalityNotFound, 5},
	}
	for _, tt := range tests {
		err := events.AdjustLocalityCapacity(ctx, e.ID, tt.locality, tt.delta)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, tt.name)
		} else {
			require.NoError(t, err, tt.name)
		}

		got, err := events.GetByID(ctx, e.ID)
		require.NoError(t, err)
		sum := 0
		for _, l := range got.Localities {
			sum += l.RemainingCapacity
		}
		assert.Equal(t, sum, got.TotalAvailablePlaces, tt.name)
		assert.Equal(t, tt.want, got.TotalAvailablePlaces, tt.name)
	}
}

func TestAdjustCapacityRolledBackWithTx(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	e := saveEvent(t, s, map[string]int{"GEN": 5})

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, r *Repositories) error {
		if err := r.Events.AdjustLocalityCapacity(ctx, e.ID, "GEN", -4); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Repos().Events.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Locality("GEN").RemainingCapacity)
	assert.Equal(t, 5, got.TotalAvailablePlaces)
}

func TestCartConditionalUpdate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	carts := s.Repos().Carts
	clientID := uuid.NewString()

	cart := models.NewCart(uuid.NewString(), clientID, time.Now())
	require.NoError(t, carts.Create(ctx, cart))

	cart.Status = models.CartPendingPayment
	cart.CheckoutAttemptID = cart.ID + "-1"
	require.NoError(t, carts.Update(ctx, cart, models.CartOpen))

	// вторая запись с тем же ожидаемым статусом проигрывает
	stale := *cart
	stale.Status = models.CartCanceled
	assert.ErrorIs(t, carts.Update(ctx, &stale, models.CartOpen), ErrConflict)

	stored, err := carts.GetByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CartPendingPayment, stored.Status)
	assert.Equal(t, cart.CheckoutAttemptID, stored.CheckoutAttemptID)

	byAttempt, err := carts.GetByCheckoutAttempt(ctx, cart.CheckoutAttemptID)
	require.NoError(t, err)
	require.NotNil(t, byAttempt)
	assert.Equal(t, cart.ID, byAttempt.ID)

	// у клиента только одна активная корзина
	second := models.NewCart(uuid.NewString(), clientID, time.Now())
	assert.ErrorIs(t, carts.Create(ctx, second), ErrDuplicate)

	cart.Status = models.CartCanceled
	require.NoError(t, carts.Update(ctx, cart, models.CartPendingPayment))
	require.NoError(t, carts.Create(ctx, second))
}
