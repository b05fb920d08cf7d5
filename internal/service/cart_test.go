package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperr "eventcart/internal/errors"
	"eventcart/internal/metrics"
	"eventcart/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestPurchaseWithCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 10)
	client := f.client(t, "buyer@example.com")
	f.coupon(t, "SAVE10", "10", "50")

	cart, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 3, "20"))
	require.NoError(t, err)
	assertDec(t, "60", cart.TotalPrice)
	assert.Equal(t, 7, f.remaining(t, e.ID))

	cart, err = f.svc.Carts.ApplyCoupon(ctx, client, "SAVE10")
	require.NoError(t, err)
	assert.True(t, cart.CouponClaimed)
	assertDec(t, "54", cart.TotalPriceWithDiscount)

	resp, err := f.svc.Carts.Checkout(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, cart.ID+"-1", resp.CheckoutAttemptID)
	assert.Equal(t, "pref-1", resp.PreferenceID)
	require.Len(t, f.gateway.calls, 1)
	assertDec(t, "54", f.gateway.calls[0].Total)
	assert.Equal(t, "buyer@example.com", f.gateway.calls[0].ClientEmail)

	pending, err := f.svc.Carts.GetCart(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, models.CartPendingPayment, pending.Status)
	assert.Equal(t, "pref-1", pending.PreferenceID)
	assert.Equal(t, "pref-1", pending.Orders[0].PayingOrderID)

	applied, err := f.svc.Carts.Settle(ctx, resp.CheckoutAttemptID, models.OutcomeApproved)
	require.NoError(t, err)
	assert.True(t, applied)

	purchase, err := f.store.Repos().Purchases.GetByCheckoutAttempt(ctx, resp.CheckoutAttemptID)
	require.NoError(t, err)
	require.NotNil(t, purchase)
	assertDec(t, "60", purchase.TotalPrice)
	assertDec(t, "54", purchase.TotalPriceWithDiscount)
	assert.Equal(t, "SAVE10", purchase.CouponName)

	fresh, err := f.svc.Carts.GetCart(ctx, client)
	require.NoError(t, err)
	assert.NotEqual(t, cart.ID, fresh.ID)
	assert.Equal(t, models.CartOpen, fresh.Status)
	assert.Empty(t, fresh.Orders)

	c, err := f.svc.Accounts.GetClient(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, []string{"SAVE10"}, c.UsedCoupons)
	assert.Equal(t, fresh.ID, c.CartID)

	coupon, err := f.svc.Coupons.Get(ctx, "SAVE10")
	require.NoError(t, err)
	assert.True(t, coupon.Used)

	// места проданы
	assert.Equal(t, 7, f.remaining(t, e.ID))
	assert.Equal(t, 1, f.publisher.count(models.SubjectPurchaseCompleted))
	assert.Equal(t, 1, f.publisher.count(models.SubjectCheckoutSettled))

	// повтор вебхука ничего не меняет
	applied, err = f.svc.Carts.Settle(ctx, resp.CheckoutAttemptID, models.OutcomeApproved)
	require.NoError(t, err)
	assert.False(t, applied)
	applied, err = f.svc.Carts.Settle(ctx, resp.CheckoutAttemptID, models.OutcomeExpired)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 7, f.remaining(t, e.ID))
	assert.Equal(t, 1, f.publisher.count(models.SubjectPurchaseCompleted))
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 10)
	clients := []string{f.client(t, "a@example.com"), f.client(t, "b@example.com")}

	var wg sync.WaitGroup
	errs := make([]error, len(clients))
	for i, id := range clients {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.svc.Carts.Reserve(ctx, id, reserveIn(e.ID, 6, "20"))
		}(i, id)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.Equal(t, apperr.InsufficientCapacity, apperr.KindOf(err))
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 4, f.remaining(t, e.ID))
}

func TestCouponReuseRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 10)
	client := f.client(t, "buyer@example.com")
	f.coupon(t, "SAVE10", "10", "0")

	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 1, "20"))
	require.NoError(t, err)
	_, err = f.svc.Carts.ApplyCoupon(ctx, client, "SAVE10")
	require.NoError(t, err)
	resp, err := f.svc.Carts.Checkout(ctx, client)
	require.NoError(t, err)
	_, err = f.svc.Carts.Settle(ctx, resp.CheckoutAttemptID, models.OutcomeApproved)
	require.NoError(t, err)

	_, err = f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 1, "20"))
	require.NoError(t, err)
	_, err = f.svc.Carts.ApplyCoupon(ctx, client, "SAVE10")
	assertKind(t, err, apperr.CouponAlreadyUsedByClient)

	// другой клиент может использовать тот же промокод
	other := f.client(t, "other@example.com")
	_, err = f.svc.Carts.Reserve(ctx, other, reserveIn(e.ID, 1, "20"))
	require.NoError(t, err)
	_, err = f.svc.Carts.ApplyCoupon(ctx, other, "SAVE10")
	assert.NoError(t, err)
}

func TestExpireStaleCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 2)
	client := f.client(t, "buyer@example.com")
	f.coupon(t, "HALF", "50", "0")

	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 2, "20"))
	require.NoError(t, err)
	_, err = f.svc.Carts.ApplyCoupon(ctx, client, "HALF")
	require.NoError(t, err)
	resp, err := f.svc.Carts.Checkout(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 0, f.remaining(t, e.ID))

	// ещё рано
	f.now = f.now.Add(10 * time.Minute)
	n, err := f.svc.Carts.ExpireStale(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.now = f.now.Add(6 * time.Minute)
	n, err = f.svc.Carts.ExpireStale(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 2, f.remaining(t, e.ID))
	cart, err := f.svc.Carts.GetCart(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, models.CartOpen, cart.Status)
	assert.Empty(t, cart.Orders)
	assert.False(t, cart.CouponClaimed)
	assert.Empty(t, cart.CheckoutAttemptID)
	assertDec(t, "0", cart.TotalPriceWithDiscount)

	// поздний APPROVED для истекшей попытки игнорируется
	applied, err := f.svc.Carts.Settle(ctx, resp.CheckoutAttemptID, models.OutcomeApproved)
	require.NoError(t, err)
	assert.False(t, applied)
	purchase, err := f.store.Repos().Purchases.GetByCheckoutAttempt(ctx, resp.CheckoutAttemptID)
	require.NoError(t, err)
	assert.Nil(t, purchase)
}

func TestCheckoutPriceStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 10)
	client := f.client(t, "buyer@example.com")

	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 3, "20"))
	require.NoError(t, err)

	_, err = f.svc.Events.Update(ctx, e.ID, &models.EventRequest{
		Name:      e.Name,
		City:      e.City,
		EventDate: e.EventDate,
		Type:      e.Type,
		Localities: []models.LocalityRequest{
			{Name: "GEN", Price: decp("25"), TotalCapacity: 10},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, f.remaining(t, e.ID))

	_, err = f.svc.Carts.Checkout(ctx, client)
	assertKind(t, err, apperr.PriceStale)
	assert.Empty(t, f.gateway.calls)

	cart, err := f.svc.Carts.GetCart(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, models.CartOpen, cart.Status)

	// старая цена больше не резервируется
	_, err = f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 1, "20"))
	assertKind(t, err, apperr.PriceStale)
}

func TestApplyCouponRules(t *testing.T) {
	tests := []struct {
		name    string
		percent string
		min     string
		advance time.Duration
		want    string
		kind    apperr.Kind
	}{
		{name: "zero percent", percent: "0", min: "0", want: "60"},
		{name: "full discount", percent: "100", min: "0", want: "0"},
		{name: "fractional", percent: "33.33", min: "0", want: "40"},
		{name: "min exactly met", percent: "10", min: "60", want: "54"},
		{name: "min not met", percent: "10", min: "60.01", kind: apperr.CouponMinNotMet},
		{name: "expired", percent: "10", min: "0", advance: 25 * time.Hour, kind: apperr.CouponExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			e := f.event(t, "20", 10)
			client := f.client(t, "buyer@example.com")
			f.coupon(t, "PROMO", tt.percent, tt.min)

			_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 3, "20"))
			require.NoError(t, err)

			f.now = f.now.Add(tt.advance)
			cart, err := f.svc.Carts.ApplyCoupon(ctx, client, "PROMO")
			if tt.kind != "" {
				assertKind(t, err, tt.kind)
				return
			}
			require.NoError(t, err)
			assertDec(t, tt.want, cart.TotalPriceWithDiscount)
		})
	}
}

func TestApplyCouponErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 10)
	client := f.client(t, "buyer@example.com")
	f.coupon(t, "A", "10", "0")
	f.coupon(t, "B", "20", "0")

	_, err := f.svc.Carts.ApplyCoupon(ctx, client, "A")
	assertKind(t, err, apperr.EmptyCart)

	_, err = f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 1, "20"))
	require.NoError(t, err)

	_, err = f.svc.Carts.ApplyCoupon(ctx, client, "MISSING")
	assertKind(t, err, apperr.CouponNotFound)

	_, err = f.svc.Carts.ApplyCoupon(ctx, client, "A")
	require.NoError(t, err)
	_, err = f.svc.Carts.ApplyCoupon(ctx, client, "B")
	assertKind(t, err, apperr.CouponAlreadyApplied)

	cart, err := f.svc.Carts.RemoveCoupon(ctx, client)
	require.NoError(t, err)
	assert.False(t, cart.CouponClaimed)
	assert.Empty(t, cart.AppliedCouponName)
	assertDec(t, "20", cart.TotalPriceWithDiscount)

	cart, err = f.svc.Carts.ApplyCoupon(ctx, client, "B")
	require.NoError(t, err)
	assertDec(t, "16", cart.TotalPriceWithDiscount)

	// скидка пересчитывается при изменении корзины
	cart, err = f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 1, "20"))
	require.NoError(t, err)
	assertDec(t, "32", cart.TotalPriceWithDiscount)
}

func TestReserveErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 5)
	client := f.client(t, "buyer@example.com")

	tests := []struct {
		name string
		in   ReserveInput
		kind apperr.Kind
	}{
		{name: "zero tickets", in: reserveIn(e.ID, 0, "20"), kind: apperr.ValidationFailed},
		{name: "no expected price", in: ReserveInput{EventID: e.ID, LocalityName: "GEN", TicketsSelected: 1}, kind: apperr.ValidationFailed},
		{name: "unknown event", in: reserveIn("nope", 1, "20"), kind: apperr.EventNotFound},
		{name: "unknown locality", in: ReserveInput{EventID: e.ID, LocalityName: "VIP", TicketsSelected: 1, ExpectedUnitPrice: decp("20")}, kind: apperr.LocalityNotFound},
		{name: "wrong price", in: reserveIn(e.ID, 1, "19.99"), kind: apperr.PriceStale},
		{name: "too many", in: reserveIn(e.ID, 6, "20"), kind: apperr.InsufficientCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Carts.Reserve(ctx, client, tt.in)
			assertKind(t, err, tt.kind)
		})
	}
	assert.Equal(t, 5, f.remaining(t, e.ID))

	// событие уже прошло
	f.now = f.now.Add(11 * 24 * time.Hour)
	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 1, "20"))
	assertKind(t, err, apperr.EventClosed)
}

func TestReserveMergesLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "12.50", 10)
	client := f.client(t, "buyer@example.com")

	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 1, "12.50"))
	require.NoError(t, err)
	cart, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 2, "12.5"))
	require.NoError(t, err)

	require.Len(t, cart.Orders, 1)
	assert.Equal(t, 3, cart.Orders[0].TicketsSelected)
	assertDec(t, "37.50", cart.Orders[0].Subtotal)
	assertDec(t, "37.5", cart.TotalPrice)
	assert.Equal(t, 2, f.publisher.count(models.SubjectCartReserved))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 10)
	client := f.client(t, "buyer@example.com")
	f.coupon(t, "SAVE10", "10", "0")

	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 4, "20"))
	require.NoError(t, err)
	_, err = f.svc.Carts.ApplyCoupon(ctx, client, "SAVE10")
	require.NoError(t, err)

	_, err = f.svc.Carts.Cancel(ctx, client, ReserveInput{EventID: e.ID, LocalityName: "VIP", TicketsSelected: 1})
	assertKind(t, err, apperr.LocalityOrderNotFound)
	_, err = f.svc.Carts.Cancel(ctx, client, reserveIn(e.ID, 5, "20"))
	assertKind(t, err, apperr.InsufficientOrderQuantity)
	_, err = f.svc.Carts.Cancel(ctx, client, reserveIn(e.ID, 1, "21"))
	assertKind(t, err, apperr.LocalityOrderNotFound)
	_, err = f.svc.Carts.Cancel(ctx, client, reserveIn(e.ID, 0, "20"))
	assertKind(t, err, apperr.ValidationFailed)

	cart, err := f.svc.Carts.Cancel(ctx, client, ReserveInput{EventID: e.ID, LocalityName: "GEN", TicketsSelected: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, cart.Orders[0].TicketsSelected)
	assertDec(t, "54", cart.TotalPriceWithDiscount)
	assert.True(t, cart.CouponClaimed)
	assert.Equal(t, 7, f.remaining(t, e.ID))

	cart, err = f.svc.Carts.Cancel(ctx, client, reserveIn(e.ID, 3, "20"))
	require.NoError(t, err)
	assert.Empty(t, cart.Orders)
	assert.False(t, cart.CouponClaimed)
	assertDec(t, "0", cart.TotalPrice)
	assert.Equal(t, 10, f.remaining(t, e.ID))
}

func TestCartNotOpenWhilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 10)
	client := f.client(t, "buyer@example.com")
	f.coupon(t, "SAVE10", "10", "0")

	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 2, "20"))
	require.NoError(t, err)
	_, err = f.svc.Carts.Checkout(ctx, client)
	require.NoError(t, err)

	_, err = f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 1, "20"))
	assertKind(t, err, apperr.CartNotOpen)
	_, err = f.svc.Carts.Cancel(ctx, client, reserveIn(e.ID, 1, "20"))
	assertKind(t, err, apperr.CartNotOpen)
	_, err = f.svc.Carts.ApplyCoupon(ctx, client, "SAVE10")
	assertKind(t, err, apperr.CartNotOpen)
	_, err = f.svc.Carts.RemoveCoupon(ctx, client)
	assertKind(t, err, apperr.CartNotOpen)
	_, err = f.svc.Carts.Checkout(ctx, client)
	assertKind(t, err, apperr.CartNotOpen)
	assert.Len(t, f.gateway.calls, 1)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, "buyer@example.com")

	_, err := f.svc.Carts.Checkout(context.Background(), client)
	assertKind(t, err, apperr.EmptyCart)
	assert.Empty(t, f.gateway.calls)
}

func TestCheckoutGatewayFailureReopensCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 10)
	client := f.client(t, "buyer@example.com")

	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 3, "20"))
	require.NoError(t, err)

	f.gateway.err = errors.New("connection refused")
	_, err = f.svc.Carts.Checkout(ctx, client)
	assertKind(t, err, apperr.PaymentGatewayUnreachable)

	cart, err := f.svc.Carts.GetCart(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, models.CartOpen, cart.Status)
	assert.Empty(t, cart.CheckoutAttemptID)
	assert.Len(t, cart.Orders, 1)
	assert.Equal(t, 7, f.remaining(t, e.ID))

	// новая попытка получает следующий номер
	f.gateway.err = nil
	resp, err := f.svc.Carts.Checkout(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, cart.ID+"-2", resp.CheckoutAttemptID)
}

func TestSettleRejectedKeepsOrders(t *testing.T) {
	for _, outcome := range []models.Outcome{models.OutcomeRejected, models.OutcomeCanceled} {
		t.Run(string(outcome), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			e := f.event(t, "20", 10)
			client := f.client(t, "buyer@example.com")
			f.coupon(t, "SAVE10", "10", "0")

			_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 3, "20"))
			require.NoError(t, err)
			_, err = f.svc.Carts.ApplyCoupon(ctx, client, "SAVE10")
			require.NoError(t, err)
			resp, err := f.svc.Carts.Checkout(ctx, client)
			require.NoError(t, err)

			applied, err := f.svc.Carts.Settle(ctx, resp.CheckoutAttemptID, outcome)
			require.NoError(t, err)
			assert.True(t, applied)

			cart, err := f.svc.Carts.GetCart(ctx, client)
			require.NoError(t, err)
			assert.Equal(t, models.CartOpen, cart.Status)
			assert.Len(t, cart.Orders, 1)
			assert.True(t, cart.CouponClaimed)
			assert.Empty(t, cart.PreferenceID)
			assert.Empty(t, cart.Orders[0].PayingOrderID)
			assert.Equal(t, 7, f.remaining(t, e.ID))

			c, err := f.svc.Accounts.GetClient(ctx, client)
			require.NoError(t, err)
			assert.Empty(t, c.UsedCoupons)
		})
	}
}

func TestSettleUnknownAndInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	applied, err := f.svc.Carts.Settle(ctx, "missing-1", models.OutcomeApproved)
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = f.svc.Carts.Settle(ctx, "missing-1", models.Outcome("MAYBE"))
	assertKind(t, err, apperr.ValidationFailed)
	assert.Zero(t, f.publisher.count(models.SubjectCheckoutSettled))
}

func TestResetCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 10)
	client := f.client(t, "buyer@example.com")

	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 3, "20"))
	require.NoError(t, err)
	resp, err := f.svc.Carts.Checkout(ctx, client)
	require.NoError(t, err)

	old, err := f.svc.Carts.GetCart(ctx, client)
	require.NoError(t, err)

	fresh, err := f.svc.Carts.ResetCart(ctx, client)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Equal(t, models.CartOpen, fresh.Status)
	assert.Equal(t, 10, f.remaining(t, e.ID))
	assert.Equal(t, 1, f.publisher.count(models.SubjectCartReset))

	stored, err := f.store.Repos().Carts.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CartCanceled, stored.Status)
	// попытка остаётся на корзине для сверки с шлюзом
	assert.Equal(t, resp.CheckoutAttemptID, stored.CheckoutAttemptID)
	assert.Equal(t, "pref-1", stored.PreferenceID)

	// попытка сброшенной корзины больше не рассчитывается
	orphaned := testutil.ToFloat64(metrics.OrphanedPayments)
	applied, err := f.svc.Carts.Settle(ctx, resp.CheckoutAttemptID, models.OutcomeApproved)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, orphaned+1, testutil.ToFloat64(metrics.OrphanedPayments))

	purchase, err := f.store.Repos().Purchases.GetByCheckoutAttempt(ctx, resp.CheckoutAttemptID)
	require.NoError(t, err)
	assert.Nil(t, purchase)
	assert.Equal(t, 10, f.available(t, e.ID))

	_, err = f.svc.Carts.ResetCart(ctx, "nobody")
	assertKind(t, err, apperr.CartNotFound)
}

// available checks that the event total equals the sum of its localities
// and returns it.
func (f *fixture) available(t *testing.T, eventID string) int {
	t.Helper()
	e, err := f.svc.Events.Get(context.Background(), eventID)
	require.NoError(t, err)
	sum := 0
	for _, l := range e.Localities {
		assert.GreaterOrEqual(t, l.RemainingCapacity, 0, l.Name)
		assert.LessOrEqual(t, l.RemainingCapacity, l.TotalCapacity, l.Name)
		sum += l.RemainingCapacity
	}
	assert.Equal(t, sum, e.TotalAvailablePlaces)
	return e.TotalAvailablePlaces
}

func orderLines(c *models.Cart) []string {
	lines := make([]string, 0, len(c.Orders))
	for _, o := range c.Orders {
		lines = append(lines, fmt.Sprintf("%s/%s x%d @%s = %s",
			o.EventID, o.LocalityName, o.TicketsSelected, o.UnitPrice.StringFixed(2), o.Subtotal.StringFixed(2)))
	}
	return lines
}

func TestAvailablePlacesFollowLocalities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.Events.Create(ctx, &models.EventRequest{
		Name:      "Festival",
		City:      "Mendoza",
		EventDate: f.now.Add(48 * time.Hour),
		Type:      models.EventTypeFestival,
		Localities: []models.LocalityRequest{
			{Name: "GEN", Price: decp("20"), TotalCapacity: 10},
			{Name: "VIP", Price: decp("50"), TotalCapacity: 4},
		},
	})
	require.NoError(t, err)
	client := f.client(t, "buyer@example.com")
	assert.Equal(t, 14, f.available(t, e.ID))

	steps := []struct {
		name string
		run  func() error
		want int
	}{
		{"reserve general", func() error {
			_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 3, "20"))
			return err
		}, 11},
		{"reserve vip", func() error {
			_, err := f.svc.Carts.Reserve(ctx, client, ReserveInput{EventID: e.ID, LocalityName: "VIP", TicketsSelected: 2, ExpectedUnitPrice: decp("50")})
			return err
		}, 9},
		{"cancel one general", func() error {
			_, err := f.svc.Carts.Cancel(ctx, client, reserveIn(e.ID, 1, "20"))
			return err
		}, 10},
		{"checkout keeps tickets held", func() error {
			_, err := f.svc.Carts.Checkout(ctx, client)
			return err
		}, 10},
		{"expired checkout returns tickets", func() error {
			f.now = f.now.Add(16 * time.Minute)
			n, err := f.svc.Carts.ExpireStale(ctx, 10)
			if err == nil && n != 1 {
				return fmt.Errorf("expired %d checkouts", n)
			}
			return err
		}, 14},
	}
	for _, step := range steps {
		require.NoError(t, step.run(), step.name)
		assert.Equal(t, step.want, f.available(t, e.ID), step.name)
	}
}

func TestReserveExactlyRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 5)
	first := f.client(t, "first@example.com")
	second := f.client(t, "second@example.com")

	cart, err := f.svc.Carts.Reserve(ctx, first, reserveIn(e.ID, 5, "20"))
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Orders[0].TicketsSelected)
	assert.Equal(t, 0, f.available(t, e.ID))

	_, err = f.svc.Carts.Reserve(ctx, second, reserveIn(e.ID, 1, "20"))
	assertKind(t, err, apperr.InsufficientCapacity)
	_, err = f.svc.Carts.Reserve(ctx, first, reserveIn(e.ID, 1, "20"))
	assertKind(t, err, apperr.InsufficientCapacity)

	// неудачные попытки ничего не меняют
	other, err := f.svc.Carts.GetCart(ctx, second)
	require.NoError(t, err)
	assert.Empty(t, other.Orders)
	cart, err = f.svc.Carts.GetCart(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Orders[0].TicketsSelected)
	assert.Equal(t, 0, f.available(t, e.ID))
}

func TestApplyRemoveCouponRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 10)
	client := f.client(t, "buyer@example.com")
	f.coupon(t, "OLD", "5", "0")
	f.coupon(t, "SAVE10", "10", "0")

	// клиент уже использовал OLD в прошлой покупке
	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 1, "20"))
	require.NoError(t, err)
	_, err = f.svc.Carts.ApplyCoupon(ctx, client, "OLD")
	require.NoError(t, err)
	resp, err := f.svc.Carts.Checkout(ctx, client)
	require.NoError(t, err)
	_, err = f.svc.Carts.Settle(ctx, resp.CheckoutAttemptID, models.OutcomeApproved)
	require.NoError(t, err)

	before, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 3, "20"))
	require.NoError(t, err)
	acc, err := f.svc.Accounts.GetClient(ctx, client)
	require.NoError(t, err)
	usedBefore := append([]string{}, acc.UsedCoupons...)
	assert.Equal(t, []string{"OLD"}, usedBefore)

	applied, err := f.svc.Carts.ApplyCoupon(ctx, client, "SAVE10")
	require.NoError(t, err)
	assertDec(t, "54", applied.TotalPriceWithDiscount)

	after, err := f.svc.Carts.RemoveCoupon(ctx, client)
	require.NoError(t, err)
	assert.False(t, after.CouponClaimed)
	assert.Empty(t, after.AppliedCouponName)
	assertDec(t, "1", after.AppliedDiscountFactor)
	assertDec(t, before.TotalPrice.String(), after.TotalPrice)
	assertDec(t, before.TotalPriceWithDiscount.String(), after.TotalPriceWithDiscount)
	assert.Equal(t, orderLines(before), orderLines(after))

	acc, err = f.svc.Accounts.GetClient(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, usedBefore, acc.UsedCoupons)
	coupon, err := f.svc.Coupons.Get(ctx, "SAVE10")
	require.NoError(t, err)
	assert.False(t, coupon.Used)

	// купон снова доступен
	_, err = f.svc.Carts.ApplyCoupon(ctx, client, "SAVE10")
	assert.NoError(t, err)
}

func TestReserveCancelRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.event(t, "20", 10)
	second := f.event(t, "7.25", 6)
	client := f.client(t, "buyer@example.com")
	f.coupon(t, "SAVE10", "10", "0")

	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(first.ID, 2, "20"))
	require.NoError(t, err)
	_, err = f.svc.Carts.ApplyCoupon(ctx, client, "SAVE10")
	require.NoError(t, err)

	tests := []struct {
		name    string
		eventID string
		tickets int
		price   string
	}{
		{"new line", second.ID, 3, "7.25"},
		{"merged into existing line", first.ID, 4, "20"},
		{"whole remaining capacity", second.ID, 6, "7.25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := f.svc.Carts.GetCart(ctx, client)
			require.NoError(t, err)
			availFirst, availSecond := f.available(t, first.ID), f.available(t, second.ID)

			_, err = f.svc.Carts.Reserve(ctx, client, reserveIn(tt.eventID, tt.tickets, tt.price))
			require.NoError(t, err)
			after, err := f.svc.Carts.Cancel(ctx, client, reserveIn(tt.eventID, tt.tickets, tt.price))
			require.NoError(t, err)

			assert.Equal(t, orderLines(before), orderLines(after))
			assertDec(t, before.TotalPrice.String(), after.TotalPrice)
			assertDec(t, before.TotalPriceWithDiscount.String(), after.TotalPriceWithDiscount)
			assert.Equal(t, before.AppliedCouponName, after.AppliedCouponName)
			assert.Equal(t, models.CartOpen, after.Status)
			assert.Equal(t, availFirst, f.available(t, first.ID))
			assert.Equal(t, availSecond, f.available(t, second.ID))
		})
	}
}

func TestCheckoutDeclinedReopensCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "20", 10)
	client := f.client(t, "buyer@example.com")

	_, err := f.svc.Carts.Reserve(ctx, client, reserveIn(e.ID, 3, "20"))
	require.NoError(t, err)

	f.gateway.err = apperr.New(apperr.PaymentRejected, "payment was declined")
	_, err = f.svc.Carts.Checkout(ctx, client)
	assertKind(t, err, apperr.PaymentRejected)

	cart, err := f.svc.Carts.GetCart(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, models.CartOpen, cart.Status)
	assert.Len(t, cart.Orders, 1)
	assert.Equal(t, 7, f.available(t, e.ID))
}
