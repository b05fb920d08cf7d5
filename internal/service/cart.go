package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperr "eventcart/internal/errors"
	"eventcart/internal/logger"
	"eventcart/internal/metrics"
	"eventcart/internal/models"
	"eventcart/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartService is the ordering engine. Every public method runs its reads and
// writes in one store transaction; the payment gateway is only called after
// the checkout transaction has committed.
type CartService struct {
	store          repository.Store
	gateway        PaymentGateway
	publisher      Publisher
	now            func() time.Time
	gatewayTimeout time.Duration
	checkoutExpiry time.Duration
}

func NewCartService(d Deps) *CartService {
	return &CartService{
		store:          d.Store,
		gateway:        d.Gateway,
		publisher:      d.Publisher,
		now:            d.Now,
		gatewayTimeout: d.GatewayTimeout,
		checkoutExpiry: d.CheckoutExpiry,
	}
}

// ReserveInput - параметры резервирования и отмены
type ReserveInput struct {
	EventID         string
	LocalityName    string
	TicketsSelected int
	// ExpectedUnitPrice is mandatory for Reserve and narrows the line for Cancel.
	ExpectedUnitPrice *decimal.Decimal
}

// track records the operation outcome; use as defer track(op, &err)().
func track(op string, err *error) func() {
	started := time.Now()
	return func() {
		result := "ok"
		if *err != nil {
			result = string(apperr.KindOf(*err))
		}
		metrics.ObserveOperation(op, result, started)
	}
}

// GetCart returns the active cart of the client.
func (s *CartService) GetCart(ctx context.Context, clientID string) (*models.Cart, error) {
	cart, err := s.store.Repos().Carts.GetActiveByClient(ctx, clientID)
	if err != nil {
		return nil, storageError(err, "failed to get cart")
	}
	if cart == nil {
		return nil, apperr.New(apperr.CartNotFound, "cart not found")
	}
	return cart, nil
}

// openCart loads the active cart and requires it to be OPEN.
func openCart(ctx context.Context, r *repository.Repositories, clientID string) (*models.Cart, error) {
	cart, err := r.Carts.GetActiveByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, apperr.New(apperr.CartNotFound, "cart not found")
	}
	if cart.Status != models.CartOpen {
		return nil, apperr.New(apperr.CartNotOpen, fmt.Sprintf("cart is %s", cart.Status))
	}
	return cart, nil
}

func updateCart(ctx context.Context, r *repository.Repositories, cart *models.Cart, expected models.CartStatus) error {
	err := r.Carts.Update(ctx, cart, expected)
	if errors.Is(err, repository.ErrConflict) {
		return apperr.New(apperr.CartNotOpen, "cart was changed concurrently")
	}
	return err
}

func capacityError(err error) error {
	switch {
	case errors.Is(err, repository.ErrInsufficientCapacity):
		return apperr.New(apperr.InsufficientCapacity, "not enough tickets left")
	case errors.Is(err, repository.ErrLocalityNotFound):
		return apperr.New(apperr.LocalityNotFound, "locality not found")
	default:
		return err
	}
}

// Reserve takes tickets from a locality and puts them into the client's cart.
func (s *CartService) Reserve(ctx context.Context, clientID string, in ReserveInput) (cart *models.Cart, err error) {
	defer track("reserve", &err)()
	if in.TicketsSelected <= 0 {
		return nil, apperr.New(apperr.ValidationFailed, "ticketsSelected must be positive")
	}
	if in.ExpectedUnitPrice == nil {
		return nil, apperr.New(apperr.ValidationFailed, "expectedUnitPrice is required")
	}
	now := s.now()

	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		event, err := r.Events.GetByID(ctx, in.EventID)
		if err != nil {
			return err
		}
		if event == nil {
			return apperr.New(apperr.EventNotFound, "event not found")
		}
		if !event.OpenForSale(now) {
			return apperr.New(apperr.EventClosed, "event is not available for purchase")
		}

		locality := event.Locality(in.LocalityName)
		if locality == nil {
			return apperr.New(apperr.LocalityNotFound, "locality not found")
		}
		if !locality.Price.Equal(*in.ExpectedUnitPrice) {
			return apperr.New(apperr.PriceStale, fmt.Sprintf("locality price is %s", locality.Price.StringFixed(2)))
		}
		if locality.RemainingCapacity < in.TicketsSelected {
			return apperr.New(apperr.InsufficientCapacity, "not enough tickets left")
		}

		// условное обновление: параллельный резерв мог уже забрать места
		if err := r.Events.AdjustLocalityCapacity(ctx, in.EventID, in.LocalityName, -in.TicketsSelected); err != nil {
			return capacityError(err)
		}

		c, err := openCart(ctx, r, clientID)
		if err != nil {
			return err
		}

		if i := c.FindOrder(in.EventID, in.LocalityName, locality.Price); i >= 0 {
			c.Orders[i].TicketsSelected += in.TicketsSelected
		} else {
			c.Orders = append(c.Orders, models.LocalityOrder{
				EventID:         in.EventID,
				LocalityName:    in.LocalityName,
				TicketsSelected: in.TicketsSelected,
				UnitPrice:       locality.Price,
			})
		}
		c.Recalculate()
		c.UpdatedAt = now

		if err := updateCart(ctx, r, c, models.CartOpen); err != nil {
			return err
		}
		cart = c
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to reserve tickets")
	}

	logger.WithContext(ctx).Info("Tickets reserved",
		"cart_id", cart.ID, "event_id", in.EventID, "locality", in.LocalityName, "tickets", in.TicketsSelected)
	publish(ctx, s.publisher, models.SubjectCartReserved, models.CartChangedEvent{
		ClientID:        clientID,
		CartID:          cart.ID,
		EventID:         in.EventID,
		LocalityName:    in.LocalityName,
		TicketsSelected: in.TicketsSelected,
		Timestamp:       now,
	})
	return cart, nil
}

// Cancel returns tickets from the cart to the locality.
func (s *CartService) Cancel(ctx context.Context, clientID string, in ReserveInput) (cart *models.Cart, err error) {
	defer track("cancel", &err)()
	if in.TicketsSelected <= 0 {
		return nil, apperr.New(apperr.ValidationFailed, "ticketsSelected must be positive")
	}
	now := s.now()

	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		c, err := openCart(ctx, r, clientID)
		if err != nil {
			return err
		}

		idx, err := findCancelable(c, in)
		if err != nil {
			return err
		}

		event, err := r.Events.GetByID(ctx, in.EventID)
		if err != nil {
			return err
		}
		if event == nil {
			return apperr.New(apperr.EventNotFound, "event not found")
		}

		err = r.Events.AdjustLocalityCapacity(ctx, in.EventID, in.LocalityName, in.TicketsSelected)
		switch {
		case errors.Is(err, repository.ErrLocalityNotFound):
			// зону удалили после резерва: возвращать места некуда
			logger.WithContext(ctx).Warn("Locality removed, tickets dropped without restoring capacity",
				"event_id", in.EventID, "locality", in.LocalityName)
		case err != nil:
			return err
		}

		c.Orders[idx].TicketsSelected -= in.TicketsSelected
		if c.Orders[idx].TicketsSelected == 0 {
			c.Orders = append(c.Orders[:idx], c.Orders[idx+1:]...)
		}
		c.Recalculate()
		if len(c.Orders) == 0 {
			c.ClearCoupon()
		}
		c.UpdatedAt = now

		if err := updateCart(ctx, r, c, models.CartOpen); err != nil {
			return err
		}
		cart = c
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to cancel tickets")
	}

	logger.WithContext(ctx).Info("Tickets canceled",
		"cart_id", cart.ID, "event_id", in.EventID, "locality", in.LocalityName, "tickets", in.TicketsSelected)
	publish(ctx, s.publisher, models.SubjectCartCanceled, models.CartChangedEvent{
		ClientID:        clientID,
		CartID:          cart.ID,
		EventID:         in.EventID,
		LocalityName:    in.LocalityName,
		TicketsSelected: in.TicketsSelected,
		Timestamp:       now,
	})
	return cart, nil
}

func findCancelable(c *models.Cart, in ReserveInput) (int, error) {
	found := false
	for i, o := range c.Orders {
		if o.EventID != in.EventID || o.LocalityName != in.LocalityName {
			continue
		}
		if in.ExpectedUnitPrice != nil && !o.UnitPrice.Equal(*in.ExpectedUnitPrice) {
			continue
		}
		found = true
		if o.TicketsSelected >= in.TicketsSelected {
			return i, nil
		}
	}
	if found {
		return -1, apperr.New(apperr.InsufficientOrderQuantity, "cart holds fewer tickets than requested")
	}
	return -1, apperr.New(apperr.LocalityOrderNotFound, "no such order in cart")
}

// ApplyCoupon reserves a coupon for the cart. The coupon is consumed only when
// the purchase is recorded.
func (s *CartService) ApplyCoupon(ctx context.Context, clientID, couponName string) (cart *models.Cart, err error) {
	defer track("apply_coupon", &err)()
	now := s.now()

	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		c, err := openCart(ctx, r, clientID)
		if err != nil {
			return err
		}
		if len(c.Orders) == 0 {
			return apperr.New(apperr.EmptyCart, "cart is empty")
		}
		if c.CouponClaimed {
			return apperr.New(apperr.CouponAlreadyApplied, "a coupon is already applied")
		}

		coupon, err := r.Coupons.GetByName(ctx, couponName)
		if err != nil {
			return err
		}
		if coupon == nil {
			return apperr.New(apperr.CouponNotFound, "coupon not found")
		}
		if now.After(coupon.ExpiresAt) {
			return apperr.New(apperr.CouponExpired, "coupon has expired")
		}

		client, err := r.Clients.GetByID(ctx, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return apperr.New(apperr.AccountNotFound, "client not found")
		}
		if client.HasUsedCoupon(coupon.Name) {
			return apperr.New(apperr.CouponAlreadyUsedByClient, "coupon was already used")
		}
		if c.TotalPrice.LessThan(coupon.MinPurchaseAmount) {
			return apperr.New(apperr.CouponMinNotMet,
				fmt.Sprintf("minimum purchase amount is %s", coupon.MinPurchaseAmount.StringFixed(2)))
		}

		c.CouponClaimed = true
		c.AppliedCouponName = coupon.Name
		c.AppliedDiscountFactor = coupon.DiscountFactor()
		c.Recalculate()
		c.UpdatedAt = now

		if err := updateCart(ctx, r, c, models.CartOpen); err != nil {
			return err
		}
		cart = c
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to apply coupon")
	}
	return cart, nil
}

// RemoveCoupon clears the coupon fields of an open cart.
func (s *CartService) RemoveCoupon(ctx context.Context, clientID string) (cart *models.Cart, err error) {
	defer track("remove_coupon", &err)()

	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		c, err := openCart(ctx, r, clientID)
		if err != nil {
			return err
		}
		c.ClearCoupon()
		c.Recalculate()
		c.UpdatedAt = s.now()

		if err := updateCart(ctx, r, c, models.CartOpen); err != nil {
			return err
		}
		cart = c
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to remove coupon")
	}
	return cart, nil
}

// Checkout freezes the cart into PENDING_PAYMENT and asks the gateway for a
// preference. When the gateway fails the cart goes back to OPEN; inventory is
// kept.
func (s *CartService) Checkout(ctx context.Context, clientID string) (resp *models.CheckoutResponse, err error) {
	defer track("checkout", &err)()
	now := s.now()

	var (
		snapshot models.CheckoutSnapshot
		cartID   string
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		c, err := openCart(ctx, r, clientID)
		if err != nil {
			return err
		}
		if len(c.Orders) == 0 {
			return apperr.New(apperr.EmptyCart, "cart is empty")
		}
		if err := checkPrices(ctx, r, c); err != nil {
			return err
		}

		client, err := r.Clients.GetByID(ctx, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return apperr.New(apperr.AccountNotFound, "client not found")
		}

		c.Recalculate()
		c.CheckoutSeq++
		c.CheckoutAttemptID = fmt.Sprintf("%s-%d", c.ID, c.CheckoutSeq)
		c.CheckoutStartedAt = &now
		c.Status = models.CartPendingPayment
		c.UpdatedAt = now

		if err := updateCart(ctx, r, c, models.CartOpen); err != nil {
			return err
		}

		cartID = c.ID
		snapshot = models.CheckoutSnapshot{
			CheckoutAttemptID: c.CheckoutAttemptID,
			ClientID:          clientID,
			ClientEmail:       client.Email,
			Orders:            append([]models.LocalityOrder{}, c.Orders...),
			Total:             c.TotalPriceWithDiscount,
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to start checkout")
	}

	log := logger.WithContext(ctx).With("cart_id", cartID, "checkout_attempt_id", snapshot.CheckoutAttemptID)

	// после коммита запрос клиента уже не может отменить вызов шлюза
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.gatewayTimeout)
	defer cancel()

	pref, gerr := s.gateway.CreatePreference(gctx, snapshot)
	if gerr != nil {
		declined := apperr.Is(gerr, apperr.PaymentRejected)
		log.Error("Payment gateway failed, reopening cart", "declined", declined, "error", gerr)
		if cerr := s.reopen(context.WithoutCancel(ctx), snapshot.CheckoutAttemptID); cerr != nil {
			log.Error("Failed to reopen cart after gateway failure", "error", cerr)
		}
		if declined {
			return nil, apperr.Wrap(apperr.PaymentRejected, "payment was declined by the gateway", gerr)
		}
		return nil, apperr.Wrap(apperr.PaymentGatewayUnreachable, "payment gateway is unavailable", gerr)
	}

	err = s.store.WithinTx(context.WithoutCancel(ctx), func(ctx context.Context, r *repository.Repositories) error {
		c, err := r.Carts.GetByCheckoutAttempt(ctx, snapshot.CheckoutAttemptID)
		if err != nil {
			return err
		}
		if c == nil || c.Status != models.CartPendingPayment {
			// уже рассчитана вебхуком или ричером
			return nil
		}
		c.PreferenceID = pref.ID
		for i := range c.Orders {
			c.Orders[i].PayingOrderID = pref.ID
		}
		c.UpdatedAt = s.now()
		return updateCart(ctx, r, c, models.CartPendingPayment)
	})
	if err != nil {
		// ответ шлюза получен, попытку закроет вебхук или ричер
		log.Error("Failed to store preference id", "preference_id", pref.ID, "error", err)
	}

	log.Info("Checkout started", "preference_id", pref.ID, "amount", snapshot.Total.StringFixed(2))
	publish(ctx, s.publisher, models.SubjectCheckoutStarted, models.CheckoutStartedEvent{
		ClientID:          clientID,
		CartID:            cartID,
		CheckoutAttemptID: snapshot.CheckoutAttemptID,
		PreferenceID:      pref.ID,
		Amount:            snapshot.Total,
		Timestamp:         now,
	})

	return &models.CheckoutResponse{
		PreferenceID:      pref.ID,
		CheckoutAttemptID: snapshot.CheckoutAttemptID,
		InitPoint:         pref.InitPoint,
	}, nil
}

// checkPrices fails with PRICE_STALE when a frozen unit price no longer
// matches the live locality price.
func checkPrices(ctx context.Context, r *repository.Repositories, c *models.Cart) error {
	ids := make([]string, 0, len(c.Orders))
	for _, o := range c.Orders {
		ids = append(ids, o.EventID)
	}
	events, err := r.Events.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]*models.Event, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
	}

	for _, o := range c.Orders {
		event, ok := byID[o.EventID]
		if !ok {
			return apperr.New(apperr.EventNotFound, fmt.Sprintf("event %s no longer exists", o.EventID))
		}
		locality := event.Locality(o.LocalityName)
		if locality == nil {
			return apperr.New(apperr.LocalityNotFound, fmt.Sprintf("locality %s no longer exists", o.LocalityName))
		}
		if !locality.Price.Equal(o.UnitPrice) {
			return apperr.New(apperr.PriceStale,
				fmt.Sprintf("price of %s changed to %s", o.LocalityName, locality.Price.StringFixed(2)))
		}
	}
	return nil
}

// reopen is the compensating write for a failed gateway call.
func (s *CartService) reopen(ctx context.Context, attemptID string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		c, err := r.Carts.GetByCheckoutAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if c == nil || c.Status != models.CartPendingPayment {
			return nil
		}
		c.Status = models.CartOpen
		c.ClearCheckout()
		c.UpdatedAt = s.now()
		return updateCart(ctx, r, c, models.CartPendingPayment)
	})
}

// Settle resolves a checkout attempt. It returns applied=false when the
// attempt is unknown or already resolved; such calls change nothing.
func (s *CartService) Settle(ctx context.Context, attemptID string, outcome models.Outcome) (applied bool, err error) {
	defer track("settle", &err)()
	now := s.now()
	log := logger.WithContext(ctx).With("checkout_attempt_id", attemptID, "outcome", outcome)

	switch outcome {
	case models.OutcomeApproved, models.OutcomeRejected, models.OutcomeCanceled, models.OutcomeExpired:
	default:
		return false, apperr.New(apperr.ValidationFailed, fmt.Sprintf("unknown outcome %q", outcome))
	}

	var (
		cart     *models.Cart
		purchase *models.Purchase
		resolved *models.Cart
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		applied, cart, purchase, resolved = false, nil, nil, nil

		c, err := r.Carts.GetByCheckoutAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if c == nil {
			return nil
		}
		if c.Status != models.CartPendingPayment {
			resolved = c
			return nil
		}

		switch outcome {
		case models.OutcomeApproved:
			purchase, err = s.approve(ctx, r, c, now)
			if err != nil {
				return err
			}
		case models.OutcomeRejected, models.OutcomeCanceled:
			c.Status = models.CartOpen
			c.ClearCheckout()
		case models.OutcomeExpired:
			if err := restoreInventory(ctx, r, c); err != nil {
				return err
			}
			c.Orders = []models.LocalityOrder{}
			c.Status = models.CartOpen
			c.ClearCheckout()
			c.ClearCoupon()
			c.Recalculate()
		}
		c.UpdatedAt = now

		if err := updateCart(ctx, r, c, models.CartPendingPayment); err != nil {
			return err
		}
		if outcome == models.OutcomeApproved {
			if _, err := issueFreshCart(ctx, r, c.ClientID, now); err != nil {
				return err
			}
		}

		applied, cart = true, c
		return nil
	})
	if err != nil {
		return false, storageError(err, "failed to settle checkout")
	}

	if !applied {
		switch {
		case outcome == models.OutcomeApproved && resolved != nil && resolved.Status != models.CartPaid:
			// деньги списаны, а корзина уже отменена: нужен ручной возврат
			log.Error("Approved payment for a canceled checkout, refund required",
				"cart_id", resolved.ID,
				"client_id", resolved.ClientID,
				"cart_status", resolved.Status,
				"preference_id", resolved.PreferenceID)
			metrics.OrphanedPayments.Inc()
		case outcome == models.OutcomeApproved:
			log.Warn("Approved payment for an attempt that is not pending")
		default:
			log.Debug("Settlement ignored, attempt is not pending")
		}
		return false, nil
	}

	metrics.Settlements.WithLabelValues(string(outcome)).Inc()
	log.Info("Checkout settled", "cart_id", cart.ID, "client_id", cart.ClientID)

	publish(ctx, s.publisher, models.SubjectCheckoutSettled, models.CheckoutSettledEvent{
		ClientID:          cart.ClientID,
		CartID:            cart.ID,
		CheckoutAttemptID: attemptID,
		Outcome:           outcome,
		Timestamp:         now,
	})
	if purchase != nil {
		publish(ctx, s.publisher, models.SubjectPurchaseCompleted, models.PurchaseCompletedEvent{
			PurchaseID:             purchase.ID,
			ClientID:               purchase.ClientID,
			CouponName:             purchase.CouponName,
			TotalPrice:             purchase.TotalPrice,
			TotalPriceWithDiscount: purchase.TotalPriceWithDiscount,
			Timestamp:              now,
		})
	}
	return true, nil
}

func (s *CartService) approve(ctx context.Context, r *repository.Repositories, c *models.Cart, now time.Time) (*models.Purchase, error) {
	purchase := &models.Purchase{
		ID:                     uuid.New().String(),
		ClientID:               c.ClientID,
		CartID:                 c.ID,
		CheckoutAttemptID:      c.CheckoutAttemptID,
		PreferenceID:           c.PreferenceID,
		Orders:                 append([]models.LocalityOrder{}, c.Orders...),
		TotalPrice:             c.TotalPrice,
		TotalPriceWithDiscount: c.TotalPriceWithDiscount,
		CouponName:             c.AppliedCouponName,
		PurchasedAt:            now,
	}
	if err := r.Purchases.Create(ctx, purchase); err != nil {
		return nil, err
	}

	if c.CouponClaimed {
		if err := r.Clients.AddUsedCoupon(ctx, c.ClientID, c.AppliedCouponName); err != nil {
			return nil, err
		}
		if err := r.Coupons.MarkConsumed(ctx, c.AppliedCouponName); err != nil {
			return nil, err
		}
	}

	c.Status = models.CartPaid
	return purchase, nil
}

func restoreInventory(ctx context.Context, r *repository.Repositories, c *models.Cart) error {
	for _, o := range c.Orders {
		err := r.Events.AdjustLocalityCapacity(ctx, o.EventID, o.LocalityName, o.TicketsSelected)
		switch {
		case errors.Is(err, repository.ErrLocalityNotFound):
			logger.WithContext(ctx).Warn("Locality removed, capacity not restored",
				"event_id", o.EventID, "locality", o.LocalityName, "tickets", o.TicketsSelected)
		case err != nil:
			return err
		}
	}
	return nil
}

// issueFreshCart gives the client a new OPEN cart once the previous one has
// left the active states.
func issueFreshCart(ctx context.Context, r *repository.Repositories, clientID string, now time.Time) (*models.Cart, error) {
	fresh := models.NewCart(uuid.New().String(), clientID, now)
	if err := r.Carts.Create(ctx, fresh); err != nil {
		return nil, err
	}

	client, err := r.Clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, apperr.New(apperr.AccountNotFound, "client not found")
	}
	client.CartID = fresh.ID
	if err := r.Clients.Update(ctx, client); err != nil {
		return nil, err
	}
	return fresh, nil
}

// ExpireStale settles as EXPIRED every checkout pending for longer than the
// configured expiry. It returns how many attempts were expired.
func (s *CartService) ExpireStale(ctx context.Context, limit int) (int, error) {
	before := s.now().Add(-s.checkoutExpiry)
	carts, err := s.store.Repos().Carts.ListPendingBefore(ctx, before, limit)
	if err != nil {
		return 0, storageError(err, "failed to list pending carts")
	}

	expired := 0
	for _, c := range carts {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		applied, err := s.Settle(ctx, c.CheckoutAttemptID, models.OutcomeExpired)
		if err != nil {
			logger.WithContext(ctx).Error("Failed to expire checkout",
				"cart_id", c.ID, "checkout_attempt_id", c.CheckoutAttemptID, "error", err)
			continue
		}
		if applied {
			expired++
			metrics.ExpiredCheckouts.Inc()
		}
	}
	return expired, nil
}

// ResetCart cancels the client's active cart, returns its tickets and issues
// a fresh OPEN cart. Used by administrators.
func (s *CartService) ResetCart(ctx context.Context, clientID string) (*models.Cart, error) {
	logger.WithContext(ctx).Info("Starting cart reset", "client_id", clientID)
	now := s.now()

	var old, fresh *models.Cart
	err := s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		c, err := r.Carts.GetActiveByClient(ctx, clientID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.New(apperr.CartNotFound, "cart not found")
		}
		prev := c.Status

		if err := restoreInventory(ctx, r, c); err != nil {
			return err
		}
		// попытка оплаты остаётся на отменённой корзине для сверки с шлюзом
		c.Status = models.CartCanceled
		c.UpdatedAt = now
		if err := updateCart(ctx, r, c, prev); err != nil {
			return err
		}
		fresh, err = issueFreshCart(ctx, r, clientID, now)
		old = c
		return err
	})
	if err != nil {
		logger.WithContext(ctx).Error("Failed to reset cart", "client_id", clientID, "error", err)
		return nil, storageError(err, "failed to reset cart")
	}

	logger.WithContext(ctx).Info("Cart reset completed", "old_cart_id", old.ID, "new_cart_id", fresh.ID)
	publish(ctx, s.publisher, models.SubjectCartReset, models.CartResetEvent{
		ClientID:  clientID,
		OldCartID: old.ID,
		NewCartID: fresh.ID,
		Timestamp: now,
	})
	return fresh, nil
}
