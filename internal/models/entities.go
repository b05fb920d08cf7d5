package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType - тип события
type EventType string

const (
	EventTypeConcert    EventType = "CONCERT"
	EventTypeTheater    EventType = "THEATER"
	EventTypeFestival   EventType = "FESTIVAL"
	EventTypeSport      EventType = "SPORT"
	EventTypeConference EventType = "CONFERENCE"
	EventTypeOther      EventType = "OTHER"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeConcert, EventTypeTheater, EventTypeFestival, EventTypeSport, EventTypeConference, EventTypeOther:
		return true
	}
	return false
}

type Role string

const (
	RoleClient Role = "CLIENT"
	RoleAdmin  Role = "ADMIN"
)

type CartStatus string

const (
	CartOpen           CartStatus = "OPEN"
	CartPendingPayment CartStatus = "PENDING_PAYMENT"
	CartPaid           CartStatus = "PAID"
	CartCanceled       CartStatus = "CANCELED"
)

// Outcome - результат расчёта по попытке оплаты
type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomeRejected Outcome = "REJECTED"
	OutcomeCanceled Outcome = "CANCELED"
	OutcomeExpired  Outcome = "EXPIRED"
)

// Event represents an event with its seating tiers
type Event struct {
	ID                   string     `json:"id" db:"id"`
	Name                 string     `json:"name" db:"name"`
	City                 string     `json:"city" db:"city"`
	Address              string     `json:"address" db:"address"`
	EventDate            time.Time  `json:"eventDate" db:"event_date"`
	ImageURL             string     `json:"imageUrl" db:"image_url"`
	Type                 EventType  `json:"type" db:"event_type"`
	AvailableForPurchase bool       `json:"availableForPurchase" db:"available_for_purchase"`
	TotalAvailablePlaces int        `json:"totalAvailablePlaces" db:"total_available_places"`
	Localities           []Locality `json:"localities"` // Not from events table, filled separately
	CreatedAt            time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time  `json:"updatedAt" db:"updated_at"`
}

// Locality is a named seating tier of an event
type Locality struct {
	Name              string          `json:"name" db:"name"`
	Price             decimal.Decimal `json:"price" db:"price"`
	RemainingCapacity int             `json:"remainingCapacity" db:"remaining_capacity"`
	TotalCapacity     int             `json:"totalCapacity" db:"total_capacity"`
}

// Locality returns the tier with the given name, or nil.
func (e *Event) Locality(name string) *Locality {
	for i := range e.Localities {
		if e.Localities[i].Name == name {
			return &e.Localities[i]
		}
	}
	return nil
}

// RecountAvailable recomputes TotalAvailablePlaces from the localities.
func (e *Event) RecountAvailable() {
	total := 0
	for _, l := range e.Localities {
		total += l.RemainingCapacity
	}
	e.TotalAvailablePlaces = total
}

// OpenForSale reports whether tickets may still be reserved at now.
func (e *Event) OpenForSale(now time.Time) bool {
	return e.AvailableForPurchase && e.EventDate.After(now)
}

// Client represents a registered buyer
type Client struct {
	ID                    string     `json:"id" db:"id"`
	Email                 string     `json:"email" db:"email"`
	Name                  string     `json:"name" db:"name"`
	Phone                 string     `json:"phone" db:"phone"`
	Address               string     `json:"address" db:"address"`
	PasswordHash          string     `json:"-" db:"password_hash"`
	Active                bool       `json:"active" db:"active"`
	VerificationCode      string     `json:"-" db:"verification_code"`
	VerificationExpiresAt *time.Time `json:"-" db:"verification_expires_at"`
	Role                  Role       `json:"role" db:"role"`
	CartID                string     `json:"cartId" db:"cart_id"`
	UsedCoupons           []string   `json:"usedCoupons"` // Not from clients table, filled separately
	CreatedAt             time.Time  `json:"createdAt" db:"created_at"`
}

// HasUsedCoupon reports whether the coupon was already consumed by the client.
func (c *Client) HasUsedCoupon(name string) bool {
	for _, used := range c.UsedCoupons {
		if used == name {
			return true
		}
	}
	return false
}

// Admin represents a back-office user
type Admin struct {
	ID                    string     `json:"id" db:"id"`
	Username              string     `json:"username" db:"username"`
	Email                 string     `json:"email" db:"email"`
	PasswordHash          string     `json:"-" db:"password_hash"`
	VerificationCode      string     `json:"-" db:"verification_code"`
	VerificationExpiresAt *time.Time `json:"-" db:"verification_expires_at"`
	Role                  Role       `json:"role" db:"role"`
}

// LocalityOrder is a line of a cart
type LocalityOrder struct {
	EventID         string          `json:"eventId"`
	LocalityName    string          `json:"localityName"`
	TicketsSelected int             `json:"ticketsSelected"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	PayingOrderID   string          `json:"payingOrderId,omitempty"`
}

// Cart is the purchase basket of a client
type Cart struct {
	ID                     string          `json:"id" db:"id"`
	ClientID               string          `json:"clientId" db:"client_id"`
	Orders                 []LocalityOrder `json:"orders" db:"orders"`
	TotalPrice             decimal.Decimal `json:"totalPrice" db:"total_price"`
	CouponClaimed          bool            `json:"couponClaimed" db:"coupon_claimed"`
	AppliedCouponName      string          `json:"appliedCouponName,omitempty" db:"applied_coupon_name"`
	AppliedDiscountFactor  decimal.Decimal `json:"appliedDiscountFactor" db:"applied_discount_factor"`
	TotalPriceWithDiscount decimal.Decimal `json:"totalPriceWithDiscount" db:"total_price_with_discount"`
	Status                 CartStatus      `json:"status" db:"status"`
	CheckoutSeq            int64           `json:"-" db:"checkout_seq"`
	CheckoutAttemptID      string          `json:"checkoutAttemptId,omitempty" db:"checkout_attempt_id"`
	CheckoutStartedAt      *time.Time      `json:"checkoutStartedAt,omitempty" db:"checkout_started_at"`
	PreferenceID           string          `json:"preferenceId,omitempty" db:"preference_id"`
	CreatedAt              time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt              time.Time       `json:"updatedAt" db:"updated_at"`
}

// NewCart returns an empty OPEN cart.
func NewCart(id, clientID string, now time.Time) *Cart {
	return &Cart{
		ID:                     id,
		ClientID:               clientID,
		Orders:                 []LocalityOrder{},
		TotalPrice:             decimal.Zero,
		AppliedDiscountFactor:  decimal.NewFromInt(1),
		TotalPriceWithDiscount: decimal.Zero,
		Status:                 CartOpen,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// FindOrder returns the index of the line matching the key, or -1.
func (c *Cart) FindOrder(eventID, localityName string, unitPrice decimal.Decimal) int {
	for i, o := range c.Orders {
		if o.EventID == eventID && o.LocalityName == localityName && o.UnitPrice.Equal(unitPrice) {
			return i
		}
	}
	return -1
}

// Recalculate recomputes totals from the lines.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	for i := range c.Orders {
		c.Orders[i].Subtotal = c.Orders[i].UnitPrice.Mul(decimal.NewFromInt(int64(c.Orders[i].TicketsSelected)))
		total = total.Add(c.Orders[i].Subtotal)
	}
	c.TotalPrice = total
	if c.CouponClaimed {
		c.TotalPriceWithDiscount = total.Mul(c.AppliedDiscountFactor).Round(2)
	} else {
		c.TotalPriceWithDiscount = total
	}
}

// ClearCoupon drops the applied coupon and restores the gross total.
func (c *Cart) ClearCoupon() {
	c.CouponClaimed = false
	c.AppliedCouponName = ""
	c.AppliedDiscountFactor = decimal.NewFromInt(1)
	c.TotalPriceWithDiscount = c.TotalPrice
}

// ClearCheckout forgets the payment attempt data; the sequence stays.
func (c *Cart) ClearCheckout() {
	c.CheckoutAttemptID = ""
	c.CheckoutStartedAt = nil
	c.PreferenceID = ""
	for i := range c.Orders {
		c.Orders[i].PayingOrderID = ""
	}
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Orders = append([]LocalityOrder{}, c.Orders...)
	if c.CheckoutStartedAt != nil {
		t := *c.CheckoutStartedAt
		cp.CheckoutStartedAt = &t
	}
	return &cp
}

// Coupon - промокод
type Coupon struct {
	Name              string          `json:"name" db:"name"`
	DiscountPercent   decimal.Decimal `json:"discountPercent" db:"discount_percent"`
	ExpiresAt         time.Time       `json:"expiresAt" db:"expires_at"`
	MinPurchaseAmount decimal.Decimal `json:"minPurchaseAmount" db:"min_purchase_amount"`
	Used              bool            `json:"used" db:"used"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
}

// DiscountFactor returns 1 - percent/100.
func (c *Coupon) DiscountFactor() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(c.DiscountPercent.Div(decimal.NewFromInt(100)))
}

// Purchase is the immutable record of a paid cart
type Purchase struct {
	ID                     string          `json:"id" db:"id"`
	ClientID               string          `json:"clientId" db:"client_id"`
	CartID                 string          `json:"cartId" db:"cart_id"`
	CheckoutAttemptID      string          `json:"checkoutAttemptId" db:"checkout_attempt_id"`
	PreferenceID           string          `json:"preferenceId" db:"preference_id"`
	Orders                 []LocalityOrder `json:"orders" db:"orders"`
	TotalPrice             decimal.Decimal `json:"totalPrice" db:"total_price"`
	TotalPriceWithDiscount decimal.Decimal `json:"totalPriceWithDiscount" db:"total_price_with_discount"`
	CouponName             string          `json:"couponName,omitempty" db:"coupon_name"`
	PurchasedAt            time.Time       `json:"purchasedAt" db:"purchased_at"`
}
