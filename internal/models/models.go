package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FlexibleBool - гибкий boolean тип, поддерживающий строки и числа
type FlexibleBool bool

// UnmarshalJSON поддерживает парсинг boolean из строки, числа и boolean
func (fb *FlexibleBool) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)

	switch strings.ToLower(str) {
	case "true", "1", "yes", "on":
		*fb = true
	case "false", "0", "no", "off":
		*fb = false
	default:
		return fmt.Errorf("invalid boolean value: %s", str)
	}
	return nil
}

// Bool возвращает bool значение
func (fb FlexibleBool) Bool() bool {
	return bool(fb)
}

// APIResponse - общий конверт ответа
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

const (
	StatusSuccess = "Success"
	StatusError   = "Error"
)

// ReserveRequest - модель для резервирования билетов в корзину
type ReserveRequest struct {
	EventID           string           `json:"eventId" binding:"required"`
	LocalityName      string           `json:"localityName" binding:"required"`
	TicketsSelected   int              `json:"ticketsSelected" binding:"required,min=1"`
	ExpectedUnitPrice *decimal.Decimal `json:"expectedUnitPrice" binding:"required"`
}

// CancelRequest - модель для отмены билетов; цена уточняет строку корзины
type CancelRequest struct {
	EventID           string           `json:"eventId" binding:"required"`
	LocalityName      string           `json:"localityName" binding:"required"`
	TicketsSelected   int              `json:"ticketsSelected" binding:"required,min=1"`
	ExpectedUnitPrice *decimal.Decimal `json:"expectedUnitPrice"`
}

type ApplyCouponRequest struct {
	CouponName string `json:"couponName" binding:"required"`
}

// CheckoutResponse - ответ на оформление заказа
type CheckoutResponse struct {
	PreferenceID      string `json:"preferenceId"`
	CheckoutAttemptID string `json:"checkoutAttemptId"`
	InitPoint         string `json:"initPoint,omitempty"`
}

// RegisterClientRequest - модель регистрации клиента
type RegisterClientRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Password string `json:"password" binding:"required,min=8"`
}

type ClientLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse - выданный токен доступа
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Subject   string    `json:"subject"`
	Role      Role      `json:"role"`
	UserID    string    `json:"userId"`
}

type VerifyRequest struct {
	Code string `json:"code" binding:"required"`
}

// RecoveryCodeRequest - запрос кода восстановления пароля
type RecoveryCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  Role   `json:"role"`
}

type RecoverPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Role        Role   `json:"role"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// UpdateClientRequest - частичное обновление профиля
type UpdateClientRequest struct {
	Email    *string `json:"email" binding:"omitempty,email"`
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	Address  *string `json:"address"`
	Password *string `json:"password" binding:"omitempty,min=8"`
}

// UpdateAdminRequest - администратор меняет только email, username неизменяем
type UpdateAdminRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// UpdateClientResponse carries a reissued token when the email changed
type UpdateClientResponse struct {
	Client *Client        `json:"client"`
	Token  *TokenResponse `json:"token,omitempty"`
}

// LocalityRequest - описание зоны при создании события
type LocalityRequest struct {
	Name          string           `json:"name" binding:"required"`
	Price         *decimal.Decimal `json:"price" binding:"required"`
	TotalCapacity int              `json:"totalCapacity" binding:"required,min=1"`
}

// EventRequest - модель для создания и обновления события
type EventRequest struct {
	Name                 string            `json:"name" binding:"required"`
	City                 string            `json:"city" binding:"required"`
	Address              string            `json:"address"`
	EventDate            time.Time         `json:"eventDate" binding:"required"`
	ImageURL             string            `json:"imageUrl"`
	Type                 EventType         `json:"type" binding:"required"`
	AvailableForPurchase *FlexibleBool     `json:"availableForPurchase"`
	Localities           []LocalityRequest `json:"localities" binding:"required,min=1,dive"`
}

// CouponRequest - модель для создания и обновления промокода
type CouponRequest struct {
	Name              string           `json:"name" binding:"required"`
	DiscountPercent   *decimal.Decimal `json:"discountPercent" binding:"required"`
	ExpiresAt         time.Time        `json:"expiresAt" binding:"required"`
	MinPurchaseAmount *decimal.Decimal `json:"minPurchaseAmount"`
}

// EventFilter - условия поиска событий; пустые поля не фильтруют
type EventFilter struct {
	Name string     `json:"name,omitempty"`
	City string     `json:"city,omitempty"`
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
	Type EventType  `json:"type,omitempty"`
	Page int        `json:"page"`
	Size int        `json:"size"`
}

// Offset returns the number of rows to skip.
func (f EventFilter) Offset() int {
	return f.Page * f.Size
}

// Page - страница результатов с общим количеством
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// PaymentNotificationPayload - модель для webhook уведомлений от платежного шлюза
type PaymentNotificationPayload struct {
	PaymentID string    `json:"paymentId" binding:"required"`
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	TeamSlug  string    `json:"teamSlug"`
	Timestamp time.Time `json:"timestamp"`
}

// Preference - созданный на стороне шлюза платёж
type Preference struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CheckoutSnapshot is the frozen cart handed to the payment gateway
type CheckoutSnapshot struct {
	CheckoutAttemptID string
	ClientID          string
	ClientEmail       string
	Orders            []LocalityOrder
	Total             decimal.Decimal
}
