package errors

import (
	"errors"
	"net/http"
)

// Kind is a stable error identifier returned to API callers.
type Kind string

const (
	AuthUnauthorized Kind = "AUTH_UNAUTHORIZED"
	AuthExpired      Kind = "AUTH_EXPIRED"
	AuthForbidden    Kind = "AUTH_FORBIDDEN"

	AccountNotFound     Kind = "ACCOUNT_NOT_FOUND"
	AccountInactive     Kind = "ACCOUNT_INACTIVE"
	AccountExists       Kind = "ACCOUNT_EXISTS"
	VerificationBadCode Kind = "VERIFICATION_BAD_CODE"
	VerificationExpired Kind = "VERIFICATION_EXPIRED"
	InvalidCredentials  Kind = "INVALID_CREDENTIALS"

	EventNotFound    Kind = "EVENT_NOT_FOUND"
	EventClosed      Kind = "EVENT_CLOSED"
	EventInvalid     Kind = "EVENT_INVALID"
	LocalityNotFound Kind = "LOCALITY_NOT_FOUND"

	InsufficientCapacity Kind = "INSUFFICIENT_CAPACITY"
	PriceStale           Kind = "PRICE_STALE"

	CartNotFound              Kind = "CART_NOT_FOUND"
	CartNotOpen               Kind = "CART_NOT_OPEN"
	EmptyCart                 Kind = "EMPTY_CART"
	LocalityOrderNotFound     Kind = "LOCALITY_ORDER_NOT_FOUND"
	InsufficientOrderQuantity Kind = "INSUFFICIENT_ORDER_QUANTITY"

	CouponNotFound            Kind = "COUPON_NOT_FOUND"
	CouponExpired             Kind = "COUPON_EXPIRED"
	CouponMinNotMet           Kind = "COUPON_MIN_NOT_MET"
	CouponAlreadyApplied      Kind = "COUPON_ALREADY_APPLIED"
	CouponAlreadyUsedByClient Kind = "COUPON_ALREADY_USED_BY_CLIENT"
	CouponDuplicate           Kind = "COUPON_DUPLICATE"

	PaymentGatewayUnreachable Kind = "PAYMENT_GATEWAY_UNREACHABLE"
	PaymentRejected           Kind = "PAYMENT_REJECTED"

	ValidationFailed Kind = "VALIDATION_FAILED"
	Internal         Kind = "INTERNAL"
)

var ErrUnauthorized = New(AuthUnauthorized, "user is not authorized")
var ErrForbidden = New(AuthForbidden, "operation is forbidden for user")

// Error carries a Kind and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or Internal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the client-safe message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a kind to the response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case AuthUnauthorized, AuthExpired, AccountInactive, VerificationBadCode, VerificationExpired, InvalidCredentials:
		return http.StatusUnauthorized
	case AuthForbidden:
		return http.StatusForbidden
	case AccountNotFound, EventNotFound, LocalityNotFound, CartNotFound, LocalityOrderNotFound, CouponNotFound:
		return http.StatusNotFound
	case CouponAlreadyApplied, CouponDuplicate, AccountExists, InsufficientCapacity, CartNotOpen, PriceStale:
		return http.StatusConflict
	case EventClosed, EventInvalid, EmptyCart, InsufficientOrderQuantity, CouponExpired, CouponMinNotMet,
		CouponAlreadyUsedByClient, ValidationFailed, PaymentRejected:
		return http.StatusBadRequest
	case PaymentGatewayUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
