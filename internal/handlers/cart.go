package handlers

import (
	"net/http"

	"eventcart/internal/models"
	"eventcart/internal/service"

	"github.com/gin-gonic/gin"
)

// Cart handlers. The route group checks that the caller owns :clientId.

// GetCart - GET /cart/:clientId
func (h *Handlers) GetCart(c *gin.Context) {
	cart, err := h.services.Carts.GetCart(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Cart retrieved", cart)
}

// Reserve - POST /cart/:clientId/reserve
// Зарезервировать билеты в корзину
func (h *Handlers) Reserve(c *gin.Context) {
	var req models.ReserveRequest
	if !bindJSON(c, &req) {
		return
	}

	cart, err := h.services.Carts.Reserve(c.Request.Context(), c.Param("clientId"), service.ReserveInput{
		EventID:           req.EventID,
		LocalityName:      req.LocalityName,
		TicketsSelected:   req.TicketsSelected,
		ExpectedUnitPrice: req.ExpectedUnitPrice,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Tickets reserved", cart)
}

// Cancel - POST /cart/:clientId/cancel
// Вернуть билеты из корзины
func (h *Handlers) Cancel(c *gin.Context) {
	var req models.CancelRequest
	if !bindJSON(c, &req) {
		return
	}

	cart, err := h.services.Carts.Cancel(c.Request.Context(), c.Param("clientId"), service.ReserveInput{
		EventID:           req.EventID,
		LocalityName:      req.LocalityName,
		TicketsSelected:   req.TicketsSelected,
		ExpectedUnitPrice: req.ExpectedUnitPrice,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Tickets canceled", cart)
}

// ApplyCoupon - POST /cart/:clientId/coupon
func (h *Handlers) ApplyCoupon(c *gin.Context) {
	var req models.ApplyCouponRequest
	if !bindJSON(c, &req) {
		return
	}

	cart, err := h.services.Carts.ApplyCoupon(c.Request.Context(), c.Param("clientId"), req.CouponName)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Coupon applied", cart)
}

// RemoveCoupon - DELETE /cart/:clientId/coupon
func (h *Handlers) RemoveCoupon(c *gin.Context) {
	cart, err := h.services.Carts.RemoveCoupon(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Coupon removed", cart)
}

// Checkout - POST /cart/:clientId/checkout
// Оформить заказ и получить платёж
func (h *Handlers) Checkout(c *gin.Context) {
	resp, err := h.services.Carts.Checkout(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Checkout started", resp)
}
