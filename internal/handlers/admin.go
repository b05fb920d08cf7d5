package handlers

import (
	"net/http"

	"eventcart/internal/models"

	"github.com/gin-gonic/gin"
)

// Admin handlers. The route group requires the ADMIN role.

// CreateEvent - POST /admin/events
func (h *Handlers) CreateEvent(c *gin.Context) {
	var req models.EventRequest
	if !bindJSON(c, &req) {
		return
	}

	event, err := h.services.Events.Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "Event created", event)
}

// UpdateEvent - PUT /admin/events/:eventId
// Цены меняются сразу; корзины со старой ценой получат PRICE_STALE на оформлении
func (h *Handlers) UpdateEvent(c *gin.Context) {
	var req models.EventRequest
	if !bindJSON(c, &req) {
		return
	}

	event, err := h.services.Events.Update(c.Request.Context(), c.Param("eventId"), &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Event updated", event)
}

// DeleteEvent - DELETE /admin/events/:eventId
func (h *Handlers) DeleteEvent(c *gin.Context) {
	if err := h.services.Events.Delete(c.Request.Context(), c.Param("eventId")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Event deleted", nil)
}

// DeleteAllEvents - DELETE /admin/events
// Ничего не удаляет, если хотя бы у одного события есть занятые билеты
func (h *Handlers) DeleteAllEvents(c *gin.Context) {
	n, err := h.services.Events.DeleteAll(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Events deleted", gin.H{"deleted": n})
}

// UpdateAdmin - PUT /admin/admins/:adminId
func (h *Handlers) UpdateAdmin(c *gin.Context) {
	var req models.UpdateAdminRequest
	if !bindJSON(c, &req) {
		return
	}

	admin, err := h.services.Accounts.UpdateAdmin(c.Request.Context(), c.Param("adminId"), &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Admin updated", admin)
}

// DeleteAdmin - DELETE /admin/admins/:adminId
func (h *Handlers) DeleteAdmin(c *gin.Context) {
	if err := h.services.Accounts.DeleteAdmin(c.Request.Context(), c.Param("adminId")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Admin deleted", nil)
}

// ListCoupons - GET /admin/coupons
func (h *Handlers) ListCoupons(c *gin.Context) {
	coupons, err := h.services.Coupons.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Coupons retrieved", coupons)
}

// GetCoupon - GET /admin/coupons/:name
func (h *Handlers) GetCoupon(c *gin.Context) {
	coupon, err := h.services.Coupons.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Coupon retrieved", coupon)
}

// CreateCoupon - POST /admin/coupons
func (h *Handlers) CreateCoupon(c *gin.Context) {
	var req models.CouponRequest
	if !bindJSON(c, &req) {
		return
	}

	coupon, err := h.services.Coupons.Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "Coupon created", coupon)
}

// UpdateCoupon - PUT /admin/coupons/:name
func (h *Handlers) UpdateCoupon(c *gin.Context) {
	var req models.CouponRequest
	if !bindJSON(c, &req) {
		return
	}

	coupon, err := h.services.Coupons.Update(c.Request.Context(), c.Param("name"), &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Coupon updated", coupon)
}

// DeleteCoupon - DELETE /admin/coupons/:name
func (h *Handlers) DeleteCoupon(c *gin.Context) {
	if err := h.services.Coupons.Delete(c.Request.Context(), c.Param("name")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Coupon deleted", nil)
}

// DeleteAllCoupons - DELETE /admin/coupons
func (h *Handlers) DeleteAllCoupons(c *gin.Context) {
	n, err := h.services.Coupons.DeleteAll(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Coupons deleted", gin.H{"deleted": n})
}

// ResetCart - POST /admin/carts/:clientId/reset
// Отменить корзину клиента и вернуть билеты
func (h *Handlers) ResetCart(c *gin.Context) {
	cart, err := h.services.Carts.ResetCart(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Cart reset", cart)
}
