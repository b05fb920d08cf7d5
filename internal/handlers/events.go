package handlers

import (
	"net/http"
	"time"

	apperr "eventcart/internal/errors"
	"eventcart/internal/models"

	"github.com/gin-gonic/gin"
)

// parseTimeParam accepts RFC 3339 timestamps and plain dates. A plain date
// in 'to' covers the whole day.
func parseTimeParam(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// SearchEvents - GET /events
// Поиск событий с фильтрами и пагинацией
func (h *Handlers) SearchEvents(c *gin.Context) {
	from, err := parseTimeParam(c.Query("from"), false)
	if err != nil {
		fail(c, apperr.New(apperr.ValidationFailed, "from must be a date or RFC 3339 timestamp"))
		return
	}
	to, err := parseTimeParam(c.Query("to"), true)
	if err != nil {
		fail(c, apperr.New(apperr.ValidationFailed, "to must be a date or RFC 3339 timestamp"))
		return
	}
	page, valid := queryInt(c, "page", 0)
	if !valid {
		return
	}
	size, valid := queryInt(c, "size", 0)
	if !valid {
		return
	}

	result, err := h.services.Events.Search(c.Request.Context(), models.EventFilter{
		Name: c.Query("name"),
		City: c.Query("city"),
		From: from,
		To:   to,
		Type: models.EventType(c.Query("type")),
		Page: page,
		Size: size,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Events retrieved", result)
}

// GetEvent - GET /events/:eventId
func (h *Handlers) GetEvent(c *gin.Context) {
	event, err := h.services.Events.Get(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Event retrieved", event)
}
