package cache

import (
	"testing"
	"time"

	"eventcart/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestPageKeyDependsOnVersionAndFilter(t *testing.T) {
	from := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
	f := models.EventFilter{Name: "rock", From: &from, Size: 20}

	assert.Equal(t, PageKey(1, f), PageKey(1, f))
	assert.NotEqual(t, PageKey(1, f), PageKey(2, f))

	other := f
	other.Page = 1
	assert.NotEqual(t, PageKey(1, f), PageKey(1, other))
	assert.Contains(t, PageKey(3, f), "events:search:3:")
}
