package validation_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"eventcart/internal/api"
	"eventcart/internal/config"
	"eventcart/internal/external"
	"eventcart/internal/repository/memory"
	"eventcart/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAllAgainstServer(t *testing.T) {
	cfg := &config.Config{
		GinMode:     "test",
		StoreDriver: config.StoreMemory,
		Auth:        config.AuthConfig{JWTSecret: "s", TokenTTL: time.Hour},
	}
	srv := api.NewServerWithDeps(cfg, api.Dependencies{
		Store:    memory.New(),
		Payments: external.NewPaymentClient(external.PaymentConfig{}),
	})
	require.NoError(t, srv.Services().Accounts.BootstrapAdmin(context.Background(), "admin", "admin@example.com", "adminpass"))

	ts := httptest.NewServer(srv.GetRouter())
	defer ts.Close()

	v := validation.NewSmokeValidator(ts.URL, "admin", "adminpass")
	assert.NoError(t, v.ValidateAll())

	v = validation.NewSmokeValidator(ts.URL, "admin", "wrong")
	assert.Error(t, v.ValidateAll())
}
