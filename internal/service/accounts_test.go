package service

import (
	"context"
	"testing"
	"time"

	apperr "eventcart/internal/errors"
	"eventcart/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) storedCode(t *testing.T, email string) string {
	t.Helper()
	c, err := f.store.Repos().Clients.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c.VerificationCode
}

func TestRegisterAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.Accounts.RegisterClient(ctx, &models.RegisterClientRequest{
		Email: " Ana@Example.COM ", Name: "Ana", Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", c.Email)
	assert.False(t, c.Active)
	require.Len(t, f.notifier.sent, 1)
	assert.Contains(t, f.notifier.sent[0].Body, f.storedCode(t, "ana@example.com"))

	// у нового клиента сразу есть открытая корзина
	cart, err := f.svc.Carts.GetCart(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.CartID, cart.ID)
	assert.Equal(t, models.CartOpen, cart.Status)

	_, err = f.svc.Accounts.RegisterClient(ctx, &models.RegisterClientRequest{
		Email: "ana@example.com", Name: "Ana", Password: "password123",
	})
	assertKind(t, err, apperr.AccountExists)

	_, err = f.svc.Accounts.LoginClient(ctx, "ana@example.com", "password123")
	assertKind(t, err, apperr.AccountInactive)

	_, err = f.svc.Accounts.VerifyClient(ctx, c.ID, "000000x")
	assertKind(t, err, apperr.VerificationBadCode)
	_, err = f.svc.Accounts.VerifyClient(ctx, "nobody", "1")
	assertKind(t, err, apperr.AccountNotFound)

	verified, err := f.svc.Accounts.VerifyClient(ctx, c.ID, f.storedCode(t, "ana@example.com"))
	require.NoError(t, err)
	assert.True(t, verified.Active)

	tok, err := f.svc.Accounts.LoginClient(ctx, "ANA@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, c.ID, tok.UserID)
	assert.Equal(t, models.RoleClient, tok.Role)
	assert.Equal(t, f.now.Add(time.Hour), tok.ExpiresAt)

	_, err = f.svc.Accounts.LoginClient(ctx, "ana@example.com", "wrong-password")
	assertKind(t, err, apperr.InvalidCredentials)
	_, err = f.svc.Accounts.LoginClient(ctx, "nobody@example.com", "password123")
	assertKind(t, err, apperr.InvalidCredentials)
}

func TestVerificationCodeExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.Accounts.RegisterClient(ctx, &models.RegisterClientRequest{
		Email: "late@example.com", Name: "Late", Password: "password123",
	})
	require.NoError(t, err)
	code := f.storedCode(t, "late@example.com")

	f.now = f.now.Add(VerificationCodeTTL + time.Second)
	_, err = f.svc.Accounts.VerifyClient(ctx, c.ID, code)
	assertKind(t, err, apperr.VerificationExpired)

	require.NoError(t, f.svc.Accounts.ResendVerification(ctx, c.ID))
	fresh := f.storedCode(t, "late@example.com")
	assert.Len(t, f.notifier.sent, 2)

	_, err = f.svc.Accounts.VerifyClient(ctx, c.ID, fresh)
	require.NoError(t, err)

	err = f.svc.Accounts.ResendVerification(ctx, c.ID)
	assertKind(t, err, apperr.ValidationFailed)
}

func TestPasswordRecovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.client(t, "ana@example.com")

	err := f.svc.Accounts.SendRecoveryCode(ctx, "nobody@example.com", models.RoleClient)
	assertKind(t, err, apperr.AccountNotFound)

	require.NoError(t, f.svc.Accounts.SendRecoveryCode(ctx, "Ana@example.com", models.RoleClient))
	code := f.storedCode(t, "ana@example.com")
	last := f.notifier.sent[len(f.notifier.sent)-1]
	assert.Equal(t, "ana@example.com", last.To)
	assert.Contains(t, last.Body, code)

	err = f.svc.Accounts.RecoverPassword(ctx, &models.RecoverPasswordRequest{
		Email: "ana@example.com", Code: "bad", NewPassword: "newpassword1",
	})
	assertKind(t, err, apperr.VerificationBadCode)

	require.NoError(t, f.svc.Accounts.RecoverPassword(ctx, &models.RecoverPasswordRequest{
		Email: "ana@example.com", Code: code, NewPassword: "newpassword1",
	}))

	_, err = f.svc.Accounts.LoginClient(ctx, "ana@example.com", "password123")
	assertKind(t, err, apperr.InvalidCredentials)
	_, err = f.svc.Accounts.LoginClient(ctx, "ana@example.com", "newpassword1")
	require.NoError(t, err)

	// код одноразовый
	err = f.svc.Accounts.RecoverPassword(ctx, &models.RecoverPasswordRequest{
		Email: "ana@example.com", Code: code, NewPassword: "another123",
	})
	assertKind(t, err, apperr.VerificationBadCode)
}

func TestAdminRecoveryAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Accounts.BootstrapAdmin(ctx, "root", "Root@Example.com", "rootpass1"))
	// повторный запуск не пересоздаёт администратора
	require.NoError(t, f.svc.Accounts.BootstrapAdmin(ctx, "root", "root@example.com", "other-pass"))

	tok, err := f.svc.Accounts.LoginAdmin(ctx, "root", "rootpass1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, tok.Role)

	require.NoError(t, f.svc.Accounts.SendRecoveryCode(ctx, "root@example.com", models.RoleAdmin))
	admin, err := f.store.Repos().Admins.GetByUsername(ctx, "root")
	require.NoError(t, err)

	require.NoError(t, f.svc.Accounts.RecoverPassword(ctx, &models.RecoverPasswordRequest{
		Email: "root@example.com", Role: models.RoleAdmin, Code: admin.VerificationCode, NewPassword: "rootpass2",
	}))
	_, err = f.svc.Accounts.LoginAdmin(ctx, "root", "rootpass1")
	assertKind(t, err, apperr.InvalidCredentials)
	_, err = f.svc.Accounts.LoginAdmin(ctx, "root", "rootpass2")
	assert.NoError(t, err)
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.client(t, "ana@example.com")

	tok, err := f.svc.Accounts.LoginClient(ctx, "ana@example.com", "password123")
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	refreshed, err := f.svc.Accounts.RefreshToken(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, id, refreshed.UserID)
	assert.Equal(t, f.now.Add(time.Hour), refreshed.ExpiresAt)

	_, err = f.svc.Accounts.RefreshToken(ctx, "not-a-token")
	assertKind(t, err, apperr.AuthUnauthorized)

	require.NoError(t, f.svc.Accounts.DeactivateClient(ctx, id))
	_, err = f.svc.Accounts.RefreshToken(ctx, tok.Token)
	assertKind(t, err, apperr.AccountInactive)
}

func TestUpdateClientEmailChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.client(t, "ana@example.com")
	f.client(t, "taken@example.com")

	name := "Ana María"
	resp, err := f.svc.Accounts.UpdateClient(ctx, id, &models.UpdateClientRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, resp.Client.Name)
	assert.Nil(t, resp.Token)
	assert.True(t, resp.Client.Active)

	taken := "TAKEN@example.com"
	_, err = f.svc.Accounts.UpdateClient(ctx, id, &models.UpdateClientRequest{Email: &taken})
	assertKind(t, err, apperr.AccountExists)

	email := "ana.new@example.com"
	resp, err = f.svc.Accounts.UpdateClient(ctx, id, &models.UpdateClientRequest{Email: &email})
	require.NoError(t, err)
	assert.False(t, resp.Client.Active)
	require.NotNil(t, resp.Token)
	assert.Equal(t, email, resp.Token.Subject)

	last := f.notifier.sent[len(f.notifier.sent)-1]
	assert.Equal(t, email, last.To)

	// старый email больше не входит
	_, err = f.svc.Accounts.LoginClient(ctx, "ana@example.com", "password123")
	assertKind(t, err, apperr.InvalidCredentials)
	_, err = f.svc.Accounts.LoginClient(ctx, email, "password123")
	assertKind(t, err, apperr.AccountInactive)

	_, err = f.svc.Accounts.VerifyClient(ctx, id, f.storedCode(t, email))
	require.NoError(t, err)
	_, err = f.svc.Accounts.LoginClient(ctx, email, "password123")
	assert.NoError(t, err)
}

func TestPurchaseHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.event(t, "10", 10)
	id := f.client(t, "ana@example.com")

	for i := 0; i < 3; i++ {
		_, err := f.svc.Carts.Reserve(ctx, id, reserveIn(e.ID, 1, "10"))
		require.NoError(t, err)
		resp, err := f.svc.Carts.Checkout(ctx, id)
		require.NoError(t, err)
		_, err = f.svc.Carts.Settle(ctx, resp.CheckoutAttemptID, models.OutcomeApproved)
		require.NoError(t, err)
		f.now = f.now.Add(time.Minute)
	}

	page, err := f.svc.Accounts.PurchaseHistory(ctx, id, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].PurchasedAt.After(page.Items[1].PurchasedAt))

	page, err = f.svc.Accounts.PurchaseHistory(ctx, id, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	page, err = f.svc.Accounts.PurchaseHistory(ctx, id, -1, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.Size)
	assert.Equal(t, 0, page.Page)
}

func TestUpdateAndDeleteAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Accounts.BootstrapAdmin(ctx, "root", "root@example.com", "rootpass1"))
	require.NoError(t, f.svc.Accounts.BootstrapAdmin(ctx, "ops", "ops@example.com", "opspass1"))
	root, err := f.store.Repos().Admins.GetByUsername(ctx, "root")
	require.NoError(t, err)
	ops, err := f.store.Repos().Admins.GetByUsername(ctx, "ops")
	require.NoError(t, err)

	updated, err := f.svc.Accounts.UpdateAdmin(ctx, root.ID, &models.UpdateAdminRequest{Email: " Boss@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "boss@example.com", updated.Email)

	_, err = f.svc.Accounts.UpdateAdmin(ctx, ops.ID, &models.UpdateAdminRequest{Email: "boss@example.com"})
	assertKind(t, err, apperr.AccountExists)
	_, err = f.svc.Accounts.UpdateAdmin(ctx, "nobody", &models.UpdateAdminRequest{Email: "x@example.com"})
	assertKind(t, err, apperr.AccountNotFound)

	require.NoError(t, f.svc.Accounts.DeleteAdmin(ctx, ops.ID))
	assertKind(t, f.svc.Accounts.DeleteAdmin(ctx, ops.ID), apperr.AccountNotFound)
	_, err = f.svc.Accounts.LoginAdmin(ctx, "ops", "opspass1")
	require.Error(t, err)
}
