package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"eventcart/internal/auth"
	apperr "eventcart/internal/errors"
	"eventcart/internal/logger"
	"eventcart/internal/models"
	"eventcart/internal/notify"
	"eventcart/internal/repository"

	"github.com/google/uuid"
)

const (
	VerificationCodeTTL = 15 * time.Minute
	RecoveryCodeTTL     = 20 * time.Minute
)

// AccountService manages clients and admins: registration, verification,
// login, password recovery and token refresh.
type AccountService struct {
	store    repository.Store
	tokens   *auth.TokenManager
	notifier Notifier
	now      func() time.Time
}

func NewAccountService(d Deps) *AccountService {
	return &AccountService{
		store:    d.Store,
		tokens:   d.Tokens,
		notifier: d.Notifier,
		now:      d.Now,
	}
}

func (s *AccountService) send(ctx context.Context, msg models.EmailMessage) {
	if s.notifier == nil {
		logger.WithContext(ctx).Warn("No notifier configured, email dropped", "to", msg.To, "subject", msg.Subject)
		return
	}
	// письмо можно запросить повторно, поэтому ошибка не ломает операцию
	if err := s.notifier.Send(ctx, msg); err != nil {
		logger.WithContext(ctx).Error("Failed to send email", "to", msg.To, "error", err)
	}
}

func (s *AccountService) issue(subject string, role models.Role, userID string) (*models.TokenResponse, error) {
	token, expires, err := s.tokens.Issue(auth.Identity{Subject: subject, Role: role, UserID: userID})
	if err != nil {
		return nil, err
	}
	return &models.TokenResponse{
		Token:     token,
		ExpiresAt: expires,
		Subject:   subject,
		Role:      role,
		UserID:    userID,
	}, nil
}

func (s *AccountService) newCode() (string, *time.Time, error) {
	code, err := auth.NewCode()
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "failed to generate code", err)
	}
	expires := s.now().Add(VerificationCodeTTL)
	return code, &expires, nil
}

// RegisterClient creates an inactive client with its first OPEN cart and
// emails the verification code.
func (s *AccountService) RegisterClient(ctx context.Context, req *models.RegisterClientRequest) (*models.Client, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to hash password", err)
	}
	code, expires, err := s.newCode()
	if err != nil {
		return nil, err
	}
	now := s.now()

	client := &models.Client{
		ID:                    uuid.New().String(),
		Email:                 strings.ToLower(strings.TrimSpace(req.Email)),
		Name:                  req.Name,
		Phone:                 req.Phone,
		Address:               req.Address,
		PasswordHash:          hash,
		VerificationCode:      code,
		VerificationExpiresAt: expires,
		Role:                  models.RoleClient,
		UsedCoupons:           []string{},
		CreatedAt:             now,
	}
	cart := models.NewCart(uuid.New().String(), client.ID, now)
	client.CartID = cart.ID

	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		existing, err := r.Clients.GetByEmail(ctx, client.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.New(apperr.AccountExists, "email is already registered")
		}
		if err := r.Clients.Create(ctx, client); err != nil {
			return err
		}
		return r.Carts.Create(ctx, cart)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.New(apperr.AccountExists, "email is already registered")
	}
	if err != nil {
		return nil, storageError(err, "failed to register client")
	}

	logger.WithContext(ctx).Info("Client registered", "client_id", client.ID)
	s.send(ctx, notify.VerificationEmail(client.Email, client.Name, code, VerificationCodeTTL))
	return client, nil
}

func (s *AccountService) LoginClient(ctx context.Context, email, password string) (*models.TokenResponse, error) {
	client, err := s.store.Repos().Clients.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, storageError(err, "failed to get client")
	}
	if client == nil || !auth.CheckPassword(client.PasswordHash, password) {
		return nil, apperr.New(apperr.InvalidCredentials, "invalid email or password")
	}
	if !client.Active {
		return nil, apperr.New(apperr.AccountInactive, "account is not verified")
	}
	return s.issue(client.Email, models.RoleClient, client.ID)
}

func (s *AccountService) LoginAdmin(ctx context.Context, username, password string) (*models.TokenResponse, error) {
	admin, err := s.store.Repos().Admins.GetByUsername(ctx, username)
	if err != nil {
		return nil, storageError(err, "failed to get admin")
	}
	if admin == nil || !auth.CheckPassword(admin.PasswordHash, password) {
		return nil, apperr.New(apperr.InvalidCredentials, "invalid username or password")
	}
	return s.issue(admin.Username, models.RoleAdmin, admin.ID)
}

// checkCode validates a one-time code and its expiry.
func (s *AccountService) checkCode(stored string, expires *time.Time, given string) error {
	if stored == "" || stored != strings.TrimSpace(given) {
		return apperr.New(apperr.VerificationBadCode, "invalid code")
	}
	if expires == nil || s.now().After(*expires) {
		return apperr.New(apperr.VerificationExpired, "code has expired")
	}
	return nil
}

// VerifyClient activates the client when code matches.
func (s *AccountService) VerifyClient(ctx context.Context, clientID, code string) (*models.Client, error) {
	var client *models.Client
	err := s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		c, err := r.Clients.GetByID(ctx, clientID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.New(apperr.AccountNotFound, "client not found")
		}
		if err := s.checkCode(c.VerificationCode, c.VerificationExpiresAt, code); err != nil {
			return err
		}
		c.Active = true
		c.VerificationCode = ""
		c.VerificationExpiresAt = nil
		if err := r.Clients.Update(ctx, c); err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to verify client")
	}

	logger.WithContext(ctx).Info("Client verified", "client_id", clientID)
	return client, nil
}

// ResendVerification issues a new verification code.
func (s *AccountService) ResendVerification(ctx context.Context, clientID string) error {
	code, expires, err := s.newCode()
	if err != nil {
		return err
	}

	var client *models.Client
	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		c, err := r.Clients.GetByID(ctx, clientID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.New(apperr.AccountNotFound, "client not found")
		}
		if c.Active {
			return apperr.New(apperr.ValidationFailed, "account is already verified")
		}
		c.VerificationCode = code
		c.VerificationExpiresAt = expires
		client = c
		return r.Clients.Update(ctx, c)
	})
	if err != nil {
		return storageError(err, "failed to resend verification")
	}

	s.send(ctx, notify.VerificationEmail(client.Email, client.Name, code, VerificationCodeTTL))
	return nil
}

// SendRecoveryCode emails a password recovery code to a client or an admin.
func (s *AccountService) SendRecoveryCode(ctx context.Context, email string, role models.Role) error {
	code, err := auth.NewCode()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to generate code", err)
	}
	expires := s.now().Add(RecoveryCodeTTL)
	email = strings.ToLower(strings.TrimSpace(email))

	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		if role == models.RoleAdmin {
			a, err := r.Admins.GetByEmail(ctx, email)
			if err != nil {
				return err
			}
			if a == nil {
				return apperr.New(apperr.AccountNotFound, "account not found")
			}
			a.VerificationCode = code
			a.VerificationExpiresAt = &expires
			return r.Admins.Update(ctx, a)
		}

		c, err := r.Clients.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.New(apperr.AccountNotFound, "account not found")
		}
		c.VerificationCode = code
		c.VerificationExpiresAt = &expires
		return r.Clients.Update(ctx, c)
	})
	if err != nil {
		return storageError(err, "failed to create recovery code")
	}

	s.send(ctx, notify.RecoveryEmail(email, code, RecoveryCodeTTL))
	return nil
}

// RecoverPassword sets a new password when the recovery code matches.
func (s *AccountService) RecoverPassword(ctx context.Context, req *models.RecoverPasswordRequest) error {
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to hash password", err)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		if req.Role == models.RoleAdmin {
			a, err := r.Admins.GetByEmail(ctx, email)
			if err != nil {
				return err
			}
			if a == nil {
				return apperr.New(apperr.AccountNotFound, "account not found")
			}
			if err := s.checkCode(a.VerificationCode, a.VerificationExpiresAt, req.Code); err != nil {
				return err
			}
			a.PasswordHash = hash
			a.VerificationCode = ""
			a.VerificationExpiresAt = nil
			return r.Admins.Update(ctx, a)
		}

		c, err := r.Clients.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.New(apperr.AccountNotFound, "account not found")
		}
		if err := s.checkCode(c.VerificationCode, c.VerificationExpiresAt, req.Code); err != nil {
			return err
		}
		c.PasswordHash = hash
		c.VerificationCode = ""
		c.VerificationExpiresAt = nil
		return r.Clients.Update(ctx, c)
	})
	if err != nil {
		return storageError(err, "failed to recover password")
	}

	logger.WithContext(ctx).Info("Password recovered", "role", req.Role)
	return nil
}

// RefreshToken reissues a token whose signature verifies, even if expired.
// The account must still exist.
func (s *AccountService) RefreshToken(ctx context.Context, token string) (*models.TokenResponse, error) {
	signed, expires, id, err := s.tokens.Refresh(token)
	if err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	switch id.Role {
	case models.RoleAdmin:
		admin, err := repos.Admins.GetByUsername(ctx, id.Subject)
		if err != nil {
			return nil, storageError(err, "failed to get admin")
		}
		if admin == nil {
			return nil, apperr.New(apperr.AccountNotFound, "account not found")
		}
	default:
		client, err := repos.Clients.GetByID(ctx, id.UserID)
		if err != nil {
			return nil, storageError(err, "failed to get client")
		}
		if client == nil || client.Email != id.Subject {
			return nil, apperr.New(apperr.AccountNotFound, "account not found")
		}
		if !client.Active {
			return nil, apperr.New(apperr.AccountInactive, "account is not active")
		}
	}

	return &models.TokenResponse{
		Token:     signed,
		ExpiresAt: expires,
		Subject:   id.Subject,
		Role:      id.Role,
		UserID:    id.UserID,
	}, nil
}

func (s *AccountService) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := s.store.Repos().Clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, storageError(err, "failed to get client")
	}
	if client == nil {
		return nil, apperr.New(apperr.AccountNotFound, "client not found")
	}
	return client, nil
}

// UpdateClient applies a partial profile update. A new email deactivates the
// account until it is verified again, and the caller gets a token for the
// new subject.
func (s *AccountService) UpdateClient(ctx context.Context, clientID string, req *models.UpdateClientRequest) (*models.UpdateClientResponse, error) {
	var (
		client       *models.Client
		emailChanged bool
		code         string
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		c, err := r.Clients.GetByID(ctx, clientID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.New(apperr.AccountNotFound, "client not found")
		}

		if req.Name != nil {
			c.Name = *req.Name
		}
		if req.Phone != nil {
			c.Phone = *req.Phone
		}
		if req.Address != nil {
			c.Address = *req.Address
		}
		if req.Password != nil {
			hash, err := auth.HashPassword(*req.Password)
			if err != nil {
				return err
			}
			c.PasswordHash = hash
		}

		emailChanged = false
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			if email != c.Email {
				other, err := r.Clients.GetByEmail(ctx, email)
				if err != nil {
					return err
				}
				if other != nil {
					return apperr.New(apperr.AccountExists, "email is already registered")
				}
				var expires *time.Time
				code, expires, err = s.newCode()
				if err != nil {
					return err
				}
				c.Email = email
				c.Active = false
				c.VerificationCode = code
				c.VerificationExpiresAt = expires
				emailChanged = true
			}
		}

		if err := r.Clients.Update(ctx, c); err != nil {
			return err
		}
		client = c
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.New(apperr.AccountExists, "email is already registered")
	}
	if err != nil {
		return nil, storageError(err, "failed to update client")
	}

	resp := &models.UpdateClientResponse{Client: client}
	if emailChanged {
		s.send(ctx, notify.VerificationEmail(client.Email, client.Name, code, VerificationCodeTTL))
		token, err := s.issue(client.Email, models.RoleClient, client.ID)
		if err != nil {
			return nil, err
		}
		resp.Token = token
	}
	return resp, nil
}

// DeactivateClient disables the account; history is kept.
func (s *AccountService) DeactivateClient(ctx context.Context, clientID string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		c, err := r.Clients.GetByID(ctx, clientID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.New(apperr.AccountNotFound, "client not found")
		}
		c.Active = false
		return r.Clients.Update(ctx, c)
	})
	if err != nil {
		return storageError(err, "failed to deactivate client")
	}
	logger.WithContext(ctx).Info("Client deactivated", "client_id", clientID)
	return nil
}

// UpdateAdmin changes the administrator's email. Usernames are permanent.
func (s *AccountService) UpdateAdmin(ctx context.Context, adminID string, req *models.UpdateAdminRequest) (*models.Admin, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var admin *models.Admin
	err := s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		a, err := r.Admins.GetByID(ctx, adminID)
		if err != nil {
			return err
		}
		if a == nil {
			return apperr.New(apperr.AccountNotFound, "admin not found")
		}

		other, err := r.Admins.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if other != nil && other.ID != a.ID {
			return apperr.New(apperr.AccountExists, "email is already registered")
		}

		a.Email = email
		if err := r.Admins.Update(ctx, a); err != nil {
			return err
		}
		admin = a
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to update admin")
	}
	logger.WithContext(ctx).Info("Admin updated", "admin_id", adminID)
	return admin, nil
}

// DeleteAdmin removes the administrator account. Tokens already issued stay
// valid until they expire but can no longer be refreshed.
func (s *AccountService) DeleteAdmin(ctx context.Context, adminID string) error {
	deleted, err := s.store.Repos().Admins.Delete(ctx, adminID)
	if err != nil {
		return storageError(err, "failed to delete admin")
	}
	if !deleted {
		return apperr.New(apperr.AccountNotFound, "admin not found")
	}
	logger.WithContext(ctx).Info("Admin deleted", "admin_id", adminID)
	return nil
}

// PurchaseHistory returns the client's purchases, newest first.
func (s *AccountService) PurchaseHistory(ctx context.Context, clientID string, page, size int) (*models.Page[models.Purchase], error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	items, total, err := s.store.Repos().Purchases.ListByClient(ctx, clientID, page, size)
	if err != nil {
		return nil, storageError(err, "failed to list purchases")
	}
	return &models.Page[models.Purchase]{Items: items, Total: total, Page: page, Size: size}, nil
}

// BootstrapAdmin creates the configured admin if it does not exist yet.
func (s *AccountService) BootstrapAdmin(ctx context.Context, username, email, password string) error {
	if username == "" || password == "" {
		return nil
	}

	repos := s.store.Repos()
	existing, err := repos.Admins.GetByUsername(ctx, username)
	if err != nil {
		return storageError(err, "failed to get admin")
	}
	if existing != nil {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to hash password", err)
	}
	admin := &models.Admin{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := repos.Admins.Create(ctx, admin); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return storageError(err, "failed to create admin")
	}

	logger.Get().Info("Admin account bootstrapped", "username", username)
	return nil
}
