package service

import (
	"context"
	"errors"
	"strings"
	"time"

	apperr "eventcart/internal/errors"
	"eventcart/internal/logger"
	"eventcart/internal/models"
	"eventcart/internal/repository"

	"github.com/shopspring/decimal"
)

type CouponService struct {
	store repository.Store
	now   func() time.Time
}

func NewCouponService(d Deps) *CouponService {
	return &CouponService{store: d.Store, now: d.Now}
}

var hundred = decimal.NewFromInt(100)

func couponFromRequest(req *models.CouponRequest) (*models.Coupon, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.New(apperr.ValidationFailed, "coupon name is required")
	}
	if req.DiscountPercent == nil || req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(hundred) {
		return nil, apperr.New(apperr.ValidationFailed, "discountPercent must be between 0 and 100")
	}
	minAmount := decimal.Zero
	if req.MinPurchaseAmount != nil {
		if req.MinPurchaseAmount.IsNegative() {
			return nil, apperr.New(apperr.ValidationFailed, "minPurchaseAmount must not be negative")
		}
		minAmount = *req.MinPurchaseAmount
	}
	return &models.Coupon{
		Name:              name,
		DiscountPercent:   *req.DiscountPercent,
		ExpiresAt:         req.ExpiresAt.UTC(),
		MinPurchaseAmount: minAmount,
	}, nil
}

func (s *CouponService) Create(ctx context.Context, req *models.CouponRequest) (*models.Coupon, error) {
	coupon, err := couponFromRequest(req)
	if err != nil {
		return nil, err
	}
	coupon.CreatedAt = s.now()

	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		existing, err := r.Coupons.GetByName(ctx, coupon.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.New(apperr.CouponDuplicate, "coupon with this name already exists")
		}
		return r.Coupons.Create(ctx, coupon)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.New(apperr.CouponDuplicate, "coupon with this name already exists")
	}
	if err != nil {
		return nil, storageError(err, "failed to create coupon")
	}

	logger.WithContext(ctx).Info("Coupon created", "coupon", coupon.Name)
	return coupon, nil
}

// Update changes discount, expiry and minimum of an existing coupon. The name
// is the key and cannot change.
func (s *CouponService) Update(ctx context.Context, name string, req *models.CouponRequest) (*models.Coupon, error) {
	changes, err := couponFromRequest(req)
	if err != nil {
		return nil, err
	}
	if changes.Name != name {
		return nil, apperr.New(apperr.ValidationFailed, "coupon name cannot be changed")
	}

	var updated *models.Coupon
	err = s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		coupon, err := r.Coupons.GetByName(ctx, name)
		if err != nil {
			return err
		}
		if coupon == nil {
			return apperr.New(apperr.CouponNotFound, "coupon not found")
		}
		coupon.DiscountPercent = changes.DiscountPercent
		coupon.ExpiresAt = changes.ExpiresAt
		coupon.MinPurchaseAmount = changes.MinPurchaseAmount
		if err := r.Coupons.Update(ctx, coupon); err != nil {
			return err
		}
		updated = coupon
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to update coupon")
	}
	return updated, nil
}

func (s *CouponService) Get(ctx context.Context, name string) (*models.Coupon, error) {
	coupon, err := s.store.Repos().Coupons.GetByName(ctx, name)
	if err != nil {
		return nil, storageError(err, "failed to get coupon")
	}
	if coupon == nil {
		return nil, apperr.New(apperr.CouponNotFound, "coupon not found")
	}
	return coupon, nil
}

func (s *CouponService) List(ctx context.Context) ([]models.Coupon, error) {
	coupons, err := s.store.Repos().Coupons.List(ctx)
	if err != nil {
		return nil, storageError(err, "failed to list coupons")
	}
	return coupons, nil
}

// Delete removes a coupon. Carts that already hold it keep their discount.
func (s *CouponService) Delete(ctx context.Context, name string) error {
	deleted, err := s.store.Repos().Coupons.Delete(ctx, name)
	if err != nil {
		return storageError(err, "failed to delete coupon")
	}
	if !deleted {
		return apperr.New(apperr.CouponNotFound, "coupon not found")
	}
	logger.WithContext(ctx).Info("Coupon deleted", "coupon", name)
	return nil
}

func (s *CouponService) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.store.Repos().Coupons.DeleteAll(ctx)
	if err != nil {
		return 0, storageError(err, "failed to delete coupons")
	}
	logger.WithContext(ctx).Info("All coupons deleted", "count", n)
	return n, nil
}
