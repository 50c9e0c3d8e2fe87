package entitlement

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inkwell/paywall/internal/models"
	"github.com/inkwell/paywall/pkg/types"
)

// Store is the persistence surface for entitlement records. Lookups return
// (nil, nil) when no row matches so callers can branch without sentinel
// errors; Save is insert-or-update by primary key.
type Store interface {
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Entitlement, error)
	GetByCustomerID(ctx context.Context, customerID string) (*models.Entitlement, error)
	Save(ctx context.Context, rec *models.Entitlement) error
	// LatestActiveByUser returns the most recently created active record for
	// the user; this is the row access decisions are made from.
	LatestActiveByUser(ctx context.Context, userID string) (*models.Entitlement, error)
	// LatestByUser returns the most recently created record regardless of
	// status (used to reuse the provider customer id on re-subscribe).
	LatestByUser(ctx context.Context, userID string) (*models.Entitlement, error)
}

type gormStore struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewStore(db *gorm.DB, log *zap.SugaredLogger) Store {
	return &gormStore{db: db, log: log}
}

func (s *gormStore) one(q *gorm.DB) (*models.Entitlement, error) {
	var rec models.Entitlement
	if err := q.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Entitlement, error) {
	return s.one(s.db.WithContext(ctx).Where("stripe_subscription_id = ?", subscriptionID))
}

func (s *gormStore) GetByCustomerID(ctx context.Context, customerID string) (*models.Entitlement, error) {
	return s.one(s.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID))
}

func (s *gormStore) Save(ctx context.Context, rec *models.Entitlement) error {
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("failed to save entitlement: %w", err)
	}
	return nil
}

func (s *gormStore) LatestActiveByUser(ctx context.Context, userID string) (*models.Entitlement, error) {
	return s.one(s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, types.EntitlementStatusActive).
		Order("created_at desc"))
}

func (s *gormStore) LatestByUser(ctx context.Context, userID string) (*models.Entitlement, error) {
	return s.one(s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc"))
}
