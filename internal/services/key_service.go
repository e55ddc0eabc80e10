// internal/services/key_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/keyshop-bot/internal/models"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

const maxClaimAttempts = 3

type KeyService struct {
	db    *gorm.DB
	nowFn func() time.Time
}

type AddKeyRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Tier      string    `json:"tier" validate:"omitempty,license_tier"`
	Secret    string    `json:"secret" validate:"required,max=1000"`
}

type AddKeyResult struct {
	Key       *models.LicenseKey `json:"key"`
	Duplicate bool               `json:"duplicate"`
	Stock     int64              `json:"stock"`
}

// StockSummary is the unused key count of a product. Flat products report
// only Total.
type StockSummary struct {
	ProductID uuid.UUID                    `json:"product_id"`
	Flat      bool                         `json:"flat"`
	Total     int64                        `json:"total"`
	ByTier    map[models.LicenseTier]int64 `json:"by_tier,omitempty"`
	Tiers     []models.LicenseTier         `json:"tiers,omitempty"`
}

// For returns the stock shown for tier, or Total for flat products.
func (s *StockSummary) For(tier *models.LicenseTier) int64 {
	if s.Flat || tier == nil {
		return s.Total
	}
	return s.ByTier[*tier]
}

func NewKeyService(db *gorm.DB) *KeyService {
	return &KeyService{db: db, nowFn: time.Now}
}

func (s *KeyService) AddKey(ctx context.Context, actor Actor, req *AddKeyRequest) (*AddKeyResult, error) {
	req.Secret = strings.TrimSpace(req.Secret)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationFailed(err)
	}

	db := s.db.WithContext(ctx)

	var product models.Product
	if err := db.First(&product, "id = ?", req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if product.SellerID != actor.UserID && !actor.Admin {
		return nil, ErrNotAuthorized
	}

	tier, err := keyTierFor(&product, req.Tier)
	if err != nil {
		return nil, err
	}

	key := &models.LicenseKey{
		ProductID:  product.ID,
		Tier:       tier,
		Secret:     req.Secret,
		SecretHash: utils.HashSecret(req.Secret),
	}

	var duplicates int64
	if err := db.Model(&models.LicenseKey{}).
		Where("product_id = ? AND secret_hash = ?", product.ID, key.SecretHash).
		Count(&duplicates).Error; err != nil {
		return nil, fmt.Errorf("failed to check duplicate keys: %w", err)
	}

	if err := db.Create(key).Error; err != nil {
		return nil, fmt.Errorf("failed to add key: %w", err)
	}

	stock, err := s.AvailableCount(ctx, product.ID, models.TierOf(key))
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"product_id": product.ID,
		"key_id":     key.ID,
		"tier":       tier,
		"duplicate":  duplicates > 0,
	}).Info("License key added")

	return &AddKeyResult{Key: key, Duplicate: duplicates > 0, Stock: stock}, nil
}

// keyTierFor checks that tier matches the product's pricing shape and
// returns the stored tier column value.
func keyTierFor(product *models.Product, tier string) (string, error) {
	pricing := product.Pricing()
	if pricing.IsFlat() {
		if tier != "" {
			return "", ErrTierNotOffered
		}
		return "", nil
	}

	t, ok := models.ParseLicenseTier(tier)
	if !ok {
		return "", ErrTierNotOffered
	}
	if _, err := pricing.PriceFor(&t); err != nil {
		return "", ErrTierNotOffered
	}
	return string(t), nil
}

// AvailableCount counts unused keys of a product, optionally for one tier.
func (s *KeyService) AvailableCount(ctx context.Context, productID uuid.UUID, tier *models.LicenseTier) (int64, error) {
	return availableCount(s.db.WithContext(ctx), productID, tier)
}

func availableCount(db *gorm.DB, productID uuid.UUID, tier *models.LicenseTier) (int64, error) {
	query := db.Model(&models.LicenseKey{}).Where("product_id = ? AND used = ?", productID, false)
	if tier != nil {
		query = query.Where("tier = ?", string(*tier))
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count keys: %w", err)
	}
	return count, nil
}

func (s *KeyService) Stock(ctx context.Context, product *models.Product) (*StockSummary, error) {
	type tierCount struct {
		Tier  string
		Count int64
	}

	var rows []tierCount
	if err := s.db.WithContext(ctx).Model(&models.LicenseKey{}).
		Select("tier, COUNT(*) AS count").
		Where("product_id = ? AND used = ?", product.ID, false).
		Group("tier").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to summarise stock: %w", err)
	}

	pricing := product.Pricing()
	summary := &StockSummary{
		ProductID: product.ID,
		Flat:      pricing.IsFlat(),
		Tiers:     pricing.Tiers(),
		ByTier:    make(map[models.LicenseTier]int64),
	}
	for _, t := range summary.Tiers {
		summary.ByTier[t] = 0
	}
	for _, row := range rows {
		if summary.Flat {
			summary.Total += row.Count
			continue
		}
		if t, ok := models.ParseLicenseTier(row.Tier); ok {
			if _, offered := summary.ByTier[t]; offered {
				summary.ByTier[t] = row.Count
				summary.Total += row.Count
			}
		}
	}
	return summary, nil
}

// ClaimKey atomically takes one unused key of the pool and marks it used by
// claimant. It returns ErrOutOfStock when the pool is empty.
func (s *KeyService) ClaimKey(ctx context.Context, productID uuid.UUID, tier *models.LicenseTier, claimant string) (*models.LicenseKey, error) {
	var key *models.LicenseKey
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		key, err = s.claim(tx, productID, tier, claimant, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// claim runs the conditional update that selects and marks a key in one
// statement. The statement only touches a row that is still unused, so two
// concurrent claims never both succeed on the same key.
func (s *KeyService) claim(tx *gorm.DB, productID uuid.UUID, tier *models.LicenseTier, claimant string, ticketID *uuid.UUID) (*models.LicenseKey, error) {
	sub := "SELECT id FROM license_keys WHERE product_id = ? AND used = ?"
	subArgs := []interface{}{productID, false}
	if tier != nil {
		sub += " AND tier = ?"
		subArgs = append(subArgs, string(*tier))
	}
	sub += " ORDER BY created_at, id LIMIT 1"
	if tx.Dialector.Name() == "postgres" {
		sub += " FOR UPDATE SKIP LOCKED"
	}

	stmt := "UPDATE license_keys SET used = ?, claimed_by = ?, ticket_id = ?, used_at = ?, updated_at = ? " +
		"WHERE id = (" + sub + ") AND used = ? RETURNING id"

	for attempt := 1; attempt <= maxClaimAttempts; attempt++ {
		now := s.nowFn()
		args := []interface{}{true, claimant, ticketID, now, now}
		args = append(args, subArgs...)
		args = append(args, false)

		var claimed []struct{ ID uuid.UUID }
		if err := tx.Raw(stmt, args...).Scan(&claimed).Error; err != nil {
			return nil, fmt.Errorf("failed to claim key: %w", err)
		}

		if len(claimed) == 1 {
			var key models.LicenseKey
			if err := tx.First(&key, "id = ?", claimed[0].ID).Error; err != nil {
				return nil, fmt.Errorf("failed to load claimed key: %w", err)
			}
			return &key, nil
		}

		// Nothing matched. Retry only if a competing claim took the selected
		// row while unused keys are still left.
		remaining, err := availableCount(tx, productID, tier)
		if err != nil {
			return nil, err
		}
		if remaining == 0 {
			break
		}
	}

	return nil, ErrOutOfStock
}

func (s *KeyService) GetKey(ctx context.Context, keyID uuid.UUID) (*models.LicenseKey, error) {
	var key models.LicenseKey
	if err := s.db.WithContext(ctx).First(&key, "id = ?", keyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &key, nil
}

// DeleteKey hard-deletes a key, used or not. Only the product's seller or an
// admin may delete.
func (s *KeyService) DeleteKey(ctx context.Context, actor Actor, keyID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var key models.LicenseKey
		if err := tx.First(&key, "id = ?", keyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrKeyNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}

		var product models.Product
		if err := tx.Select("id", "seller_id").First(&product, "id = ?", key.ProductID).Error; err != nil {
			return fmt.Errorf("failed to load key product: %w", err)
		}
		if product.SellerID != actor.UserID && !actor.Admin {
			return ErrNotAuthorized
		}

		if err := tx.Delete(&models.LicenseKey{}, "id = ?", keyID).Error; err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}
		return nil
	})
}

// DeleteAllKeysForProduct hard-deletes every key of a product.
func (s *KeyService) DeleteAllKeysForProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	return deleteProductKeys(s.db.WithContext(ctx), productID)
}

func deleteProductKeys(db *gorm.DB, productID uuid.UUID) (int64, error) {
	result := db.Where("product_id = ?", productID).Delete(&models.LicenseKey{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete product keys: %w", result.Error)
	}
	return result.RowsAffected, nil
}
