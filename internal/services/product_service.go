// internal/services/product_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/keyshop-bot/internal/models"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

type ProductService struct {
	db       *gorm.DB
	keys     *KeyService
	listings ListingPublisher
}

type CreateProductRequest struct {
	SellerID    string            `json:"seller_id" validate:"required,snowflake"`
	Name        string            `json:"name" validate:"required,min=1,max=100"`
	Description string            `json:"description" validate:"max=2000"`
	Category    string            `json:"category,omitempty" validate:"max=100"`
	Features    []string          `json:"features,omitempty" validate:"max=20,dive,max=200"`
	Prices      map[string]string `json:"prices,omitempty" validate:"omitempty,dive,keys,license_tier,endkeys,price"`
	FlatPrice   string            `json:"price,omitempty" validate:"omitempty,price"`
}

type ProductSearchParams struct {
	utils.PaginationParams
	SellerID string `json:"seller_id,omitempty"`
	Category string `json:"category,omitempty"`
}

// ProductView is a product with its current stock.
type ProductView struct {
	*models.Product
	Stock *StockSummary `json:"stock"`
}

func NewProductService(db *gorm.DB, keys *KeyService) *ProductService {
	return &ProductService{
		db:   db,
		keys: keys,
	}
}

// SetListingPublisher attaches the gateway that renders listings. Without
// one, listing refreshes are no-ops.
func (s *ProductService) SetListingPublisher(p ListingPublisher) {
	s.listings = p
}

func (s *ProductService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationFailed(err)
	}

	hasTiers := len(req.Prices) > 0
	hasFlat := req.FlatPrice != ""
	if hasTiers == hasFlat {
		return nil, ErrValidation.With("set either per-tier prices or a single price")
	}

	product := &models.Product{
		SellerID:    req.SellerID,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Features:    req.Features,
	}

	if hasTiers {
		product.Prices = make(models.TierPrices, len(req.Prices))
		for tier, raw := range req.Prices {
			price, err := decimal.NewFromString(strings.TrimSpace(raw))
			if err != nil {
				return nil, ErrValidation.With("invalid price for " + tier)
			}
			product.Prices[models.LicenseTier(tier)] = price
		}
	} else {
		price, err := decimal.NewFromString(strings.TrimSpace(req.FlatPrice))
		if err != nil {
			return nil, ErrValidation.With("invalid price")
		}
		product.FlatPrice = decimal.NewNullDecimal(price)
	}

	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrProductExists
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"product_id": product.ID,
		"seller_id":  product.SellerID,
		"flat":       hasFlat,
	}).Info("Product created")

	return product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &product, nil
}

func (s *ProductService) GetProductByName(ctx context.Context, name, sellerID string) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).
		Where("name = ? AND seller_id = ?", strings.TrimSpace(name), sellerID).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &product, nil
}

// GetProductView returns the product with per-tier stock.
func (s *ProductService) GetProductView(ctx context.Context, productID uuid.UUID) (*ProductView, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	stock, err := s.keys.Stock(ctx, product)
	if err != nil {
		return nil, err
	}
	return &ProductView{Product: product, Stock: stock}, nil
}

func (s *ProductService) ListProducts(ctx context.Context, params ProductSearchParams) ([]models.Product, int64, error) {
	params.PaginationParams = utils.NormalizePagination(params.PaginationParams)
	query := s.db.WithContext(ctx).Model(&models.Product{})
	if params.SellerID != "" {
		query = query.Where("seller_id = ?", params.SellerID)
	}
	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	var products []models.Product
	query = utils.ApplySort(query, params.PaginationParams, []string{"created_at", "name"})
	if err := utils.ApplyPagination(query, params.PaginationParams).Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

func (s *ProductService) ListBySeller(ctx context.Context, sellerID string) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("name").
		Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list seller products: %w", err)
	}
	return products, nil
}

// DeleteProduct removes the product, all its keys and listings. Only the
// owning seller or an admin may delete.
func (s *ProductService) DeleteProduct(ctx context.Context, actor Actor, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}
		if product.SellerID != actor.UserID && !actor.Admin {
			return ErrNotAuthorized
		}

		keys, err := deleteProductKeys(tx, product.ID)
		if err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", product.ID).Delete(&models.ProductListing{}).Error; err != nil {
			return fmt.Errorf("failed to delete listings: %w", err)
		}
		if err := tx.Delete(&models.Product{}, "id = ?", product.ID).Error; err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}

		logrus.WithFields(logrus.Fields{
			"product_id": product.ID,
			"keys":       keys,
			"actor_id":   actor.UserID,
		}).Info("Product deleted")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateListing posts a public listing for the product in channelID and
// remembers it for later stock refreshes.
func (s *ProductService) CreateListing(ctx context.Context, actor Actor, productID uuid.UUID, channelID string) (*models.ProductListing, error) {
	if s.listings == nil {
		return nil, errors.New("no listing publisher configured")
	}

	view, err := s.GetProductView(ctx, productID)
	if err != nil {
		return nil, err
	}
	if view.SellerID != actor.UserID && !actor.Admin {
		return nil, ErrNotAuthorized
	}

	messageID, err := s.listings.PublishListing(ctx, channelID, view.Product, view.Stock)
	if err != nil {
		return nil, fmt.Errorf("failed to publish listing: %w", err)
	}

	listing := &models.ProductListing{
		ProductID: view.ID,
		ChannelID: channelID,
		MessageID: messageID,
	}
	if err := s.db.WithContext(ctx).Create(listing).Error; err != nil {
		return nil, fmt.Errorf("failed to save listing: %w", err)
	}
	return listing, nil
}

// RefreshListings re-renders the stock of every listing for the product.
// All listings are attempted; the first error is returned.
func (s *ProductService) RefreshListings(ctx context.Context, productID uuid.UUID) error {
	if s.listings == nil {
		return nil
	}

	view, err := s.GetProductView(ctx, productID)
	if err != nil {
		return err
	}

	var listings []models.ProductListing
	if err := s.db.WithContext(ctx).Where("product_id = ?", productID).Find(&listings).Error; err != nil {
		return fmt.Errorf("failed to load listings: %w", err)
	}

	var firstErr error
	for i := range listings {
		if err := s.listings.RefreshListing(ctx, &listings[i], view.Product, view.Stock); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"product_id": productID,
				"message_id": listings[i].MessageID,
			}).Warn("Failed to refresh listing")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
