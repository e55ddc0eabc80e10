// internal/services/reputation_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/keyshop-bot/internal/models"
)

const defaultRecentReviews = 5

type ReputationService struct {
	db *gorm.DB
}

type SellerReputation struct {
	SellerID      string           `json:"seller_id"`
	VouchCount    int64            `json:"vouch_count"`
	ReviewCount   int64            `json:"review_count"`
	AverageRating *decimal.Decimal `json:"average_rating"`
	Recent        []models.Review  `json:"recent"`
}

func NewReputationService(db *gorm.DB) *ReputationService {
	return &ReputationService{db: db}
}

// recordReview inserts the review for a vouched ticket inside tx.
func (s *ReputationService) recordReview(tx *gorm.DB, ticket *models.Ticket, rating int, comment string) (*models.Review, error) {
	review := &models.Review{
		TicketID:   ticket.ID,
		ReviewerID: ticket.BuyerID,
		SellerID:   ticket.SellerID,
		ProductID:  ticket.ProductID,
		Rating:     rating,
		Comment:    comment,
	}
	if err := tx.Create(review).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyVouched
		}
		return nil, fmt.Errorf("failed to record review: %w", err)
	}
	return review, nil
}

// GetReviews lists a seller's reviews, most recent first. limit <= 0 means
// no limit.
func (s *ReputationService) GetReviews(ctx context.Context, sellerID string, limit int) ([]models.Review, error) {
	query := s.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var reviews []models.Review
	if err := query.Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

// VouchCount counts the seller's vouched tickets.
func (s *ReputationService) VouchCount(ctx context.Context, sellerID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("seller_id = ? AND vouched = ?", sellerID, true).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count vouches: %w", err)
	}
	return count, nil
}

// AverageRating is the mean review rating rounded to two places. ok is false
// when the seller has no reviews.
func (s *ReputationService) AverageRating(ctx context.Context, sellerID string) (avg decimal.Decimal, count int64, ok bool, err error) {
	var row struct {
		Count int64
		Total int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Review{}).
		Select("COUNT(*) AS count, COALESCE(SUM(rating), 0) AS total").
		Where("seller_id = ?", sellerID).
		Scan(&row).Error; err != nil {
		return decimal.Zero, 0, false, fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	if row.Count == 0 {
		return decimal.Zero, 0, false, nil
	}
	avg = decimal.NewFromInt(row.Total).DivRound(decimal.NewFromInt(row.Count), 2)
	return avg, row.Count, true, nil
}

func (s *ReputationService) Summary(ctx context.Context, sellerID string) (*SellerReputation, error) {
	vouches, err := s.VouchCount(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	avg, count, ok, err := s.AverageRating(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	recent, err := s.GetReviews(ctx, sellerID, defaultRecentReviews)
	if err != nil {
		return nil, err
	}

	rep := &SellerReputation{
		SellerID:    sellerID,
		VouchCount:  vouches,
		ReviewCount: count,
		Recent:      recent,
	}
	if ok {
		rep.AverageRating = &avg
	}
	return rep, nil
}
