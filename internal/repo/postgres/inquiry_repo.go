package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/marketplace/internal/domain/model"
)

type InquiryRepo struct {
	pool *pgxpool.Pool
}

func NewInquiryRepo(pool *pgxpool.Pool) *InquiryRepo {
	return &InquiryRepo{pool: pool}
}

func (r *InquiryRepo) Create(ctx context.Context, inquiry model.Inquiry) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if inquiry.ListingID <= 0 || inquiry.SenderID <= 0 || strings.TrimSpace(inquiry.Message) == "" {
		return fmt.Errorf("invalid inquiry payload")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO inquiries (id, listing_id, sender_id, message, created_at)
VALUES ($1, $2, $3, $4, $5)
`, inquiry.ID, inquiry.ListingID, inquiry.SenderID, inquiry.Message, inquiry.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("create inquiry: %w", err)
	}
	return nil
}

// HasPriorContact reports whether senderID already wrote to sellerID about any listing.
func (r *InquiryRepo) HasPriorContact(ctx context.Context, senderID, sellerID int64) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1
	FROM inquiries i
	JOIN listings l ON l.id = i.listing_id
	WHERE i.sender_id = $1 AND l.seller_id = $2
)
`, senderID, sellerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check prior contact: %w", err)
	}
	return exists, nil
}
