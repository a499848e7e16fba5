package model

import (
	"time"

	"github.com/google/uuid"
)

type Inquiry struct {
	ID        uuid.UUID `json:"id"`
	ListingID int64     `json:"listing_id"`
	SenderID  int64     `json:"sender_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
