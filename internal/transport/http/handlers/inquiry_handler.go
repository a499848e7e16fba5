package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
	pgrepo "github.com/ivankudzin/marketplace/internal/repo/postgres"
	authsvc "github.com/ivankudzin/marketplace/internal/services/auth"
	"github.com/ivankudzin/marketplace/internal/services/abuse"
	"github.com/ivankudzin/marketplace/internal/services/guard"
	"github.com/ivankudzin/marketplace/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/marketplace/internal/transport/http/errors"
)

const maxInquiryLength = 4000

type IdentityReader interface {
	Get(ctx context.Context, identityID int64) (model.Identity, error)
}

type ListingReader interface {
	Get(ctx context.Context, listingID int64) (model.Listing, error)
}

type InquiryStore interface {
	Create(ctx context.Context, inquiry model.Inquiry) error
	HasPriorContact(ctx context.Context, senderID, sellerID int64) (bool, error)
}

type Protector interface {
	Protect(ctx context.Context, action guard.Action) (guard.Result, error)
}

type InquiryHandler struct {
	identities IdentityReader
	listings   ListingReader
	inquiries  InquiryStore
	guard      Protector
	log        *zap.Logger
	now        func() time.Time
}

func NewInquiryHandler(identities IdentityReader, listings ListingReader, inquiries InquiryStore, g Protector, log *zap.Logger) *InquiryHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &InquiryHandler{
		identities: identities,
		listings:   listings,
		inquiries:  inquiries,
		guard:      g,
		log:        log,
		now:        time.Now,
	}
}

func (h *InquiryHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := authsvc.CallerFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.identities == nil || h.listings == nil || h.inquiries == nil || h.guard == nil {
		writeInternal(w, "INQUIRY_SERVICE_UNAVAILABLE", "inquiry service is unavailable")
		return
	}

	var req dto.CreateInquiryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	message := strings.TrimSpace(req.Message)
	if req.ListingID <= 0 || message == "" || len(message) > maxInquiryLength {
		writeBadRequest(w, "VALIDATION_ERROR", "listing_id and message are required")
		return
	}

	ctx := r.Context()
	identity, err := h.identities.Get(ctx, caller.IdentityID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrIdentityNotFound) {
			writeUnauthorized(w, "UNAUTHORIZED", "unknown identity")
			return
		}
		h.log.Error("load inquiry sender", zap.Int64("identity_id", caller.IdentityID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to create inquiry")
		return
	}

	listing, err := h.listings.Get(ctx, req.ListingID)
	if err != nil || listing.Status != model.ListingStatusActive {
		if err == nil || errors.Is(err, pgrepo.ErrListingNotFound) {
			writeNotFound(w, "NOT_FOUND", "listing not found")
			return
		}
		h.log.Error("load inquiry listing", zap.Int64("listing_id", req.ListingID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to create inquiry")
		return
	}
	if listing.SellerID == identity.ID {
		writeBadRequest(w, "VALIDATION_ERROR", "cannot send an inquiry to your own listing")
		return
	}

	prior, err := h.inquiries.HasPriorContact(ctx, identity.ID, listing.SellerID)
	if err != nil {
		h.log.Error("check prior contact", zap.Int64("identity_id", identity.ID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to create inquiry")
		return
	}

	inquiry := model.Inquiry{
		ID:        uuid.New(),
		ListingID: listing.ID,
		SenderID:  identity.ID,
		Message:   message,
		CreatedAt: h.now().UTC(),
	}
	result, err := h.guard.Protect(ctx, guard.Action{
		Identity: identity,
		Type:     enums.ActionInquiry,
		Content: &abuse.Payload{
			Surface:           abuse.SurfaceInquiry,
			Body:              message,
			ContactProhibited: !prior,
		},
		Write: func(ctx context.Context) error {
			return h.inquiries.Create(ctx, inquiry)
		},
	})
	if err != nil {
		if writeGuardError(w, err, h.now()) {
			return
		}
		h.log.Error("create inquiry", zap.Int64("identity_id", identity.ID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to create inquiry")
		return
	}

	httperrors.Write(w, http.StatusCreated, dto.InquiryResponse{
		ID:        inquiry.ID.String(),
		ListingID: inquiry.ListingID,
		CreatedAt: inquiry.CreatedAt,
		Remaining: result.Decision.Remaining,
	})
}
