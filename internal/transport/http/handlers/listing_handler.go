package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	pgrepo "github.com/ivankudzin/marketplace/internal/repo/postgres"
	"github.com/ivankudzin/marketplace/internal/services/abuse"
	authsvc "github.com/ivankudzin/marketplace/internal/services/auth"
	"github.com/ivankudzin/marketplace/internal/services/guard"
	mediasvc "github.com/ivankudzin/marketplace/internal/services/media"
	"github.com/ivankudzin/marketplace/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/marketplace/internal/transport/http/errors"
)

type ListingPublisher interface {
	ListingReader
	ActiveTitlesBySeller(ctx context.Context, sellerID, excludeListingID int64) ([]string, error)
	MatchingHashesFromOtherSellers(ctx context.Context, sellerID int64, hashes []string) ([]string, error)
	Publish(ctx context.Context, listingID, sellerID int64, imageHashes []string, expiresAt *time.Time) error
}

type ImageHasher interface {
	HashImages(ctx context.Context, keys []string) ([]string, error)
}

type ListingHandler struct {
	identities IdentityReader
	listings   ListingPublisher
	images     ImageHasher
	guard      Protector
	ttl        time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewListingHandler(identities IdentityReader, listings ListingPublisher, images ImageHasher, g Protector, ttl time.Duration, log *zap.Logger) *ListingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ListingHandler{
		identities: identities,
		listings:   listings,
		images:     images,
		guard:      g,
		ttl:        ttl,
		log:        log,
		now:        time.Now,
	}
}

func (h *ListingHandler) Publish(w http.ResponseWriter, r *http.Request) {
	caller, ok := authsvc.CallerFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.identities == nil || h.listings == nil || h.guard == nil {
		writeInternal(w, "LISTING_SERVICE_UNAVAILABLE", "listing service is unavailable")
		return
	}
	listingID, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid listing id")
		return
	}

	ctx := r.Context()
	identity, err := h.identities.Get(ctx, caller.IdentityID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrIdentityNotFound) {
			writeUnauthorized(w, "UNAUTHORIZED", "unknown identity")
			return
		}
		h.log.Error("load publishing seller", zap.Int64("identity_id", caller.IdentityID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to publish listing")
		return
	}

	listing, err := h.listings.Get(ctx, listingID)
	if err != nil || listing.SellerID != identity.ID {
		if err == nil || errors.Is(err, pgrepo.ErrListingNotFound) {
			writeNotFound(w, "NOT_FOUND", "listing not found")
			return
		}
		h.log.Error("load listing to publish", zap.Int64("listing_id", listingID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to publish listing")
		return
	}

	payload, err := h.contentPayload(ctx, identity.ID, listing.ID, listing.Title, listing.Description, listing.ImageKeys)
	if err != nil {
		switch {
		case errors.Is(err, mediasvc.ErrTooManyImages):
			writeBadRequest(w, "VALIDATION_ERROR", "too many images")
		case errors.Is(err, mediasvc.ErrObjectNotFound), errors.Is(err, mediasvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "listing image is missing")
		default:
			h.log.Error("prepare listing content check", zap.Int64("listing_id", listing.ID), zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to publish listing")
		}
		return
	}

	var expiresAt *time.Time
	if h.ttl > 0 {
		v := h.now().UTC().Add(h.ttl)
		expiresAt = &v
	}

	result, err := h.guard.Protect(ctx, guard.Action{
		Identity:      identity,
		Type:          enums.ActionPublishListing,
		Content:       &payload,
		RequireSeller: true,
		Write: func(ctx context.Context) error {
			return h.listings.Publish(ctx, listing.ID, identity.ID, payload.ImageHashes, expiresAt)
		},
	})
	if err != nil {
		if writeGuardError(w, err, h.now()) {
			return
		}
		h.log.Error("publish listing", zap.Int64("listing_id", listing.ID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to publish listing")
		return
	}

	softFlags := make([]string, 0, len(result.Finding.SoftFlags))
	for _, rule := range result.Finding.SoftFlags {
		softFlags = append(softFlags, "soft:"+string(rule))
	}
	httperrors.Write(w, http.StatusOK, dto.PublishListingResponse{
		ID:        listing.ID,
		Status:    "active",
		ExpiresAt: expiresAt,
		SoftFlags: softFlags,
		Remaining: result.Decision.Remaining,
	})
}

// contentPayload loads what the pure detectors compare against.
func (h *ListingHandler) contentPayload(ctx context.Context, sellerID, listingID int64, title, body string, imageKeys []string) (abuse.Payload, error) {
	titles, err := h.listings.ActiveTitlesBySeller(ctx, sellerID, listingID)
	if err != nil {
		return abuse.Payload{}, err
	}

	var hashes, others []string
	if len(imageKeys) > 0 && h.images != nil {
		hashes, err = h.images.HashImages(ctx, imageKeys)
		if err != nil {
			return abuse.Payload{}, err
		}
		others, err = h.listings.MatchingHashesFromOtherSellers(ctx, sellerID, hashes)
		if err != nil {
			return abuse.Payload{}, err
		}
	}

	return abuse.Payload{
		Surface:            abuse.SurfaceListing,
		Title:              title,
		Body:               body,
		SellerActiveTitles: titles,
		ImageHashes:        hashes,
		OthersActiveHashes: others,
	}, nil
}
