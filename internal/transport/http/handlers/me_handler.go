package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
	pgrepo "github.com/ivankudzin/marketplace/internal/repo/postgres"
	authsvc "github.com/ivankudzin/marketplace/internal/services/auth"
	"github.com/ivankudzin/marketplace/internal/services/rate"
	"github.com/ivankudzin/marketplace/internal/services/trust"
	"github.com/ivankudzin/marketplace/internal/services/verification"
	"github.com/ivankudzin/marketplace/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/marketplace/internal/transport/http/errors"
)

type TrustReader interface {
	State(ctx context.Context, identityID int64) (trust.Status, error)
}

// QuotaReader reports remaining quota without consuming it.
type QuotaReader interface {
	Peek(ctx context.Context, req rate.Request) (rate.Decision, error)
}

var quotaActions = []enums.ActionType{
	enums.ActionInquiry,
	enums.ActionPublishListing,
	enums.ActionReport,
}

type MeHandler struct {
	identities IdentityReader
	trust      TrustReader
	quotas     QuotaReader
	log        *zap.Logger
	now        func() time.Time
}

func NewMeHandler(identities IdentityReader, trustReader TrustReader, log *zap.Logger) *MeHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MeHandler{
		identities: identities,
		trust:      trustReader,
		log:        log,
		now:        time.Now,
	}
}

func (h *MeHandler) AttachQuotas(quotas QuotaReader) {
	h.quotas = quotas
}

func (h *MeHandler) Trust(w http.ResponseWriter, r *http.Request) {
	caller, ok := authsvc.CallerFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.identities == nil || h.trust == nil {
		writeInternal(w, "TRUST_SERVICE_UNAVAILABLE", "trust service is unavailable")
		return
	}

	identity, err := h.identities.Get(r.Context(), caller.IdentityID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrIdentityNotFound) {
			writeNotFound(w, "NOT_FOUND", "identity not found")
			return
		}
		h.log.Error("load identity", zap.Int64("identity_id", caller.IdentityID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to load trust state")
		return
	}

	status, err := h.trust.State(r.Context(), identity.ID)
	if err != nil {
		h.log.Error("load trust state", zap.Int64("identity_id", identity.ID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to load trust state")
		return
	}

	access := "ok"
	if status.State == trust.StateLocked {
		access = "temporarily_unavailable"
	}

	res := verification.Resolve(identity.Verification, h.now().UTC())
	httperrors.Write(w, http.StatusOK, dto.MeTrustResponse{
		IdentityID: identity.ID,
		Verification: dto.MeVerificationResponse{
			Type:        string(res.Type),
			Status:      string(res.Status),
			ExpiresAt:   res.ExpiresAt,
			CanSell:     res.CanSell,
			CanContract: res.CanContract,
		},
		Access:    access,
		Remaining: h.remaining(r.Context(), identity),
	})
}

// remaining is best effort; a store failure drops the field rather than the
// whole response.
func (h *MeHandler) remaining(ctx context.Context, identity model.Identity) map[string]int64 {
	if h.quotas == nil {
		return nil
	}
	out := make(map[string]int64, len(quotaActions))
	for _, action := range quotaActions {
		d, err := h.quotas.Peek(ctx, rate.Request{
			IdentityID:       identity.ID,
			Action:           action,
			Verified:         identity.EmailVerified,
			AccountCreatedAt: identity.CreatedAt,
		})
		if err != nil {
			h.log.Warn("peek quota", zap.Int64("identity_id", identity.ID), zap.String("action", string(action)), zap.Error(err))
			return nil
		}
		out[string(action)] = d.Remaining
	}
	return out
}
