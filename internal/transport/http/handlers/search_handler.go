package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	searchsvc "github.com/ivankudzin/marketplace/internal/services/search"
	"github.com/ivankudzin/marketplace/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/marketplace/internal/transport/http/errors"
)

type Searcher interface {
	Search(ctx context.Context, q searchsvc.Query) (searchsvc.Page, error)
	Contractors(ctx context.Context, q searchsvc.Query) (searchsvc.Page, error)
}

type SearchHandler struct {
	service Searcher
	log     *zap.Logger
}

func NewSearchHandler(service Searcher, log *zap.Logger) *SearchHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchHandler{service: service, log: log}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, false)
}

func (h *SearchHandler) Contractors(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, true)
}

func (h *SearchHandler) handle(w http.ResponseWriter, r *http.Request, contractors bool) {
	if h.service == nil {
		writeInternal(w, "SEARCH_SERVICE_UNAVAILABLE", "search service is unavailable")
		return
	}

	query := r.URL.Query()
	q := searchsvc.Query{
		Text:     strings.TrimSpace(query.Get("q")),
		Category: strings.TrimSpace(query.Get("category")),
		Limit:    parseIntOrDefault(query.Get("limit"), 20),
		Offset:   parseIntOrDefault(query.Get("offset"), 0),
	}
	if q.Limit <= 0 || q.Offset < 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "limit must be positive and offset non-negative")
		return
	}

	var (
		page searchsvc.Page
		err  error
	)
	if contractors {
		page, err = h.service.Contractors(r.Context(), q)
	} else {
		page, err = h.service.Search(r.Context(), q)
	}
	if err != nil {
		h.log.Error("search listings", zap.Bool("contractors", contractors), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to search listings")
		return
	}

	items := make([]dto.ListingItem, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, dto.ListingItem{
			ID:        item.Listing.ID,
			SellerID:  item.Listing.SellerID,
			Title:     item.Listing.Title,
			Category:  item.Listing.Category,
			Tier:      string(item.Listing.Visibility.Tier),
			CreatedAt: item.Listing.CreatedAt,
			Score:     item.Score,
			Badge:     string(item.Verification.Type),
		})
	}

	httperrors.Write(w, http.StatusOK, dto.SearchResponse{
		Items:     items,
		Total:     page.Total,
		Limit:     page.Limit,
		Offset:    page.Offset,
		Degraded:  page.Degraded,
		Truncated: page.Truncated,
	})
}
