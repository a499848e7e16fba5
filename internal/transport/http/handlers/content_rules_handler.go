package handlers

import (
	"net/http"

	"github.com/ivankudzin/marketplace/internal/services/abuse"
	"github.com/ivankudzin/marketplace/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/marketplace/internal/transport/http/errors"
)

// ContentRulesHandler lists the user-facing rejection reasons so clients can
// explain a CONTENT_REJECTED response before the user retries.
type ContentRulesHandler struct{}

func NewContentRulesHandler() *ContentRulesHandler {
	return &ContentRulesHandler{}
}

func (h *ContentRulesHandler) List(w http.ResponseWriter, _ *http.Request) {
	reasons := abuse.ListReasons()
	items := make([]dto.ContentRuleItem, 0, len(reasons))
	for _, reason := range reasons {
		items = append(items, dto.ContentRuleItem{
			Rule:            string(reason.Rule),
			Category:        string(reason.Category),
			ReasonText:      reason.ReasonText,
			RequiredFixStep: reason.RequiredFixStep,
		})
	}
	httperrors.Write(w, http.StatusOK, dto.ContentRulesResponse{Items: items})
}
