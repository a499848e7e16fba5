package dto

type SearchResponse struct {
	Items     []ListingItem `json:"items"`
	Total     int           `json:"total"`
	Limit     int           `json:"limit"`
	Offset    int           `json:"offset"`
	Degraded  bool          `json:"degraded,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
}
