package dto

type ContentRuleItem struct {
	Rule            string `json:"rule"`
	Category        string `json:"category"`
	ReasonText      string `json:"reason_text"`
	RequiredFixStep string `json:"required_fix_step"`
}

type ContentRulesResponse struct {
	Items []ContentRuleItem `json:"items"`
}
