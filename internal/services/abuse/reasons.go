package abuse

import "sort"

type RuleID string

const (
	RuleKeywordStuffing RuleID = "KEYWORD_STUFFING"
	RuleDuplicateTitle  RuleID = "DUPLICATE_TITLE"
	RuleDuplicateImage  RuleID = "DUPLICATE_IMAGE"
	RuleExternalLink    RuleID = "EXTERNAL_LINK"
	RuleContactDetails  RuleID = "CONTACT_DETAILS"
	RulePromotional     RuleID = "PROMOTIONAL"
)

type Category string

const (
	CategorySpam               Category = "spam"
	CategoryDuplicate          Category = "duplicate"
	CategoryOffPlatformContact Category = "off_platform_contact"
)

// Reason is what a user sees for a rejected submission. It names the rule
// category, never the threshold that fired.
type Reason struct {
	Rule            RuleID   `json:"rule"`
	Category        Category `json:"category"`
	ReasonText      string   `json:"reason_text"`
	RequiredFixStep string   `json:"required_fix_step"`
}

type reasonTemplate struct {
	Category        Category
	ReasonText      string
	RequiredFixStep string
}

var reasonTemplates = map[RuleID]reasonTemplate{
	RuleKeywordStuffing: {
		Category:        CategorySpam,
		ReasonText:      "The text looks like spam.",
		RequiredFixStep: "Write a plain description without repeated words, shouting or symbol runs.",
	},
	RuleDuplicateTitle: {
		Category:        CategoryDuplicate,
		ReasonText:      "You already have an active listing with this title.",
		RequiredFixStep: "Edit the existing listing or choose a different title.",
	},
	RuleDuplicateImage: {
		Category:        CategoryDuplicate,
		ReasonText:      "An image matches another seller's listing.",
		RequiredFixStep: "Use photos of your own item.",
	},
	RuleExternalLink: {
		Category:        CategoryOffPlatformContact,
		ReasonText:      "Links are not allowed in a first message.",
		RequiredFixStep: "Remove the link and keep the conversation on the platform.",
	},
	RuleContactDetails: {
		Category:        CategoryOffPlatformContact,
		ReasonText:      "Contact details are not allowed in a first message.",
		RequiredFixStep: "Remove phone numbers and e-mail addresses from the message.",
	},
	RulePromotional: {
		Category:        CategoryOffPlatformContact,
		ReasonText:      "Promotional or off-platform payment wording is not allowed.",
		RequiredFixStep: "Remove the promotional wording and resend the message.",
	},
}

func ReasonFor(rule RuleID) Reason {
	tpl, ok := reasonTemplates[rule]
	if !ok {
		return Reason{
			Rule:            rule,
			Category:        CategorySpam,
			ReasonText:      "The content was rejected.",
			RequiredFixStep: "Edit the content and try again.",
		}
	}
	return Reason{
		Rule:            rule,
		Category:        tpl.Category,
		ReasonText:      tpl.ReasonText,
		RequiredFixStep: tpl.RequiredFixStep,
	}
}

func ListReasons() []Reason {
	rules := make([]string, 0, len(reasonTemplates))
	for rule := range reasonTemplates {
		rules = append(rules, string(rule))
	}
	sort.Strings(rules)

	items := make([]Reason, 0, len(rules))
	for _, rule := range rules {
		items = append(items, ReasonFor(RuleID(rule)))
	}
	return items
}
