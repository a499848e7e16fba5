package enums

type ActionType string

const (
	ActionInquiry        ActionType = "inquiry"
	ActionPublishListing ActionType = "publish_listing"
	ActionReport         ActionType = "report"
)

type ViolationKind string

const (
	ViolationContentBlocked      ViolationKind = "content_blocked"
	ViolationConfirmedSpamReport ViolationKind = "confirmed_spam_report"
	ViolationBurstAbuse          ViolationKind = "burst_abuse"
)
