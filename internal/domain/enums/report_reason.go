package enums

type ReportReason string

const (
	ReportReasonSpam       ReportReason = "spam"
	ReportReasonScam       ReportReason = "scam"
	ReportReasonProhibited ReportReason = "prohibited_item"
	ReportReasonOther      ReportReason = "other"
)

func IsValidReportReason(raw string) bool {
	switch ReportReason(raw) {
	case ReportReasonSpam, ReportReasonScam, ReportReasonProhibited, ReportReasonOther:
		return true
	default:
		return false
	}
}

type ReportStatus string

const (
	ReportStatusNew       ReportStatus = "new"
	ReportStatusConfirmed ReportStatus = "confirmed_spam"
	ReportStatusRejected  ReportStatus = "rejected"
)
