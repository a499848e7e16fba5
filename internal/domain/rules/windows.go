package rules

import "time"

const (
	AgeBucketNew  = "new"
	AgeBucketAged = "aged"
)

func DayKey(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01-02")
}

// NextResetAt returns the next local midnight, in UTC.
func NextResetAt(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return next.UTC()
}

// FixedWindow returns the id of the wall-clock aligned window containing now and
// the instant that window closes.
func FixedWindow(now time.Time, size time.Duration) (int64, time.Time) {
	if size <= 0 {
		size = time.Second
	}
	id := now.UnixNano() / int64(size)
	end := time.Unix(0, (id+1)*int64(size)).UTC()
	return id, end
}

func AccountAgeBucket(createdAt, now time.Time, newAccountAge time.Duration) string {
	if createdAt.IsZero() || now.Sub(createdAt) < newAccountAge {
		return AgeBucketNew
	}
	return AgeBucketAged
}
