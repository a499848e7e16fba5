package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ReportWindowRepo keeps the report timestamps of each reporter in a sorted set so
// rolling window counts are a single ZCOUNT.
type ReportWindowRepo struct {
	client *goredis.Client
}

func NewReportWindowRepo(client *goredis.Client) *ReportWindowRepo {
	return &ReportWindowRepo{client: client}
}

// RecordAndCount adds the report and returns, for each window, how many reports the
// reporter filed in (at-window, at]. Entries older than retention are trimmed.
func (r *ReportWindowRepo) RecordAndCount(
	ctx context.Context,
	reporterID int64,
	reportID string,
	at time.Time,
	windows []time.Duration,
	retention time.Duration,
) ([]int64, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if reporterID <= 0 || reportID == "" {
		return nil, fmt.Errorf("invalid report window payload")
	}
	for _, w := range windows {
		if w <= 0 {
			return nil, ErrInvalidWindow
		}
		if w > retention {
			retention = w
		}
	}

	key := reportWindowKey(reporterID)
	score := float64(at.UnixMilli())
	maxScore := strconv.FormatInt(at.UnixMilli(), 10)

	var counts []*goredis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, goredis.Z{Score: score, Member: reportID})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(at.Add(-retention).UnixMilli(), 10))
		pipe.Expire(ctx, key, retention)
		for _, w := range windows {
			minScore := "(" + strconv.FormatInt(at.Add(-w).UnixMilli(), 10)
			counts = append(counts, pipe.ZCount(ctx, key, minScore, maxScore))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record report window: %w", err)
	}

	out := make([]int64, 0, len(counts))
	for _, cmd := range counts {
		out = append(out, cmd.Val())
	}
	return out, nil
}

func reportWindowKey(reporterID int64) string {
	return "reports:by_reporter:" + strconv.FormatInt(reporterID, 10)
}
