package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ivankudzin/marketplace/internal/domain/model"
)

const maxTrustUpdateAttempts = 8

var ErrTrustUpdateConflict = errors.New("trust record update conflict")

type TrustRepo struct {
	client *goredis.Client
}

func NewTrustRepo(client *goredis.Client) *TrustRepo {
	return &TrustRepo{client: client}
}

func (r *TrustRepo) Get(ctx context.Context, identityID int64) (model.TrustRecord, error) {
	if r.client == nil {
		return model.TrustRecord{}, fmt.Errorf("redis client is nil")
	}
	if identityID <= 0 {
		return model.TrustRecord{}, fmt.Errorf("invalid identity id")
	}

	values, err := r.client.HGetAll(ctx, trustKey(identityID)).Result()
	if err != nil {
		return model.TrustRecord{}, fmt.Errorf("get trust record: %w", err)
	}
	return parseTrustRecord(identityID, values)
}

// Update applies fn as a compare-and-set on the identity's trust hash.
func (r *TrustRepo) Update(ctx context.Context, identityID int64, fn model.TrustUpdateFunc) (model.TrustRecord, error) {
	if r.client == nil {
		return model.TrustRecord{}, fmt.Errorf("redis client is nil")
	}
	if identityID <= 0 {
		return model.TrustRecord{}, fmt.Errorf("invalid identity id")
	}

	key := trustKey(identityID)
	for attempt := 0; attempt < maxTrustUpdateAttempts; attempt++ {
		var out model.TrustRecord
		err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
			values, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("read trust record: %w", err)
			}
			current, err := parseTrustRecord(identityID, values)
			if err != nil {
				return err
			}

			next, changed := fn(current)
			if !changed {
				out = current
				return nil
			}
			next.IdentityID = identityID

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.HSet(ctx, key,
					"spam_warnings", next.SpamWarnings,
					"spam_suspended_until_ms", unixMilliOrZero(next.SpamSuspendedUntil),
				)
				return nil
			})
			if err != nil {
				return err
			}
			out = next
			return nil
		}, key)

		if err == nil {
			return out, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return model.TrustRecord{}, fmt.Errorf("update trust record: %w", err)
	}

	return model.TrustRecord{}, ErrTrustUpdateConflict
}

func parseTrustRecord(identityID int64, values map[string]string) (model.TrustRecord, error) {
	rec := model.TrustRecord{IdentityID: identityID}
	if len(values) == 0 {
		return rec, nil
	}

	warnings, err := parseInt(values["spam_warnings"])
	if err != nil {
		return model.TrustRecord{}, fmt.Errorf("parse spam_warnings: %w", err)
	}
	until, err := parseInt64(values["spam_suspended_until_ms"])
	if err != nil {
		return model.TrustRecord{}, fmt.Errorf("parse spam_suspended_until_ms: %w", err)
	}

	if warnings < 0 {
		warnings = 0
	}
	rec.SpamWarnings = warnings
	if until > 0 {
		v := time.UnixMilli(until).UTC()
		rec.SpamSuspendedUntil = &v
	}
	return rec, nil
}

// Suspension deadlines are stored in unix milliseconds so sub-second ends survive.
func unixMilliOrZero(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func trustKey(identityID int64) string {
	return "trust:identity:" + strconv.FormatInt(identityID, 10)
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
