package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestRetryableTxError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("lock trust record: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
		{"not found", ErrIdentityNotFound, false},
	}
	for _, tc := range cases {
		if got := retryableTxError(tc.err); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestWithTxRejectsNilPool(t *testing.T) {
	if err := WithTx(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil pool")
	}
}

func TestNewPoolRequiresDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), PoolOptions{}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
