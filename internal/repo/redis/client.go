package redis

import (
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type ClientOptions struct {
	Addr      string
	Password  string
	DB        int
	OpTimeout time.Duration
}

// NewClient builds a client whose per-command timeouts bound every store call made
// by the engine; failures past that point are handled by the caller's fail policy.
func NewClient(opts ClientOptions) *goredis.Client {
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}

	return goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   1,
	})
}
