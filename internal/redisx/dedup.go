package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/respa-payments/internal/payment"
)

var _ payment.Deduper = (*Deduper)(nil)

// Deduper remembers processed keys in Redis with SET NX and a TTL.
type Deduper struct {
	rdb     *redis.Client
	service string
	ttl     time.Duration
}

// NewDeduper returns a Deduper namespacing keys under service.
func NewDeduper(rdb *redis.Client, service string, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = TTLDedup
	}
	return &Deduper{rdb: rdb, service: service, ttl: ttl}
}

func (d *Deduper) key(id string) string {
	return fmt.Sprintf(KeyDedup, d.service, id)
}

// Claim returns true if id was not claimed before.
func (d *Deduper) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.key(id), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "claim")
	}
	return ok, nil
}

// Release drops the claim on id.
func (d *Deduper) Release(ctx context.Context, id string) error {
	if err := d.rdb.Del(ctx, d.key(id)).Err(); err != nil {
		return errors.Wrap(err, "release")
	}
	return nil
}
