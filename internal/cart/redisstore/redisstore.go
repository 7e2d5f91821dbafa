// Package redisstore persists cart records in Redis.
//
// A cart occupies two keys, cart:{id}:items and cart:{id}:coupon, written
// together in a MULTI/EXEC block. Every save refreshes the TTL of both.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/mercado/internal/cart"
)

var _ cart.Store = (*Store)(nil)

// DefaultTTL is how long an untouched cart survives.
const DefaultTTL = 30 * 24 * time.Hour

// Store is a cart.Store backed by Redis.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New creates a Store. A non-positive ttl selects DefaultTTL.
func New(client redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func itemsKey(id string) string  { return fmt.Sprintf("cart:%s:items", id) }
func couponKey(id string) string { return fmt.Sprintf("cart:%s:coupon", id) }

// Load reads both entries of a cart. Missing keys yield empty entries.
func (s *Store) Load(ctx context.Context, id string) (cart.Records, error) {
	vals, err := s.client.MGet(ctx, itemsKey(id), couponKey(id)).Result()
	if err != nil {
		return cart.Records{}, errors.Wrap(err, "redis mget")
	}
	var r cart.Records
	if len(vals) == 2 {
		r.Items = asBytes(vals[0])
		r.Coupon = asBytes(vals[1])
	}
	return r, nil
}

// Save overwrites both entries. An empty coupon entry deletes its key.
func (s *Store) Save(ctx context.Context, id string, r cart.Records) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, itemsKey(id), r.Items, s.ttl)
		if len(r.Coupon) > 0 {
			pipe.Set(ctx, couponKey(id), r.Coupon, s.ttl)
		} else {
			pipe.Del(ctx, couponKey(id))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redis save")
	}
	return nil
}

// Delete removes both entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, itemsKey(id), couponKey(id)).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func asBytes(v any) []byte {
	switch v := v.(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}
