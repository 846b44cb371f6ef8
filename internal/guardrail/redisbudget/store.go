// Package redisbudget backs guardrail.Bucket with Redis so the rate/cost
// window is shared across multiple watchtower processes rather than
// tracked per-process in memory. Grounded on the teacher's thin
// clients/<backend>-wrapper-delegates-to-Store pattern (features/run/mongo),
// adapted to a sorted set of timestamped cost entries instead of a
// document store.
package redisbudget

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store implements guardrail.Store on top of a Redis sorted set keyed by
// workspace: member = "<unix_nanos>:<cost>", score = unix_nanos.
type Store struct {
	client *redis.Client
	key    string
}

// New builds a Store scoped to a single key, typically
// "watchtower:budget:<workspace_id>".
func New(client *redis.Client, key string) *Store {
	return &Store{client: client, key: key}
}

func (s *Store) Record(ctx context.Context, at time.Time, cost float64) error {
	member := fmt.Sprintf("%d:%f", at.UnixNano(), cost)
	if err := s.client.ZAdd(ctx, s.key, redis.Z{Score: float64(at.UnixNano()), Member: member}).Err(); err != nil {
		return fmt.Errorf("redisbudget: zadd: %w", err)
	}
	return nil
}

func (s *Store) Usage(ctx context.Context, since time.Time) (int, float64, error) {
	min := strconv.FormatInt(since.UnixNano(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.key, "-inf", "("+min).Err(); err != nil {
		return 0, 0, fmt.Errorf("redisbudget: trim: %w", err)
	}
	members, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{Min: min, Max: "+inf"}).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redisbudget: zrangebyscore: %w", err)
	}
	var cost float64
	for _, m := range members {
		var nanos int64
		var c float64
		if _, err := fmt.Sscanf(m, "%d:%f", &nanos, &c); err == nil {
			cost += c
		}
	}
	return len(members), cost, nil
}
