package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var redisWarnPrefix string = "warn/"

// RedisLedger persists warning counts in redis. INCR gives the atomic
// read-increment-write in a single round trip.
type RedisLedger struct {
	Client *redis.Client
}

func NewRedisLedger(redisURL string) (*RedisLedger, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	rl := RedisLedger{
		Client: rdb,
	}
	return &rl, nil
}

func (s *RedisLedger) GetCount(ctx context.Context, groupID, userID int64) (int, error) {
	key := redisWarnPrefix + recordKey(groupID, userID)
	c, err := s.Client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c, nil
}

func (s *RedisLedger) IncrementAndGet(ctx context.Context, groupID, userID int64) (int, error) {
	key := redisWarnPrefix + recordKey(groupID, userID)
	v, err := s.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(v), nil
}

func (s *RedisLedger) Reset(ctx context.Context, groupID, userID int64) error {
	key := redisWarnPrefix + recordKey(groupID, userID)
	if err := s.Client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
