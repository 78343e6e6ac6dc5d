package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-fees/core"
)

const keyPrefix = "idempotency:"

type redisStore struct {
	client redis.UniversalClient
}

var _ Store = (*redisStore)(nil) // interface compliance check

func NewRedisStore(client redis.UniversalClient) *redisStore {
	return &redisStore{client: client}
}

// NewRedisClient connects to the configured redis server.
func NewRedisClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func (s *redisStore) Reserve(ctx context.Context, key, bodyHash string, ttl time.Duration) (Record, bool, error) {
	val, err := json.Marshal(Record{BodyHash: bodyHash})
	if err != nil {
		return Record{}, false, errors.Wrap(err, "encoding record")
	}

	ok, err := s.client.SetNX(ctx, keyPrefix+key, val, ttl).Result()
	if err != nil {
		return Record{}, false, errors.Wrap(err, "reserving key")
	}
	if ok {
		return Record{BodyHash: bodyHash}, true, nil
	}

	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil { // expired in between
		return s.Reserve(ctx, key, bodyHash, ttl)
	}
	if err != nil {
		return Record{}, false, errors.Wrap(err, "getting record")
	}
	var rec Record
	if err = json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, errors.Wrap(err, "decoding record")
	}
	return rec, false, nil
}

func (s *redisStore) Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	ok, err := s.client.SetXX(ctx, keyPrefix+key, val, ttl).Result()
	if err != nil {
		return errors.Wrap(err, "storing record")
	}
	if !ok {
		return ErrNotReserved
	}
	return nil
}

func (s *redisStore) Release(ctx context.Context, key string) error {
	return errors.Wrap(s.client.Del(ctx, keyPrefix+key).Err(), "releasing key")
}
