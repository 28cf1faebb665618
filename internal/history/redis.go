package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"siterag/internal/domain"
	"siterag/internal/metrics"
)

const defaultRedisKey = "siterag:history"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	// MaxRetries bounds optimistic update attempts under contention.
	MaxRetries int
}

// RedisStore keeps the history under one key. Update uses WATCH/MULTI so
// a concurrent writer forces a re-read instead of being overwritten.
type RedisStore struct {
	client     *redis.Client
	key        string
	maxRetries int
	metrics    *metrics.Metrics
}

func NewRedisStore(cfg RedisConfig, m *metrics.Metrics) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	key := cfg.Key
	if key == "" {
		key = defaultRedisKey
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 10
	}
	return &RedisStore{client: rdb, key: key, maxRetries: retries, metrics: m}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Load(ctx context.Context) (domain.History, error) {
	return s.get(ctx, s.client)
}

func (s *RedisStore) Update(ctx context.Context, fn func(domain.History) (domain.History, error)) (domain.History, error) {
	var next domain.History
	txf := func(tx *redis.Tx) error {
		cur, err := s.get(ctx, tx)
		if err != nil {
			return err
		}
		next, err = fn(cur)
		if err != nil {
			return err
		}
		data, err := encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		return err
	}
	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.metrics.HistoryConflict()
			continue
		}
		return domain.History{}, err
	}
	return domain.History{}, fmt.Errorf("%w: history update conflicted %d times", domain.ErrServiceUnavailable, s.maxRetries)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	data, err := encode(domain.History{})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: clear history: %v", domain.ErrServiceUnavailable, err)
	}
	return nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter) (domain.History, error) {
	data, err := c.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.History{Topics: []domain.HistoryEntry{}}, nil
	}
	if err != nil {
		return domain.History{}, fmt.Errorf("%w: load history: %v", domain.ErrServiceUnavailable, err)
	}
	return decode(data)
}
