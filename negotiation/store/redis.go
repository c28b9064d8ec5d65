package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/types"
)

// RedisConfig configures the Redis-backed ConflictStore.
type RedisConfig struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"password"`
	DB           int    `yaml:"db" json:"db"`
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns"`
	KeyPrefix    string `yaml:"key_prefix" json:"key_prefix"`

	// MutateRetries bounds the optimistic retry loop when concurrent
	// writers race on the same conflict.
	MutateRetries int `yaml:"mutate_retries" json:"mutate_retries"`
}

// DefaultRedisConfig returns the default Redis store configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		DB:            0,
		MaxRetries:    3,
		PoolSize:      10,
		MinIdleConns:  2,
		KeyPrefix:     "accord:conflict:",
		MutateRetries: 16,
	}
}

// RedisStore is a shared ConflictStore on Redis. Conflicts are JSON values;
// Mutate uses WATCH-based optimistic transactions so check-then-commit is
// safe across processes.
type RedisStore struct {
	client *redis.Client
	config RedisConfig
	logger *zap.Logger
}

// NewRedisStore connects to Redis and returns the store.
func NewRedisStore(config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "accord:conflict:"
	}
	if config.MutateRetries <= 0 {
		config.MutateRetries = 16
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.NewError(types.ErrPersistence, "failed to connect to redis").
			WithCause(err).WithRetryable(true)
	}

	logger = logger.With(zap.String("component", "redis_store"))
	logger.Info("conflict store initialized", zap.String("addr", config.Addr))

	return &RedisStore{client: client, config: config, logger: logger}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *redis.Client, config RedisConfig, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "accord:conflict:"
	}
	if config.MutateRetries <= 0 {
		config.MutateRetries = 16
	}
	return &RedisStore{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "redis_store")),
	}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.config.KeyPrefix + id
}

// indexKey is the set holding all conflict ids; List scans it instead of
// KEYS/SCAN over the whole keyspace.
func (s *RedisStore) indexKey() string {
	return s.config.KeyPrefix + "_index"
}

func encodeConflict(c *negotiation.Conflict) (string, error) {
	doc, err := json.Marshal(c)
	if err != nil {
		return "", types.NewError(types.ErrPersistence, "failed to encode conflict").WithCause(err)
	}
	return string(doc), nil
}

func decodeConflict(id, doc string) (*negotiation.Conflict, error) {
	var c negotiation.Conflict
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, types.NewError(types.ErrPersistence,
			fmt.Sprintf("failed to decode conflict %s", id)).WithCause(err)
	}
	return &c, nil
}

// Create persists a new conflict.
func (s *RedisStore) Create(ctx context.Context, c *negotiation.Conflict) error {
	doc, err := encodeConflict(c)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.key(c.ID), doc, 0).Result()
	if err != nil {
		return types.NewError(types.ErrPersistence,
			fmt.Sprintf("failed to create conflict %s", c.ID)).WithCause(err).WithRetryable(true)
	}
	if !ok {
		return types.NewError(types.ErrPersistence,
			fmt.Sprintf("conflict %s already exists", c.ID))
	}
	if err := s.client.SAdd(ctx, s.indexKey(), c.ID).Err(); err != nil {
		return types.NewError(types.ErrPersistence,
			fmt.Sprintf("failed to index conflict %s", c.ID)).WithCause(err).WithRetryable(true)
	}
	return nil
}

// Get returns the conflict with the given id.
func (s *RedisStore) Get(ctx context.Context, id string) (*negotiation.Conflict, error) {
	doc, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewError(types.ErrConflictNotFound,
			fmt.Sprintf("conflict %s not found", id))
	}
	if err != nil {
		return nil, types.NewError(types.ErrPersistence,
			fmt.Sprintf("failed to load conflict %s", id)).WithCause(err).WithRetryable(true)
	}
	return decodeConflict(id, doc)
}

// Mutate applies fn under a WATCH on the conflict key. If a concurrent
// writer commits first the whole read-modify-write is retried.
func (s *RedisStore) Mutate(ctx context.Context, id string, fn func(*negotiation.Conflict) error) (*negotiation.Conflict, error) {
	key := s.key(id)
	var result *negotiation.Conflict

	txn := func(tx *redis.Tx) error {
		doc, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return types.NewError(types.ErrConflictNotFound,
				fmt.Sprintf("conflict %s not found", id))
		}
		if err != nil {
			return err
		}

		conflict, err := decodeConflict(id, doc)
		if err != nil {
			return err
		}
		if err := fn(conflict); err != nil {
			return err
		}

		updated, err := encodeConflict(conflict)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = conflict
		return nil
	}

	for i := 0; i < s.config.MutateRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var typed *types.Error
		if errors.As(err, &typed) {
			return nil, err
		}
		return nil, types.NewError(types.ErrPersistence,
			fmt.Sprintf("failed to mutate conflict %s", id)).WithCause(err).WithRetryable(true)
	}

	return nil, types.NewError(types.ErrPersistence,
		fmt.Sprintf("conflict %s mutation exceeded %d optimistic retries", id, s.config.MutateRetries)).
		WithRetryable(true)
}

// List returns conflicts ordered by detection time, optionally filtered by
// status.
func (s *RedisStore) List(ctx context.Context, status negotiation.Status) ([]*negotiation.Conflict, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, types.NewError(types.ErrPersistence, "failed to list conflicts").
			WithCause(err).WithRetryable(true)
	}

	result := make([]*negotiation.Conflict, 0, len(ids))
	for _, id := range ids {
		c, err := s.Get(ctx, id)
		if err != nil {
			if types.GetErrorCode(err) == types.ErrConflictNotFound {
				continue
			}
			return nil, err
		}
		if status != "" && c.Status != status {
			continue
		}
		result = append(result, c)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DetectedAt.Equal(result[j].DetectedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].DetectedAt.Before(result[j].DetectedAt)
	})
	return result, nil
}
