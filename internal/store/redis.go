package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis instance. Items are stored as JSON
// under "<table>:<id>" keys.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func redisKey(table, id string) string {
	return table + ":" + id
}

// Put writes a single item
func (s *RedisStore) Put(ctx context.Context, table string, item Item) error {
	id, err := ItemID(item)
	if err != nil {
		return err
	}

	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item %s: %w", id, err)
	}

	if err := s.client.Set(ctx, redisKey(table, id), body, 0).Err(); err != nil {
		return classifyRedisError(err)
	}
	return nil
}

// BatchWrite writes items through a single pipeline round trip. Commands
// that fail individually are reported back as unprocessed items.
func (s *RedisStore) BatchWrite(ctx context.Context, table string, items []Item) ([]Item, error) {
	if len(items) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds store limit of %d", len(items), MaxBatchSize)
	}
	if len(items) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StatusCmd, 0, len(items))
	indexed := make([]Item, 0, len(items))

	for _, item := range items {
		id, err := ItemID(item)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("failed to encode item %s: %w", id, err)
		}
		cmds = append(cmds, pipe.Set(ctx, redisKey(table, id), body, 0))
		indexed = append(indexed, item)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		// A pipeline-level failure may still have applied some commands;
		// fall through and collect the per-command outcomes.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	var unprocessed []Item
	for i, cmd := range cmds {
		if cmdErr := cmd.Err(); cmdErr != nil {
			if isRedisCapacityError(cmdErr) {
				return indexed[i:], classifyRedisError(cmdErr)
			}
			unprocessed = append(unprocessed, indexed[i])
		}
	}
	return unprocessed, nil
}

// Get returns the item under key
func (s *RedisStore) Get(ctx context.Context, table, key string) (Item, error) {
	body, err := s.client.Get(ctx, redisKey(table, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyRedisError(err)
	}

	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", key, err)
	}
	return item, nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func isRedisCapacityError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "OOM") || strings.Contains(msg, "MAXMEMORY")
}

func classifyRedisError(err error) error {
	if isRedisCapacityError(err) {
		return fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
	}
	return err
}

var _ Store = (*RedisStore)(nil)
