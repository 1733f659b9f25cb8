package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"SQLPumpClickHouse/internal/config"
)

const redisTimeout = 5 * time.Second

// RedisStore хранит смещения в хеше: поле — путь к файлу, значение — смещение.
// Save заменяет хеш целиком, поэтому забытые файлы из него пропадают.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(cfg *config.RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}
	return &RedisStore{client: rdb, key: cfg.Key}, nil
}

func (r *RedisStore) Load() (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", r.key, err)
	}
	return decodeOffsets(fields)
}

func (r *RedisStore) Save(data map[string]int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(data) > 0 {
			pipe.HSet(ctx, r.key, encodeOffsets(data))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func encodeOffsets(data map[string]int64) map[string]any {
	values := make(map[string]any, len(data))
	for file, offset := range data {
		values[file] = strconv.FormatInt(offset, 10)
	}
	return values
}

func decodeOffsets(fields map[string]string) (map[string]int64, error) {
	processed := make(map[string]int64, len(fields))
	for file, raw := range fields {
		offset, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("offset for %s: %w", file, err)
		}
		processed[file] = offset
	}
	return processed, nil
}
