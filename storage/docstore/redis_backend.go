package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ArbMon-Fusion/dca-engine/config"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
)

const snapshotKey = "dca:snapshot"

// RedisBackend keeps the snapshot under a single key, so the document
// read-all/write-all semantics match the file backend exactly.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(cfg config.Config) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.Redis.Host + ":" + cfg.Store.Redis.Port,
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

func (r *RedisBackend) Load(ctx context.Context) (*types.Snapshot, error) {
	buf, err := r.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot key: %w", err)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(buf, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

func (r *RedisBackend) Save(ctx context.Context, snapshot *types.Snapshot) error {
	buf, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKey, buf, 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot key: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
