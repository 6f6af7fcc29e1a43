// Package cache хранит снимки статуса доступа в redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

const snapshotPrefix = "entitlement:"

// Cache обёртка над клиентом redis с JSON-сериализацией значений.
type Cache struct {
	Db *redis.Client
}

// InitServer подключается к redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

// SnapshotKey ключ снимка статуса пользователя.
func SnapshotKey(userUID string) string {
	return snapshotPrefix + userUID
}

func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = json.Unmarshal([]byte(val), result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	const op = "cache.Set"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Db.Set(ctx, key, jsonData, expiration).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	const op = "cache.Invalidate"
	if err := c.Db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SnapshotStore хранит последний успешно вычисленный статус пользователя.
type SnapshotStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewSnapshotStore создаёт хранилище снимков с заданным временем жизни.
func NewSnapshotStore(c *Cache, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{cache: c, ttl: ttl}
}

// GetSnapshot возвращает снимок, found=false если его нет или он истёк.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, userUID string) (models.Status, bool, error) {
	var status models.Status
	found, err := s.cache.Get(ctx, SnapshotKey(userUID), &status)
	if err != nil || !found {
		return models.Status{}, false, err
	}
	return status, true, nil
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, userUID string, status models.Status) error {
	return s.cache.Set(ctx, SnapshotKey(userUID), status, s.ttl)
}

func (s *SnapshotStore) InvalidateSnapshot(ctx context.Context, userUID string) error {
	return s.cache.Invalidate(ctx, SnapshotKey(userUID))
}

func (c *Cache) Close() error {
	return c.Db.Close()
}

// Ping проверяет доступность redis.
func (c *Cache) Ping(ctx context.Context) error {
	return c.Db.Ping(ctx).Err()
}
