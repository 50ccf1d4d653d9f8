// Package cache оборачивает клиент Redis: JSON-значения с TTL, множества
// и атомарная отметка ключа (SETNX).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/ewaste-hub/internal/config"
)

// Cache клиент Redis.
type Cache struct {
	Db *redis.Client
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.Redis) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

// Close закрывает соединение.
func (c *Cache) Close() error {
	return c.Db.Close()
}

// Get читает JSON-значение ключа в result. Отсутствие ключа не ошибка: found=false.
func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = json.Unmarshal(val, result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Set сохраняет значение в JSON с временем жизни expiration.
func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	const op = "cache.Set"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = c.Db.Set(ctx, key, jsonData, expiration).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetExisting перезаписывает значение, только если ключ ещё существует.
// Возвращает false, если ключа нет.
func (c *Cache) SetExisting(ctx context.Context, key string, value any, expiration time.Duration) (bool, error) {
	const op = "cache.SetExisting"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	ok, err := c.Db.SetXX(ctx, key, jsonData, expiration).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// Invalidate удаляет ключи.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.Db.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache.Invalidate: %w", err)
	}
	return nil
}

// Claim атомарно создаёт ключ, если его нет. Возвращает false, если ключ уже был.
func (c *Cache) Claim(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	ok, err := c.Db.SetNX(ctx, key, time.Now().Unix(), expiration).Result()
	if err != nil {
		return false, fmt.Errorf("cache.Claim: %w", err)
	}
	return ok, nil
}

// AddMember добавляет member во множество key и продлевает его TTL.
func (c *Cache) AddMember(ctx context.Context, key, member string, expiration time.Duration) error {
	const op = "cache.AddMember"
	pipe := c.Db.TxPipeline()
	pipe.SAdd(ctx, key, member)
	pipe.Expire(ctx, key, expiration)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RemoveMember удаляет member из множества key.
func (c *Cache) RemoveMember(ctx context.Context, key, member string) error {
	if err := c.Db.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("cache.RemoveMember: %w", err)
	}
	return nil
}

// Members возвращает элементы множества key.
func (c *Cache) Members(ctx context.Context, key string) ([]string, error) {
	members, err := c.Db.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("cache.Members: %w", err)
	}
	return members, nil
}
