// Package redis stores cached schemas in Redis so several API replicas share them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/schema"
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

type Backend struct {
	client client
	closer func() error
	prefix string
	ttl    time.Duration
}

func New(ctx context.Context, cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	backend := NewWithClient(rdb, cfg.KeyPrefix, cfg.TTL)
	backend.closer = rdb.Close
	return backend, nil
}

func NewWithClient(c client, prefix string, ttl time.Duration) *Backend {
	return &Backend{client: c, prefix: prefix, ttl: ttl}
}

func (b *Backend) Get(ctx context.Context, key schema.Key) ([]schema.TableStructure, bool, error) {
	raw, err := b.client.Get(ctx, b.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var tables []schema.TableStructure
	if err := json.Unmarshal(raw, &tables); err != nil {
		return nil, false, fmt.Errorf("decode cached schema: %w", err)
	}
	return tables, true, nil
}

func (b *Backend) Put(ctx context.Context, key schema.Key, tables []schema.TableStructure) error {
	if tables == nil {
		tables = []schema.TableStructure{}
	}
	raw, err := json.Marshal(tables)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	if err := b.client.Set(ctx, b.redisKey(key), raw, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key schema.Key) error {
	if err := b.client.Del(ctx, b.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

func (b *Backend) redisKey(key schema.Key) string {
	return b.prefix + key.String()
}
