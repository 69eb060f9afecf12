// Package redis is the session cache backed by Redis: a blacklist of revoked
// access tokens and per-account session markers. Both are advisory and expire
// on their own.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"subtrack/internal/domain/models"
)

const (
	blacklistPrefix = "blacklist:"
	sessionPrefix   = "session:"
)

type Cache struct {
	client redis.UniversalClient
}

type sessionMarker struct {
	Generation models.Generation `json:"generation"`
}

// New connects to addr and pings it once. timeout bounds dialing and every
// read or write on the connection.
func New(ctx context.Context, addr, password string, db int, timeout time.Duration) (*Cache, error) {
	const op = "cache.redis.New"

	c := Dial(addr, password, db, timeout)

	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return c, nil
}

// Dial returns a cache without checking the backend. The client connects
// lazily, so a backend that is down now is picked up once it returns.
func Dial(addr, password string, db int, timeout time.Duration) *Cache {
	return &Cache{client: redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   1,
	})}
}

func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	const op = "cache.redis.IsBlacklisted"

	n, err := c.client.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

// Blacklist marks token as revoked for ttl, rounded up to whole seconds so the
// entry never expires before the token does. A non-positive ttl is a no-op.
func (c *Cache) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	const op = "cache.redis.Blacklist"

	if ttl <= 0 {
		return nil
	}

	if err := c.client.Set(ctx, blacklistPrefix+token, "1", ceilSeconds(ttl)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Cache) SetSessionMarker(ctx context.Context, accountID int64, gen models.Generation, ttl time.Duration) error {
	const op = "cache.redis.SetSessionMarker"

	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(sessionMarker{Generation: gen})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := c.client.Set(ctx, sessionKey(accountID), payload, ceilSeconds(ttl)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Cache) ClearSessionMarker(ctx context.Context, accountID int64) error {
	const op = "cache.redis.ClearSessionMarker"

	if err := c.client.Del(ctx, sessionKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func sessionKey(accountID int64) string {
	return sessionPrefix + strconv.FormatInt(accountID, 10)
}

func ceilSeconds(d time.Duration) time.Duration {
	if r := d % time.Second; r != 0 {
		d += time.Second - r
	}
	return d
}
