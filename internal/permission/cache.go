package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent. Callers treat any other
// cache error the same way a miss is treated, after logging: the cache is an
// accelerator, never a correctness dependency.
var ErrCacheMiss = errors.New("permission: cache miss")

const (
	setKeyPrefix      = "perm:set:"
	decisionKeyPrefix = "perm:decision:"
	versionKeyPrefix  = "perm:version:"
)

// Cache is the two-tier Redis cache in front of the store: a per-user
// expanded permission set and a per-(user, pattern) decision. Both tiers are
// time-boxed and cleared together on invalidation. A nil client degrades
// every operation to a miss.
type Cache struct {
	client      *redis.Client
	setTTL      time.Duration
	decisionTTL time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, setTTL, decisionTTL time.Duration) *Cache {
	return &Cache{client: client, setTTL: setTTL, decisionTTL: decisionTTL}
}

// Get fetches a raw value.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if c == nil || c.client == nil {
		return nil, ErrCacheMiss
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// SetWithTTL stores a raw value with an expiry.
func (c *Cache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a single key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// DeleteByPrefix removes every key under prefix using SCAN, so large
// keyspaces do not block Redis the way KEYS would.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) error {
	if c == nil || c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// UserSet returns the cached expanded permission set for the user.
func (c *Cache) UserSet(ctx context.Context, userID int64) (PermissionSet, error) {
	payload, err := c.Get(ctx, setKey(userID))
	if err != nil {
		return PermissionSet{}, err
	}
	var set PermissionSet
	if err := json.Unmarshal(payload, &set); err != nil {
		return PermissionSet{}, fmt.Errorf("permission: decode cached set: %w", err)
	}
	return set, nil
}

// StoreUserSet caches the expanded set for the configured TTL.
func (c *Cache) StoreUserSet(ctx context.Context, set PermissionSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("permission: encode set: %w", err)
	}
	return c.SetWithTTL(ctx, setKey(set.UserID), payload, c.setTTL)
}

// Decision returns a cached check outcome for (user, pattern).
func (c *Cache) Decision(ctx context.Context, userID int64, pattern string) (CheckResult, error) {
	payload, err := c.Get(ctx, decisionKey(userID, pattern))
	if err != nil {
		return CheckResult{}, err
	}
	var result CheckResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return CheckResult{}, fmt.Errorf("permission: decode cached decision: %w", err)
	}
	return result, nil
}

// StoreDecision caches a check outcome for the configured TTL.
func (c *Cache) StoreDecision(ctx context.Context, userID int64, pattern string, result CheckResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("permission: encode decision: %w", err)
	}
	return c.SetWithTTL(ctx, decisionKey(userID, pattern), payload, c.decisionTTL)
}

// Version returns the monotonic invalidation counter for the user,
// initialising it when missing.
func (c *Cache) Version(ctx context.Context, userID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKeyPrefix + strconv.FormatInt(userID, 10)
	ver, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// InvalidateUser clears both tiers for the user and bumps the version
// counter. Called synchronously from every mutation to the user's roles or
// direct grants.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.Delete(ctx, setKey(userID)); err != nil {
		return err
	}
	if err := c.DeleteByPrefix(ctx, decisionKeyPrefix+strconv.FormatInt(userID, 10)+":"); err != nil {
		return err
	}
	return c.client.Incr(ctx, versionKeyPrefix+strconv.FormatInt(userID, 10)).Err()
}

func setKey(userID int64) string {
	return setKeyPrefix + strconv.FormatInt(userID, 10)
}

func decisionKey(userID int64, pattern string) string {
	return decisionKeyPrefix + strconv.FormatInt(userID, 10) + ":" + pattern
}
