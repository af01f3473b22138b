package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quillbooks/quill/internal/shared"
)

// Cache stores rendered trial balances in redis behind a per-company version
// counter. Bumping the counter on every posting makes stale keys unreachable
// without explicit deletes.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache wires the report cache. TTL bounds how long orphaned versions
// linger.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) versionKey(companyID int64) string {
	return fmt.Sprintf("books:%d:tb:ver", companyID)
}

func (c *Cache) key(ctx context.Context, companyID int64, asOf time.Time) (string, error) {
	ver, err := c.client.Get(ctx, c.versionKey(companyID)).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return shared.TrialBalanceCacheKey(companyID, fmt.Sprintf("v%d:%s", ver, asOf.Format("2006-01-02"))), nil
}

// Get returns the cached trial balance for the current ledger version, or
// ok=false on a miss.
func (c *Cache) Get(ctx context.Context, companyID int64, asOf time.Time) (TrialBalance, bool, error) {
	key, err := c.key(ctx, companyID, asOf)
	if err != nil {
		return TrialBalance{}, false, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return TrialBalance{}, false, nil
	}
	if err != nil {
		return TrialBalance{}, false, err
	}
	var tb TrialBalance
	if err := json.Unmarshal(raw, &tb); err != nil {
		return TrialBalance{}, false, nil
	}
	return tb, true, nil
}

// Set stores a rendered trial balance under the current ledger version.
func (c *Cache) Set(ctx context.Context, companyID int64, asOf time.Time, tb TrialBalance) error {
	key, err := c.key(ctx, companyID, asOf)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(tb)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates every cached report of the company by advancing its ledger
// version. Satisfies the journal engine's cache port.
func (c *Cache) Bump(ctx context.Context, companyID int64) error {
	return c.client.Incr(ctx, c.versionKey(companyID)).Err()
}
