package reports

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func cachedTB() TrialBalance {
	return TrialBalance{
		AsOf:        asOf(),
		TotalDebit:  decimal.RequireFromString("2000"),
		TotalCredit: decimal.RequireFromString("2000"),
		Rows: []TrialBalanceRow{
			{AccountID: 1, Code: "1000", Name: "Cash", Debit: decimal.RequireFromString("2000"), Credit: decimal.Zero, Balance: decimal.RequireFromString("2000")},
		},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, 1, asOf())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, 1, asOf(), cachedTB()))

	got, ok, err := cache.Get(ctx, 1, asOf())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.TotalDebit.Equal(decimal.RequireFromString("2000")))
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "1000", got.Rows[0].Code)
}

func TestCacheBumpInvalidates(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 1, asOf(), cachedTB()))
	require.NoError(t, cache.Bump(ctx, 1))

	_, ok, err := cache.Get(ctx, 1, asOf())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheBumpScopedToCompany(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 1, asOf(), cachedTB()))
	require.NoError(t, cache.Set(ctx, 2, asOf(), cachedTB()))
	require.NoError(t, cache.Bump(ctx, 1))

	_, ok, err := cache.Get(ctx, 1, asOf())
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cache.Get(ctx, 2, asOf())
	require.NoError(t, err)
	assert.True(t, ok)
}
