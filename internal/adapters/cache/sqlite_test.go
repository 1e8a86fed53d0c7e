package cache_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contactsift/contact-verifier/internal/adapters/cache"
)

func newSQLiteCache(t *testing.T) *cache.SQLiteCache {
	t.Helper()
	c, err := cache.NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func TestSQLiteCacheDomainRoundTrip(t *testing.T) {
	c := newSQLiteCache(t)
	ctx := context.Background()

	_, hit := c.GetDomain(ctx, "example.com")
	assert.False(t, hit)

	rec := testDomainRecord()
	c.SetDomain(ctx, rec.Domain, rec, time.Minute)

	got, hit := c.GetDomain(ctx, "example.com")
	require.True(t, hit)
	assert.Equal(t, rec.Domain, got.Domain)
	assert.Equal(t, rec.MailHosts, got.MailHosts)
	assert.Equal(t, rec.CatchAll, got.CatchAll)
}

func TestSQLiteCacheProbeRoundTrip(t *testing.T) {
	c := newSQLiteCache(t)
	ctx := context.Background()

	res := testProbeResult()
	c.SetProbe(ctx, res, time.Minute)

	got, hit := c.GetProbe(ctx, res.Address)
	require.True(t, hit)
	assert.Equal(t, res.Outcome, got.Outcome)
	assert.Equal(t, res.Code, got.Code)
	assert.Equal(t, res.ViaHost, got.ViaHost)
}

func TestSQLiteCacheExpiredEntriesAreMisses(t *testing.T) {
	c := newSQLiteCache(t)
	ctx := context.Background()

	c.SetDomain(ctx, "example.com", testDomainRecord(), -time.Minute)
	c.SetProbe(ctx, testProbeResult(), -time.Minute)

	_, hit := c.GetDomain(ctx, "example.com")
	assert.False(t, hit)
	_, hit = c.GetProbe(ctx, "john@example.com")
	assert.False(t, hit)
}

func TestSQLiteCacheCleanup(t *testing.T) {
	c := newSQLiteCache(t)
	ctx := context.Background()

	c.SetDomain(ctx, "example.com", testDomainRecord(), -time.Minute)
	keep := testProbeResult()
	c.SetProbe(ctx, keep, time.Hour)

	require.NoError(t, c.Cleanup(ctx))

	_, hit := c.GetProbe(ctx, keep.Address)
	assert.True(t, hit)
}

func TestSQLiteCacheOverwrite(t *testing.T) {
	c := newSQLiteCache(t)
	ctx := context.Background()

	res := testProbeResult()
	c.SetProbe(ctx, res, time.Minute)

	res.Code = 550
	c.SetProbe(ctx, res, time.Minute)

	got, hit := c.GetProbe(ctx, res.Address)
	require.True(t, hit)
	assert.Equal(t, 550, got.Code)
}
