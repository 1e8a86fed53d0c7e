// Package cache provides the repositories behind the probe scheduler:
// DomainRecords keyed by domain and ProbeResults keyed by exact address,
// each under its own time-to-live.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/contactsift/contact-verifier/internal/core"
)

type domainEntry struct {
	record    core.DomainRecord
	expiresAt time.Time
}

type probeEntry struct {
	result    core.ProbeResult
	expiresAt time.Time
}

// MemoryCache is the in-memory implementation of core.CacheRepository.
// Cold-starting with an empty cache produces identical decisions, only
// slower, so memory is the default backend.
type MemoryCache struct {
	mu          sync.RWMutex
	domains     map[string]domainEntry
	probes      map[string]probeEntry
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryCache creates an in-memory cache with a background cleanup task.
func NewMemoryCache(logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	c := &MemoryCache{
		domains:     make(map[string]domainEntry),
		probes:      make(map[string]probeEntry),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go c.startCleanupTask()

	return c
}

// GetDomain retrieves an unexpired DomainRecord.
func (c *MemoryCache) GetDomain(_ context.Context, key string) (*core.DomainRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.domains[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	rec := e.record
	return &rec, true
}

// SetDomain stores a DomainRecord under the given key and TTL.
func (c *MemoryCache) SetDomain(_ context.Context, key string, rec core.DomainRecord, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.domains[key] = domainEntry{record: rec, expiresAt: time.Now().Add(ttl)}
}

// GetProbe retrieves an unexpired ProbeResult.
func (c *MemoryCache) GetProbe(_ context.Context, address string) (*core.ProbeResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.probes[address]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	res := e.result
	return &res, true
}

// SetProbe stores a ProbeResult under the given TTL.
func (c *MemoryCache) SetProbe(_ context.Context, res core.ProbeResult, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[res.Address] = probeEntry{result: res, expiresAt: time.Now().Add(ttl)}
}

// Cleanup removes expired entries.
func (c *MemoryCache) Cleanup(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expired := 0
	for domain, e := range c.domains {
		if now.After(e.expiresAt) {
			delete(c.domains, domain)
			expired++
		}
	}
	for address, e := range c.probes {
		if now.After(e.expiresAt) {
			delete(c.probes, address)
			expired++
		}
	}

	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expired))
	return nil
}

func (c *MemoryCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
