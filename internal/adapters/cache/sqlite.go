package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/contactsift/contact-verifier/internal/core"
)

// SQLiteCache persists the domain and probe caches across process
// restarts. Persistence is an optimization, not a correctness
// requirement: a fresh database yields the same decisions, only slower.
type SQLiteCache struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewSQLiteCache opens (and if needed initializes) the cache database.
func NewSQLiteCache(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS domain_cache (
			domain TEXT PRIMARY KEY,
			record TEXT,
			expires_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS probe_cache (
			address TEXT PRIMARY KEY,
			result TEXT,
			expires_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_expires ON domain_cache(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_probe_expires ON probe_cache(expires_at)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
		}
	}

	c := &SQLiteCache{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go c.startCleanupTask()

	return c, nil
}

// GetDomain retrieves an unexpired DomainRecord.
func (c *SQLiteCache) GetDomain(ctx context.Context, key string) (*core.DomainRecord, bool) {
	var payload string
	err := c.db.QueryRowContext(ctx, `
		SELECT record FROM domain_cache
		WHERE domain = ? AND expires_at > ?
	`, key, time.Now().UTC().Format(time.RFC3339)).Scan(&payload)
	if err != nil {
		if err != sql.ErrNoRows {
			c.logger.Error("Failed to query domain cache", zap.Error(err), zap.String("key", key))
		}
		return nil, false
	}

	var rec core.DomainRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		c.logger.Error("Failed to decode cached domain record", zap.Error(err))
		return nil, false
	}
	return &rec, true
}

// SetDomain stores a DomainRecord under the given key and TTL.
func (c *SQLiteCache) SetDomain(ctx context.Context, key string, rec core.DomainRecord, ttl time.Duration) {
	payload, err := json.Marshal(rec)
	if err != nil {
		c.logger.Error("Failed to encode domain record", zap.Error(err))
		return
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO domain_cache (domain, record, expires_at)
		VALUES (?, ?, ?)
	`, key, string(payload), time.Now().UTC().Add(ttl).Format(time.RFC3339))
	if err != nil {
		c.logger.Error("Failed to insert domain cache entry", zap.Error(err), zap.String("key", key))
	}
}

// GetProbe retrieves an unexpired ProbeResult.
func (c *SQLiteCache) GetProbe(ctx context.Context, address string) (*core.ProbeResult, bool) {
	var payload string
	err := c.db.QueryRowContext(ctx, `
		SELECT result FROM probe_cache
		WHERE address = ? AND expires_at > ?
	`, address, time.Now().UTC().Format(time.RFC3339)).Scan(&payload)
	if err != nil {
		if err != sql.ErrNoRows {
			c.logger.Error("Failed to query probe cache", zap.Error(err), zap.String("address", address))
		}
		return nil, false
	}

	var res core.ProbeResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		c.logger.Error("Failed to decode cached probe result", zap.Error(err))
		return nil, false
	}
	return &res, true
}

// SetProbe stores a ProbeResult under the given TTL.
func (c *SQLiteCache) SetProbe(ctx context.Context, res core.ProbeResult, ttl time.Duration) {
	payload, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("Failed to encode probe result", zap.Error(err))
		return
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO probe_cache (address, result, expires_at)
		VALUES (?, ?, ?)
	`, res.Address, string(payload), time.Now().UTC().Add(ttl).Format(time.RFC3339))
	if err != nil {
		c.logger.Error("Failed to insert probe cache entry", zap.Error(err), zap.String("address", res.Address))
	}
}

// Cleanup removes expired entries from both tables.
func (c *SQLiteCache) Cleanup(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, stmt := range []string{
		`DELETE FROM domain_cache WHERE expires_at <= ?`,
		`DELETE FROM probe_cache WHERE expires_at <= ?`,
	} {
		if _, err := c.db.ExecContext(ctx, stmt, now); err != nil {
			return fmt.Errorf("failed to clean up cache: %w", err)
		}
	}
	return nil
}

func (c *SQLiteCache) startCleanupTask() {
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

// Stop stops the cleanup task and closes the database.
func (c *SQLiteCache) Stop() {
	close(c.stopCh)
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}
