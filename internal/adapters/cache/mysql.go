package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/contactsift/contact-verifier/internal/core"
)

// MySQLCache is the shared-database cache backend, for deployments where
// several verifier instances should reuse each other's probe results.
type MySQLCache struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewMySQLCache connects to MySQL and initializes the cache schema.
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS domain_cache (
			domain VARCHAR(255) PRIMARY KEY,
			record TEXT,
			expires_at DATETIME,
			INDEX idx_domain_expires (expires_at)
		)`,
		`CREATE TABLE IF NOT EXISTS probe_cache (
			address VARCHAR(320) PRIMARY KEY,
			result TEXT,
			expires_at DATETIME,
			INDEX idx_probe_expires (expires_at)
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
		}
	}

	c := &MySQLCache{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go c.startCleanupTask()

	return c, nil
}

// GetDomain retrieves an unexpired DomainRecord.
func (c *MySQLCache) GetDomain(ctx context.Context, key string) (*core.DomainRecord, bool) {
	var payload string
	err := c.db.QueryRowContext(ctx, `
		SELECT record FROM domain_cache
		WHERE domain = ? AND expires_at > UTC_TIMESTAMP()
	`, key).Scan(&payload)
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
func (c *MySQLCache) SetDomain(ctx context.Context, key string, rec core.DomainRecord, ttl time.Duration) {
	payload, err := json.Marshal(rec)
	if err != nil {
		c.logger.Error("Failed to encode domain record", zap.Error(err))
		return
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO domain_cache (domain, record, expires_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE record = VALUES(record), expires_at = VALUES(expires_at)
	`, key, string(payload), time.Now().UTC().Add(ttl))
	if err != nil {
		c.logger.Error("Failed to insert domain cache entry", zap.Error(err), zap.String("key", key))
	}
}

// GetProbe retrieves an unexpired ProbeResult.
func (c *MySQLCache) GetProbe(ctx context.Context, address string) (*core.ProbeResult, bool) {
	var payload string
	err := c.db.QueryRowContext(ctx, `
		SELECT result FROM probe_cache
		WHERE address = ? AND expires_at > UTC_TIMESTAMP()
	`, address).Scan(&payload)
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
func (c *MySQLCache) SetProbe(ctx context.Context, res core.ProbeResult, ttl time.Duration) {
	payload, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("Failed to encode probe result", zap.Error(err))
		return
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO probe_cache (address, result, expires_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE result = VALUES(result), expires_at = VALUES(expires_at)
	`, res.Address, string(payload), time.Now().UTC().Add(ttl))
	if err != nil {
		c.logger.Error("Failed to insert probe cache entry", zap.Error(err), zap.String("address", res.Address))
	}
}

// Cleanup removes expired entries from both tables.
func (c *MySQLCache) Cleanup(ctx context.Context) error {
	for _, stmt := range []string{
		`DELETE FROM domain_cache WHERE expires_at <= UTC_TIMESTAMP()`,
		`DELETE FROM probe_cache WHERE expires_at <= UTC_TIMESTAMP()`,
	} {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clean up cache: %w", err)
		}
	}
	return nil
}

func (c *MySQLCache) startCleanupTask() {
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

// Stop stops the cleanup task and closes the connection pool.
func (c *MySQLCache) Stop() {
	close(c.stopCh)
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close MySQL connection", zap.Error(err))
	}
}
