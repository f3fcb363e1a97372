package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/ports"
	"go.uber.org/zap"
)

// Supported SQL dialects, named after their database/sql drivers
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// SQLCache implements ports.RegistrationCache on a relational database
//
// Records are stored as JSON next to their expiry as Unix seconds, which keeps
// the schema identical across dialects.
type SQLCache struct {
	db          *sql.DB
	dialect     string
	logger      *zap.Logger
	now         func() time.Time
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewSQLCache opens the database, checks the connection and creates the schema.
// Expired rows are purged once at startup and then every cleanupFreq; a
// non-positive frequency disables the background purge.
func NewSQLCache(dialect, dsn string, cleanupFreq time.Duration, logger *zap.Logger) (*SQLCache, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres, DialectMySQL:
	default:
		return nil, fmt.Errorf("unsupported SQL dialect: %s", dialect)
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dialect == DialectSQLite {
		// SQLite serializes writers; a single connection avoids "database is locked"
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(1)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	cache := &SQLCache{
		db:          db,
		dialect:     dialect,
		logger:      logger,
		now:         time.Now,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}
	if err := cache.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	if cleanupFreq > 0 {
		if err := cache.Cleanup(context.Background()); err != nil {
			logger.Warn("Initial registration cache cleanup failed", zap.Error(err))
		}
		cache.wg.Add(1)
		go cache.startCleanupTask()
	}
	return cache, nil
}

func (c *SQLCache) startCleanupTask() {
	defer c.wg.Done()

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

// Close stops the background cleanup and closes the database connection
func (c *SQLCache) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		err = c.db.Close()
	})
	return err
}

// InitSchema creates the cache table if it doesn't exist
func (c *SQLCache) InitSchema(ctx context.Context) error {
	statements := []string{`
		CREATE TABLE IF NOT EXISTS registration_cache (
			domain VARCHAR(253) PRIMARY KEY,
			record TEXT NOT NULL,
			expires_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_registration_expires ON registration_cache(expires_at)`,
	}
	// MySQL has no CREATE INDEX IF NOT EXISTS, the index goes into the table definition
	if c.dialect == DialectMySQL {
		statements = []string{`
		CREATE TABLE IF NOT EXISTS registration_cache (
			domain VARCHAR(253) PRIMARY KEY,
			record TEXT NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_registration_expires (expires_at)
		)`}
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create registration cache schema: %w", err)
		}
	}
	return nil
}

// Get returns the live record of a domain
func (c *SQLCache) Get(ctx context.Context, domainName string) (*domain.WhoisRecord, error) {
	query := c.rebind(`
		SELECT record
		FROM registration_cache
		WHERE domain = ? AND expires_at > ?
	`)

	var payload string
	err := c.db.QueryRowContext(ctx, query, domainName, c.now().Unix()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query registration cache: %w", err)
	}

	record := &domain.WhoisRecord{}
	if err := json.Unmarshal([]byte(payload), record); err != nil {
		return nil, fmt.Errorf("failed to decode cached record of %s: %w", domainName, err)
	}
	return record, nil
}

// Set stores or replaces the record of a domain
func (c *SQLCache) Set(ctx context.Context, domainName string, record *domain.WhoisRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record of %s: %w", domainName, err)
	}

	_, err = c.db.ExecContext(ctx, c.upsertQuery(), domainName, string(payload), c.now().Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to store record of %s: %w", domainName, err)
	}
	return nil
}

// Cleanup removes expired entries
func (c *SQLCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, c.rebind(`DELETE FROM registration_cache WHERE expires_at <= ?`), c.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired registration records", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

func (c *SQLCache) upsertQuery() string {
	if c.dialect == DialectMySQL {
		return `
			INSERT INTO registration_cache (domain, record, expires_at)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE record = VALUES(record), expires_at = VALUES(expires_at)
		`
	}
	return c.rebind(`
		INSERT INTO registration_cache (domain, record, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (domain) DO UPDATE
		SET record = EXCLUDED.record,
		    expires_at = EXCLUDED.expires_at
	`)
}

func (c *SQLCache) rebind(query string) string {
	return rebind(c.dialect, query)
}

// rebind rewrites '?' placeholders into the dialect's bind variables
func rebind(dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
