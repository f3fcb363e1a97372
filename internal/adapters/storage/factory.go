package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stoik/phishing-risk/internal/config"
	"github.com/stoik/phishing-risk/internal/ports"
	"go.uber.org/zap"
)

// Cache types accepted in cache.type
const (
	TypeMemory   = "memory"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeRedis    = "redis"
)

// NewRegistrationCache creates the registration cache selected by the configuration
func NewRegistrationCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (ports.RegistrationCache, error) {
	logger = logger.With(zap.String("cache_type", cfg.Type))

	switch cfg.Type {
	case TypeMemory, "":
		logger.Info("Using in-memory registration cache")
		return NewMemoryCache(logger, cfg.CleanupFreq), nil

	case TypeSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("cache.sqlite_path is required for the sqlite cache")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		logger.Info("Using SQLite registration cache", zap.String("path", cfg.SQLitePath))
		return NewSQLCache(DialectSQLite, cfg.SQLitePath, cfg.CleanupFreq, logger)

	case TypePostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("cache.postgres_dsn is required for the postgres cache")
		}
		logger.Info("Using PostgreSQL registration cache")
		return NewSQLCache(DialectPostgres, cfg.PostgresDSN, cfg.CleanupFreq, logger)

	case TypeMySQL:
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("cache.mysql_dsn is required for the mysql cache")
		}
		logger.Info("Using MySQL registration cache")
		return NewSQLCache(DialectMySQL, cfg.MySQLDSN, cfg.CleanupFreq, logger)

	case TypeRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("cache.redis_addr is required for the redis cache")
		}
		logger.Info("Using Redis registration cache", zap.String("addr", cfg.RedisAddr))
		return NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
