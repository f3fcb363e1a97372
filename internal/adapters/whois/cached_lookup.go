package whois

import (
	"context"
	"errors"
	"time"

	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/metrics"
	"github.com/stoik/phishing-risk/internal/ports"
	"go.uber.org/zap"
)

// CachedLookup decorates a ports.WhoisLookup with a registration cache
//
// Cache failures are logged and the lookup falls through to the registry.
// Only records carrying a creation date are cached.
type CachedLookup struct {
	next    ports.WhoisLookup
	cache   ports.RegistrationCache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCachedLookup creates a caching lookup
func NewCachedLookup(next ports.WhoisLookup, cache ports.RegistrationCache, ttl time.Duration, m *metrics.Metrics, logger *zap.Logger) *CachedLookup {
	return &CachedLookup{
		next:    next,
		cache:   cache,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// Lookup returns the cached record of a domain, or resolves and caches it
func (l *CachedLookup) Lookup(ctx context.Context, domainName string) (*domain.WhoisRecord, error) {
	record, err := l.cache.Get(ctx, domainName)
	switch {
	case err == nil:
		l.metrics.RecordCache("hit")
		return record, nil
	case errors.Is(err, ports.ErrCacheMiss):
		l.metrics.RecordCache("miss")
	default:
		l.metrics.RecordCache("error")
		l.logger.Warn("Registration cache read failed", zap.String("domain", domainName), zap.Error(err))
	}

	record, err = l.next.Lookup(ctx, domainName)
	if err != nil {
		return nil, err
	}

	if record != nil && len(record.CreationDate) > 0 {
		if err := l.cache.Set(ctx, domainName, record, l.ttl); err != nil {
			l.logger.Warn("Registration cache write failed", zap.String("domain", domainName), zap.Error(err))
		}
	}
	return record, nil
}
