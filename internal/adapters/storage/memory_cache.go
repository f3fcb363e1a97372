package storage

import (
	"context"
	"sync"
	"time"

	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/ports"
	"go.uber.org/zap"
)

type memoryEntry struct {
	record    *domain.WhoisRecord
	expiresAt time.Time
}

// MemoryCache is an in-process implementation of ports.RegistrationCache
type MemoryCache struct {
	entries     map[string]memoryEntry
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	now         func() time.Time
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryCache creates a memory cache. Expired entries are dropped every
// cleanupFreq; a non-positive frequency disables the background cleanup.
func NewMemoryCache(logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	cache := &MemoryCache{
		entries:     make(map[string]memoryEntry),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go cache.startCleanupTask()
	}

	return cache
}

// Get returns the live record of a domain
func (c *MemoryCache) Get(_ context.Context, domainName string) (*domain.WhoisRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[domainName]
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, ports.ErrCacheMiss
	}
	return entry.record, nil
}

// Set stores a record for ttl
func (c *MemoryCache) Set(_ context.Context, domainName string, record *domain.WhoisRecord, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[domainName] = memoryEntry{
		record:    record,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Cleanup removes expired entries
func (c *MemoryCache) Cleanup(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expiredCount := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			expiredCount++
		}
	}

	c.logger.Debug("Cleaned up expired registration records", zap.Int("expired_count", expiredCount))
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
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

// Close stops the background cleanup task
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	return nil
}
