package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRecord(name string) *domain.WhoisRecord {
	return &domain.WhoisRecord{
		DomainName:   name,
		CreationDate: []domain.DateValue{{Time: time.Date(2015, 3, 1, 0, 0, 0, 0, time.UTC)}},
	}
}

func TestMemoryCache_GetSet(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop(), 0)
	defer cache.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := cache.Get(ctx, "example.com")
	assert.ErrorIs(t, err, ports.ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "example.com", testRecord("example.com"), time.Hour))

	record, err := cache.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", record.DomainName)

	now = now.Add(time.Hour)
	_, err = cache.Get(ctx, "example.com")
	assert.ErrorIs(t, err, ports.ErrCacheMiss, "entries expire at their ttl")
}

func TestMemoryCache_Cleanup(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop(), 0)
	defer cache.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "short.com", testRecord("short.com"), time.Minute))
	require.NoError(t, cache.Set(ctx, "long.com", testRecord("long.com"), 24*time.Hour))
	assert.Equal(t, 2, cache.Len())

	now = now.Add(time.Hour)
	require.NoError(t, cache.Cleanup(ctx))

	assert.Equal(t, 1, cache.Len())
	_, err := cache.Get(ctx, "long.com")
	assert.NoError(t, err)
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop(), time.Millisecond)

	assert.NoError(t, cache.Close())
	assert.NoError(t, cache.Close())
}
