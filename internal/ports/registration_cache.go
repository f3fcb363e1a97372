package ports

import (
	"context"
	"errors"
	"time"

	"github.com/stoik/phishing-risk/internal/domain"
)

// ErrCacheMiss is returned by RegistrationCache.Get when no live entry exists
var ErrCacheMiss = errors.New("registration cache miss")

// RegistrationCache stores WHOIS records so repeated analyses of the same
// domains do not hit the registry again
type RegistrationCache interface {
	// Get returns the cached record, or ErrCacheMiss when absent or expired
	Get(ctx context.Context, domainName string) (*domain.WhoisRecord, error)

	// Set stores a record for ttl
	Set(ctx context.Context, domainName string, record *domain.WhoisRecord, ttl time.Duration) error

	// Lifecycle
	Close() error
}
