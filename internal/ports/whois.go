package ports

import (
	"context"

	"github.com/stoik/phishing-risk/internal/domain"
)

// WhoisLookup resolves the registration record of a domain
//
// Implementations perform a single attempt. Retrying is owned by the
// registration analyzer, not by the lookup service.
type WhoisLookup interface {
	Lookup(ctx context.Context, domainName string) (*domain.WhoisRecord, error)
}
