package ports

import (
	"context"

	"github.com/stoik/phishing-risk/internal/domain"
)

// EmailSource yields already-parsed email records to analyze
type EmailSource interface {
	// Messages returns every message of the source. A message that cannot be
	// decoded is skipped by the source and does not fail the batch.
	Messages(ctx context.Context) ([]domain.ParsedEmail, error)

	// Name identifies the source in logs (e.g., a file path)
	Name() string
}
