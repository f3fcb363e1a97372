package detection

import (
	"context"
	"time"
)

// Clock returns the current time. Tests inject a fixed clock so that domain
// ages and report timestamps are deterministic.
type Clock func() time.Time

// SystemClock returns the wall-clock time in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}

// Sleeper waits between lookup attempts and returns early with the context's error when cancelled
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep waits for d or until ctx is done
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DetectionContext provides the configuration shared by the analyzers
type DetectionContext struct {
	// ProtectedDomains are brands whose name in a From address must be backed
	// by authentication (e.g., "paypal.com", "didiglobal.com")
	ProtectedDomains []string

	// GatewaySPFHeaders are headers where an upstream mail filter writes its own SPF verdict
	GatewaySPFHeaders []string

	// CheckRecipientAge enables the registration lookup of the recipient domain
	// and the sender vs recipient age comparison
	CheckRecipientAge bool

	Policy Policy
	Retry  RetryPolicy
	Clock  Clock
}

// NewDetectionContext creates a detection context with the stock policy
func NewDetectionContext(protectedDomains []string) *DetectionContext {
	return &DetectionContext{
		ProtectedDomains:  protectedDomains,
		GatewaySPFHeaders: []string{"X-Fangmail-Spf"},
		CheckRecipientAge: true,
		Policy:            DefaultPolicy(),
		Retry:             DefaultRetryPolicy(),
		Clock:             SystemClock,
	}
}
