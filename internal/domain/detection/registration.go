package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

var errNoRegistrationData = errors.New("lookup returned no registration data")

// dateLayouts are the textual date forms accepted from WHOIS collaborators
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// RetryPolicy bounds the attempts made against the WHOIS collaborator
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Sleep    Sleeper
}

// DefaultRetryPolicy makes 3 attempts spaced 2 seconds apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: LookupAttempts,
		Delay:    LookupRetryDelay,
		Sleep:    ContextSleep,
	}
}

// RegistrationAnalyzer classifies sender and recipient domains by registration age
//
// The WHOIS transport is an injected ports.WhoisLookup. Lookup errors are
// retried per RetryPolicy and finally downgraded to an unknown tier; they never
// reach the caller.
type RegistrationAnalyzer struct {
	lookup         ports.WhoisLookup
	policy         Policy
	retry          RetryPolicy
	clock          Clock
	checkRecipient bool
	logger         *zap.Logger
}

// RegistrationOption customizes a RegistrationAnalyzer
type RegistrationOption func(*RegistrationAnalyzer)

// WithClock sets the source of "now" used for domain ages
func WithClock(clock Clock) RegistrationOption {
	return func(a *RegistrationAnalyzer) { a.clock = clock }
}

// WithRetryPolicy replaces the default retry policy
func WithRetryPolicy(retry RetryPolicy) RegistrationOption {
	return func(a *RegistrationAnalyzer) { a.retry = retry }
}

// WithRecipientCheck enables or disables the recipient domain lookup
func WithRecipientCheck(enabled bool) RegistrationOption {
	return func(a *RegistrationAnalyzer) { a.checkRecipient = enabled }
}

// WithLogger sets the logger used to report retried lookups
func WithLogger(logger *zap.Logger) RegistrationOption {
	return func(a *RegistrationAnalyzer) { a.logger = logger }
}

// NewRegistrationAnalyzer creates a registration analyzer. A nil lookup disables
// WHOIS entirely; every domain then resolves to the unknown tier.
func NewRegistrationAnalyzer(lookup ports.WhoisLookup, policy Policy, opts ...RegistrationOption) *RegistrationAnalyzer {
	a := &RegistrationAnalyzer{
		lookup:         lookup,
		policy:         policy,
		retry:          DefaultRetryPolicy(),
		clock:          SystemClock,
		checkRecipient: true,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.retry.Attempts < 1 {
		a.retry.Attempts = 1
	}
	if a.retry.Sleep == nil {
		a.retry.Sleep = ContextSleep
	}
	return a
}

// Name returns the analyzer name
func (a *RegistrationAnalyzer) Name() string {
	return "domain_registration"
}

// Analyze checks the sender domain and, when enabled, the recipient domain,
// then compares their ages
func (a *RegistrationAnalyzer) Analyze(ctx context.Context, email domain.ParsedEmail) domain.RegistrationReport {
	report := domain.RegistrationReport{
		Level:    domain.LevelUnknown,
		Warnings: []string{},
	}

	senderDomain := firstDomain(email.From)
	if senderDomain == "" {
		report.Warnings = append(report.Warnings, "domain registration: no sender domain")
		return report
	}

	sender := a.CheckDomain(ctx, senderDomain)
	report.Sender = &sender
	report.Score += sender.Score

	recipientDomain := firstDomain(email.To)
	if a.checkRecipient && recipientDomain != "" && recipientDomain != senderDomain {
		recipient := a.CheckDomain(ctx, recipientDomain)
		report.Recipient = &recipient

		if sender.AgeDays != nil && recipient.AgeDays != nil {
			diff := *recipient.AgeDays - *sender.AgeDays
			comparison := &domain.AgeComparison{AgeDifferenceDays: diff}
			if diff > a.policy.AgeGapDays {
				warning := fmt.Sprintf(
					"sender domain %s is %d days newer than recipient domain %s, a common impersonation pattern",
					sender.Domain, diff, recipient.Domain,
				)
				report.Score += a.policy.AgeGapWeight
				comparison.Warnings = append(comparison.Warnings, warning)
				report.Warnings = append(report.Warnings, warning)
			}
			report.AgeComparison = comparison
		}
	}

	if sender.Tier == domain.LevelUnknown && report.Score == 0 {
		report.Level = domain.LevelUnknown
	} else {
		report.Level = a.policy.Registration.Level(report.Score, domain.LevelLow)
	}

	report.Warnings = append(report.Warnings, sender.Warnings...)
	if report.Recipient != nil {
		report.Warnings = append(report.Warnings, report.Recipient.Warnings...)
	}
	return report
}

// CheckDomain looks up one domain and classifies it by age
func (a *RegistrationAnalyzer) CheckDomain(ctx context.Context, name string) domain.DomainRegistration {
	reg := domain.DomainRegistration{
		Domain:   name,
		Tier:     domain.LevelUnknown,
		Warnings: []string{},
	}

	registrable, err := RegistrableDomain(name)
	if err != nil {
		reg.Warnings = append(reg.Warnings, fmt.Sprintf("cannot look up registration of %q: %v", name, err))
		return reg
	}
	reg.Domain = registrable

	if a.lookup == nil {
		reg.Warnings = append(reg.Warnings, fmt.Sprintf("registration lookup disabled, age of %s unknown", registrable))
		return reg
	}

	record, err := a.lookupWithRetry(ctx, registrable)
	if err != nil {
		reg.Warnings = append(reg.Warnings, fmt.Sprintf(
			"registration data for %s unavailable after %d attempts: %v", registrable, a.retry.Attempts, err))
		return reg
	}

	reg.Tier = domain.LevelLow
	a.interpret(record, &reg)
	return reg
}

func (a *RegistrationAnalyzer) lookupWithRetry(ctx context.Context, name string) (*domain.WhoisRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= a.retry.Attempts; attempt++ {
		record, err := a.lookup.Lookup(ctx, name)
		if err == nil && isEmptyRecord(record) {
			err = errNoRegistrationData
		}
		if err == nil {
			return record, nil
		}
		lastErr = err

		if attempt == a.retry.Attempts {
			break
		}
		a.logger.Debug("Registration lookup failed, retrying",
			zap.String("domain", name),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if err := a.retry.Sleep(ctx, a.retry.Delay); err != nil {
			return nil, fmt.Errorf("retry interrupted: %w", err)
		}
	}
	return nil, lastErr
}

func isEmptyRecord(record *domain.WhoisRecord) bool {
	return record == nil || (record.DomainName == "" && len(record.CreationDate) == 0 &&
		len(record.ExpirationDate) == 0 && len(record.UpdatedDate) == 0)
}

// interpret normalizes the record's dates and assigns the age tier
func (a *RegistrationAnalyzer) interpret(record *domain.WhoisRecord, reg *domain.DomainRegistration) {
	reg.CreationDate = a.resolveDate(record.CreationDate, "creation", true, reg)
	reg.ExpirationDate = a.resolveDate(record.ExpirationDate, "expiration", false, reg)
	reg.UpdatedDate = a.resolveDate(record.UpdatedDate, "updated", false, reg)

	if reg.CreationDate == nil {
		return
	}

	age := int(math.Floor(a.clock().Sub(*reg.CreationDate).Hours() / 24))
	reg.AgeDays = &age

	for _, tier := range a.policy.AgeTiers {
		if age <= tier.MaxDays {
			reg.Tier = tier.Level
			reg.Score = tier.Score
			reg.Warnings = append(reg.Warnings, fmt.Sprintf(
				"domain %s was registered only %d days ago (%s risk)", reg.Domain, age, tier.Level))
			return
		}
	}
}

// resolveDate picks the earliest (or latest) valid date of a field. Unparseable
// values are reported as warnings and skipped.
func (a *RegistrationAnalyzer) resolveDate(values []domain.DateValue, field string, earliest bool, reg *domain.DomainRegistration) *time.Time {
	var picked *time.Time
	for _, value := range values {
		t, err := normalizeDate(value)
		if err != nil {
			reg.Warnings = append(reg.Warnings, fmt.Sprintf("ignoring %s date of %s: %v", field, reg.Domain, err))
			continue
		}
		if picked == nil || (earliest && t.Before(*picked)) || (!earliest && t.After(*picked)) {
			picked = &t
		}
	}
	return picked
}

// normalizeDate converts a registry date to UTC. Text without a zone is read as UTC.
func normalizeDate(value domain.DateValue) (time.Time, error) {
	if !value.Time.IsZero() {
		return value.Time.UTC(), nil
	}
	text := strings.TrimSpace(value.Text)
	if text == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}

// RegistrableDomain reduces a host to the domain a registry would hold, e.g.
// "mail.example.co.uk:25" to "example.co.uk"
func RegistrableDomain(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	host, _, _ = strings.Cut(host, "/")
	host, _, _ = strings.Cut(host, ":")
	host = strings.Trim(host, ".")

	if host == "" || !strings.Contains(host, ".") {
		return "", fmt.Errorf("invalid domain format %q", host)
	}

	ascii, err := idnaProfile.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", host, err)
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(ascii)
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", host, err)
	}
	return registrable, nil
}
