package detection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// reportNamespace seeds the name-based report IDs
var reportNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/stoik/phishing-risk/report"))

// Detector runs every analyzer over an email and assembles the RiskReport
//
// Analyzers are independent and run concurrently. The spoofing detector reuses
// the authentication result, so the two run in sequence on the same goroutine.
// Assembly waits for all of them and always produces a report: a failing
// analyzer is reported as an unknown section with a warning.
type Detector struct {
	similarity   *SimilarityAnalyzer
	links        *LinkSafetyAnalyzer
	hidden       *HiddenContentDetector
	auth         *AuthVerifier
	spoofing     *SpoofingDetector
	registration *RegistrationAnalyzer

	policy Policy
	clock  Clock
	logger *zap.Logger
}

// NewDetector creates a detector with all standard analyzers. lookup may be nil
// to disable registration lookups.
func NewDetector(dctx *DetectionContext, lookup ports.WhoisLookup, logger *zap.Logger) *Detector {
	if dctx == nil {
		dctx = NewDetectionContext(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dctx.Clock
	if clock == nil {
		clock = SystemClock
	}

	return &Detector{
		similarity: NewSimilarityAnalyzer(dctx.Policy),
		links:      NewLinkSafetyAnalyzer(dctx.Policy),
		hidden:     NewHiddenContentDetector(dctx.Policy),
		auth:       NewAuthVerifier(dctx.Policy),
		spoofing:   NewSpoofingDetector(dctx.Policy, dctx.ProtectedDomains, dctx.GatewaySPFHeaders),
		registration: NewRegistrationAnalyzer(lookup, dctx.Policy,
			WithClock(clock),
			WithRetryPolicy(dctx.Retry),
			WithRecipientCheck(dctx.CheckRecipientAge),
			WithLogger(logger),
		),
		policy: dctx.Policy,
		clock:  clock,
		logger: logger,
	}
}

// Analyze evaluates an email and returns its risk report. It never fails.
func (d *Detector) Analyze(ctx context.Context, email domain.ParsedEmail) domain.RiskReport {
	var (
		similarity   domain.SimilarityReport
		links        domain.LinkReport
		hidden       domain.HiddenContentReport
		auth         domain.AuthReport
		spoofing     domain.SpoofingReport
		registration domain.RegistrationReport

		// One slot per goroutine, so no locking is needed
		failures [5]error
	)

	var g errgroup.Group
	g.Go(d.guard("similarity", &failures[0], func() { similarity = d.similarity.Analyze(email) }))
	g.Go(d.guard("links", &failures[1], func() { links = d.links.Analyze(email) }))
	g.Go(d.guard("hidden content", &failures[2], func() { hidden = d.hidden.Analyze(email) }))
	g.Go(d.guard("authentication", &failures[3], func() {
		auth = d.auth.Verify(email)
		spoofing = d.spoofing.Analyze(email, auth)
	}))
	g.Go(d.guard("registration", &failures[4], func() { registration = d.registration.Analyze(ctx, email) }))
	_ = g.Wait()

	if err := failures[0]; err != nil {
		similarity = domain.SimilarityReport{Relationships: []domain.DomainRelationship{}, Level: domain.LevelUnknown, Warnings: []string{err.Error()}}
	}
	if err := failures[1]; err != nil {
		links = domain.LinkReport{SuspiciousLinks: []domain.LinkFinding{}, Level: domain.LevelUnknown, Warnings: []string{err.Error()}}
	}
	if err := failures[2]; err != nil {
		hidden = domain.HiddenContentReport{Level: domain.LevelUnknown, Warnings: []string{err.Error()}}
	}
	if err := failures[3]; err != nil {
		if auth.Level == "" {
			auth = domain.AuthReport{Level: domain.LevelUnknown, Warnings: []string{err.Error()}}
		}
		spoofing = domain.SpoofingReport{Level: domain.LevelUnknown, Warnings: []string{err.Error()}}
	}
	if err := failures[4]; err != nil {
		registration = domain.RegistrationReport{Level: domain.LevelUnknown, Warnings: []string{err.Error()}}
	}

	report := domain.RiskReport{
		ID:            ReportID(email),
		AnalyzedAt:    d.clock(),
		Similarity:    similarity,
		Links:         links,
		HiddenContent: hidden,
		Auth:          auth,
		Spoofing:      spoofing,
		Registration:  registration,
		Sections: []domain.SectionSummary{
			{Name: d.similarity.Name(), Score: similarity.Score, Level: similarity.Level},
			{Name: d.links.Name(), Score: links.Score, Level: links.Level},
			{Name: d.hidden.Name(), Score: hidden.Score, Level: hidden.Level},
			{Name: d.auth.Name(), Score: auth.Score, Level: auth.Level},
			{Name: d.spoofing.Name(), Score: spoofing.Score, Level: spoofing.Level},
			{Name: d.registration.Name(), Score: registration.Score, Level: registration.Level},
		},
	}

	// Evaluation order: similarity, URL, hidden content, auth, spoofing, registration
	var warnings []string
	for _, section := range [][]string{
		similarity.Warnings, links.Warnings, hidden.Warnings,
		auth.Warnings, spoofing.Warnings, registration.Warnings,
	} {
		warnings = append(warnings, section...)
	}
	report.Warnings = dedupe(warnings)

	for _, section := range report.Sections {
		report.OverallScore += section.Score
	}
	report.OverallLevel = d.policy.Overall.Level(report.OverallScore, domain.LevelLow)

	return report
}

// guard turns a panicking analyzer into a recorded failure
func (d *Detector) guard(name string, failure *error, fn func()) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				*failure = fmt.Errorf("%s analysis failed: %v", name, r)
				d.logger.Error("Analyzer panicked", zap.String("analyzer", name), zap.Any("panic", r))
			}
		}()
		fn()
		return nil
	}
}

// ReportID derives a stable identifier from the email content
func ReportID(email domain.ParsedEmail) uuid.UUID {
	payload, err := json.Marshal(email)
	if err != nil {
		return uuid.Nil
	}
	return uuid.NewSHA1(reportNamespace, payload)
}
