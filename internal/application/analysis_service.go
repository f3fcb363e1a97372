package application

import (
	"context"
	"fmt"
	"time"

	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/domain/detection"
	"github.com/stoik/phishing-risk/internal/metrics"
	"github.com/stoik/phishing-risk/internal/ports"
	"go.uber.org/zap"
)

// AnalysisService orchestrates email loading and phishing risk analysis
type AnalysisService struct {
	detector *detection.Detector
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewAnalysisService creates a new analysis service with dependency injection
func NewAnalysisService(detector *detection.Detector, m *metrics.Metrics, logger *zap.Logger) *AnalysisService {
	return &AnalysisService{
		detector: detector,
		metrics:  m,
		logger:   logger,
	}
}

// AnalyzeEmail runs the detector on one email and records the outcome
func (s *AnalysisService) AnalyzeEmail(ctx context.Context, email domain.ParsedEmail) domain.RiskReport {
	start := time.Now()
	report := s.detector.Analyze(ctx, email)
	elapsed := time.Since(start)

	s.metrics.ObserveAnalysis(string(report.OverallLevel), elapsed)
	s.logger.Debug("Analyzed email",
		zap.String("report_id", report.ID.String()),
		zap.String("subject", email.Subject),
		zap.Float64("score", report.OverallScore),
		zap.String("level", string(report.OverallLevel)),
		zap.Duration("elapsed", elapsed))

	if report.IsHighRisk() {
		s.alert(email, report)
	}
	return report
}

// AnalyzeSource analyzes every email of a source
// Error handling strategy:
//   - A source that cannot be read is an error for the caller
//   - Messages the source could not decode are skipped by the source itself
//   - Cancellation stops the batch and returns the reports produced so far
func (s *AnalysisService) AnalyzeSource(ctx context.Context, source ports.EmailSource) ([]domain.RiskReport, error) {
	s.logger.Info("Analyzing email source", zap.String("source", source.Name()))

	emails, err := source.Messages(ctx)
	if err != nil {
		s.metrics.RecordSourceFailure()
		return nil, fmt.Errorf("failed to read emails from %s: %w", source.Name(), err)
	}

	s.logger.Info("Found emails", zap.String("source", source.Name()), zap.Int("count", len(emails)))

	reports := make([]domain.RiskReport, 0, len(emails))
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return reports, fmt.Errorf("analysis of %s interrupted: %w", source.Name(), err)
		}
		reports = append(reports, s.AnalyzeEmail(ctx, email))
	}

	return reports, nil
}

// Summary aggregates a batch of reports
type Summary struct {
	Total    int                  `json:"total"`
	ByLevel  map[domain.Level]int `json:"by_level"`
	HighRisk int                  `json:"high_risk"`
	MaxScore float64              `json:"max_score"`
}

// Summarize counts reports by overall level
func (s *AnalysisService) Summarize(reports []domain.RiskReport) Summary {
	summary := Summary{
		Total:   len(reports),
		ByLevel: make(map[domain.Level]int),
	}
	for _, report := range reports {
		summary.ByLevel[report.OverallLevel]++
		if report.IsHighRisk() {
			summary.HighRisk++
		}
		if report.OverallScore > summary.MaxScore {
			summary.MaxScore = report.OverallScore
		}
	}
	return summary
}

// alert logs a high-risk detection. Delivery to a SIEM or ticketing system
// hooks in here.
func (s *AnalysisService) alert(email domain.ParsedEmail, report domain.RiskReport) {
	var from string
	if len(email.From) > 0 {
		from = email.From[0]
	}

	s.logger.Warn("HIGH RISK EMAIL DETECTED",
		zap.String("report_id", report.ID.String()),
		zap.String("subject", email.Subject),
		zap.String("from", from),
		zap.Float64("score", report.OverallScore),
		zap.String("level", string(report.OverallLevel)),
		zap.Strings("warnings", report.Warnings))
}
