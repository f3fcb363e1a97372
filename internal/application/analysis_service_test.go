package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/domain/detection"
	"github.com/stoik/phishing-risk/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSource struct {
	emails []domain.ParsedEmail
	err    error
}

func (s *fakeSource) Messages(context.Context) ([]domain.ParsedEmail, error) {
	return s.emails, s.err
}

func (s *fakeSource) Name() string { return "fake" }

func newTestService(t *testing.T) (*AnalysisService, *metrics.Metrics, *observer.ObservedLogs) {
	t.Helper()

	dctx := detection.NewDetectionContext(nil)
	dctx.Clock = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	core, logs := observer.New(zap.DebugLevel)
	m := metrics.New()
	return NewAnalysisService(detection.NewDetector(dctx, nil, nil), m, zap.New(core)), m, logs
}

func spoofedEmail() domain.ParsedEmail {
	return domain.ParsedEmail{
		From:     []string{"CEO <ceo@c0mpany.com>"},
		To:       []string{"alice@company.com"},
		Subject:  "Urgent wire transfer",
		BodyHTML: `<a href="https://c0mpany-secure.ru:8443/login?redirect=x">https://company.com/login</a>`,
		Headers: map[string][]string{
			"Authentication-Results": {"mx.company.com; spf=fail smtp.mailfrom=ceo@c0mpany.com; dkim=fail; dmarc=fail"},
			"Received":               {"from relay.bulk-sender.net (unknown [203.0.113.9])"},
		},
	}
}

func cleanEmail() domain.ParsedEmail {
	return domain.ParsedEmail{
		From:    []string{"bob@company.com"},
		To:      []string{"alice@company.com"},
		Subject: "Lunch",
		Headers: map[string][]string{
			"Authentication-Results": {"mx.company.com; spf=pass smtp.mailfrom=bob@company.com; dkim=pass header.d=company.com; dmarc=pass"},
			"Received":               {"from mail.company.com (mail.company.com [192.0.2.1])"},
		},
	}
}

func TestAnalysisService_AnalyzeEmail(t *testing.T) {
	service, m, logs := newTestService(t)

	report := service.AnalyzeEmail(context.Background(), spoofedEmail())

	assert.True(t, report.IsHighRisk())
	alerts := logs.FilterMessage("HIGH RISK EMAIL DETECTED").All()
	require.Len(t, alerts, 1)
	assert.Equal(t, "Urgent wire transfer", alerts[0].ContextMap()["subject"])

	count, err := testutil.GatherAndCount(m.Registry(), "phishing_risk_analyses_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAnalysisService_AnalyzeEmail_NoAlertForCleanEmail(t *testing.T) {
	service, _, logs := newTestService(t)

	report := service.AnalyzeEmail(context.Background(), cleanEmail())

	assert.False(t, report.IsHighRisk())
	assert.Zero(t, logs.FilterMessage("HIGH RISK EMAIL DETECTED").Len())
}

func TestAnalysisService_AnalyzeSource(t *testing.T) {
	service, m, _ := newTestService(t)

	reports, err := service.AnalyzeSource(context.Background(), &fakeSource{
		emails: []domain.ParsedEmail{spoofedEmail(), cleanEmail(), spoofedEmail()},
	})
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, reports[0].ID, reports[2].ID, "identical emails yield identical reports")

	summary := service.Summarize(reports)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.HighRisk)
	assert.Equal(t, reports[0].OverallScore, summary.MaxScore)

	levels := 0
	for _, n := range summary.ByLevel {
		levels += n
	}
	assert.Equal(t, 3, levels)

	expected := `
# HELP phishing_risk_source_failures_total Total number of email sources that could not be read
# TYPE phishing_risk_source_failures_total counter
phishing_risk_source_failures_total 0
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "phishing_risk_source_failures_total"))
}

func TestAnalysisService_AnalyzeSource_Errors(t *testing.T) {
	t.Run("unreadable source", func(t *testing.T) {
		service, m, _ := newTestService(t)

		reports, err := service.AnalyzeSource(context.Background(), &fakeSource{err: errors.New("permission denied")})

		assert.Nil(t, reports)
		assert.EqualError(t, err, "failed to read emails from fake: permission denied")

		expected := `
# HELP phishing_risk_source_failures_total Total number of email sources that could not be read
# TYPE phishing_risk_source_failures_total counter
phishing_risk_source_failures_total 1
`
		assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "phishing_risk_source_failures_total"))
	})

	t.Run("cancelled context", func(t *testing.T) {
		service, _, _ := newTestService(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		reports, err := service.AnalyzeSource(ctx, &fakeSource{emails: []domain.ParsedEmail{cleanEmail()}})

		assert.Empty(t, reports)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestAnalysisService_Summarize_Empty(t *testing.T) {
	service, _, _ := newTestService(t)

	summary := service.Summarize(nil)

	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.HighRisk)
	assert.Empty(t, summary.ByLevel)
}
