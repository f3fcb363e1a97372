package detection

import (
	"testing"

	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stretchr/testify/assert"
)

func passingAuth(d string) domain.AuthReport {
	return domain.AuthReport{
		SPF:   domain.SPFResult{Status: domain.AuthPass, Domain: d},
		DKIM:  domain.DKIMResult{Status: domain.AuthPass, Domain: d},
		DMARC: domain.DMARCResult{Status: domain.AuthPass},
		Level: domain.LevelLow,
	}
}

func TestSpoofingDetector_Analyze(t *testing.T) {
	detector := NewSpoofingDetector(DefaultPolicy(), []string{"PayPal.com "}, []string{"X-Fangmail-Spf"})

	tests := []struct {
		name             string
		email            domain.ParsedEmail
		auth             domain.AuthReport
		expectedScore    float64
		expectedLevel    domain.Level
		expectedSpoofed  bool
		expectedEvidence []string
	}{
		{
			name: "Authenticated sender from its own server",
			email: domain.ParsedEmail{
				From: []string{"ceo@company.com"},
				Headers: map[string][]string{
					"Received": {"from mail.company.com (mail.company.com [192.0.2.1]) by mx.company.com"},
				},
			},
			auth:             passingAuth("company.com"),
			expectedScore:    0,
			expectedLevel:    domain.LevelLow,
			expectedSpoofed:  false,
			expectedEvidence: []string{},
		},
		{
			name: "SPF failure from a foreign server",
			email: domain.ParsedEmail{
				From: []string{"CEO <ceo@company.com>"},
				Headers: map[string][]string{
					"Received": {
						"by mx.company.com with ESMTP",
						"from smtp.evil-host.ru (unknown [203.0.113.9])",
					},
				},
			},
			auth: domain.AuthReport{SPF: domain.SPFResult{Status: domain.AuthFail}},
			// SPF 3.0 + Received mismatch 2.5
			expectedScore:   5.5,
			expectedLevel:   domain.LevelHigh,
			expectedSpoofed: true,
			expectedEvidence: []string{
				"SPF verification failed",
				"sender claims company.com but the originating server does not match",
			},
		},
		{
			name: "Upstream filter reports SPF failure",
			email: domain.ParsedEmail{
				From:    []string{"ceo@company.com"},
				Headers: map[string][]string{"x-fangmail-spf": {" FAIL "}},
			},
			auth:             passingAuth("company.com"),
			expectedScore:    2.0,
			expectedLevel:    domain.LevelLow,
			expectedSpoofed:  true,
			expectedEvidence: []string{"upstream filter reports SPF failure (X-Fangmail-Spf)"},
		},
		{
			name: "Brand name without brand authentication",
			email: domain.ParsedEmail{
				From: []string{"PayPal Support <support@paypal.com.secure-login.ru>"},
			},
			auth:             passingAuth("secure-login.ru"),
			expectedScore:    3.0,
			expectedLevel:    domain.LevelMedium,
			expectedSpoofed:  true,
			expectedEvidence: []string{"sender impersonates paypal.com but the authenticated domain is secure-login.ru"},
		},
		{
			name: "Brand subdomain with brand authentication",
			email: domain.ParsedEmail{
				From: []string{"service@mail.paypal.com"},
			},
			auth:             passingAuth("mail.paypal.com"),
			expectedScore:    0,
			expectedLevel:    domain.LevelLow,
			expectedSpoofed:  false,
			expectedEvidence: []string{},
		},
		{
			name: "Brand name with no authentication at all",
			email: domain.ParsedEmail{
				From: []string{"security@paypal.com"},
			},
			auth:             domain.AuthReport{Level: domain.LevelUnknown},
			expectedScore:    3.0,
			expectedLevel:    domain.LevelMedium,
			expectedSpoofed:  true,
			expectedEvidence: []string{"sender impersonates paypal.com but the authenticated domain is (none)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := detector.Analyze(tt.email, tt.auth)

			assert.InDelta(t, tt.expectedScore, report.Score, 0.001)
			assert.Equal(t, tt.expectedLevel, report.Level)
			assert.Equal(t, tt.expectedSpoofed, report.IsSpoofed)
			assert.Equal(t, tt.expectedEvidence, report.Evidence)
			assert.Equal(t, tt.email.From[0], report.Sender)
		})
	}
}

func TestSpoofingDetector_Warnings(t *testing.T) {
	detector := NewSpoofingDetector(DefaultPolicy(), nil, nil)

	email := domain.ParsedEmail{
		From:    []string{"ceo@company.com"},
		Headers: map[string][]string{"Received": {"from relay.other.net"}},
	}
	report := detector.Analyze(email, domain.AuthReport{SPF: domain.SPFResult{Status: domain.AuthFail}})

	assert.Equal(t, []string{
		"multiple signs that the sender identity is forged, likely phishing",
		"possibly forged sender: ceo@company.com",
		"spoofing evidence: SPF verification failed",
		"spoofing evidence: sender claims company.com but the originating server does not match",
	}, report.Warnings)
}

func TestSpoofingDetector_NoSender(t *testing.T) {
	detector := NewSpoofingDetector(DefaultPolicy(), []string{"paypal.com"}, nil)

	report := detector.Analyze(domain.ParsedEmail{}, domain.AuthReport{SPF: domain.SPFResult{Status: domain.AuthFail}})

	assert.Equal(t, domain.LevelUnknown, report.Level)
	assert.Zero(t, report.Score)
	assert.False(t, report.IsSpoofed)
	assert.Equal(t, []string{"sender spoofing: no sender address"}, report.Warnings)
}
