package detection

import (
	"fmt"
	"strings"

	"github.com/stoik/phishing-risk/internal/domain"
)

// SpoofingDetector looks for evidence that the declared sender was forged
type SpoofingDetector struct {
	policy Policy

	// protectedDomains are brands whose name in a From address must be
	// backed by a passing SPF or DKIM result for that domain
	protectedDomains []string

	// gatewaySPFHeaders are headers in which an upstream filter reports its own SPF verdict
	gatewaySPFHeaders []string
}

// NewSpoofingDetector creates a sender spoofing detector
func NewSpoofingDetector(policy Policy, protectedDomains, gatewaySPFHeaders []string) *SpoofingDetector {
	normalized := make([]string, 0, len(protectedDomains))
	for _, d := range protectedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			normalized = append(normalized, d)
		}
	}
	return &SpoofingDetector{
		policy:            policy,
		protectedDomains:  normalized,
		gatewaySPFHeaders: gatewaySPFHeaders,
	}
}

// Name returns the detector name
func (d *SpoofingDetector) Name() string {
	return "sender_spoofing"
}

// Analyze combines the authentication result with the Received chain and the
// brand watch-list
func (d *SpoofingDetector) Analyze(email domain.ParsedEmail, auth domain.AuthReport) domain.SpoofingReport {
	report := domain.SpoofingReport{
		SpoofFinding: domain.SpoofFinding{Evidence: []string{}},
		Level:        domain.LevelUnknown,
		Warnings:     []string{},
	}
	if len(email.From) == 0 {
		report.Warnings = append(report.Warnings, "sender spoofing: no sender address")
		return report
	}
	report.Sender = email.From[0]

	addEvidence := func(weight float64, evidence string) {
		report.Score += weight
		report.Evidence = append(report.Evidence, evidence)
	}

	if auth.SPF.Status == domain.AuthFail {
		addEvidence(d.policy.SpoofSPFFail, "SPF verification failed")
	}

	claimed := firstDomain(email.From)
	if received := email.HeaderValues("Received"); len(received) > 0 && claimed != "" {
		origin := strings.ToLower(received[len(received)-1])
		if !strings.Contains(origin, claimed) {
			addEvidence(d.policy.SpoofReceivedMismatch, fmt.Sprintf(
				"sender claims %s but the originating server does not match", claimed))
		}
	}

	for _, header := range d.gatewaySPFHeaders {
		if strings.EqualFold(strings.TrimSpace(email.Header(header)), "fail") {
			addEvidence(d.policy.SpoofGatewaySPF, fmt.Sprintf("upstream filter reports SPF failure (%s)", header))
		}
	}

	sender := strings.ToLower(report.Sender)
	authenticated := authenticatedDomain(auth)
	for _, brand := range d.protectedDomains {
		if !strings.Contains(sender, brand) || matchesDomain(authenticated, brand) {
			continue
		}
		addEvidence(d.policy.SpoofBrand, fmt.Sprintf(
			"sender impersonates %s but the authenticated domain is %s", brand, orNone(authenticated)))
	}

	report.IsSpoofed = report.Score > 0
	report.Level = d.policy.Spoof.Level(report.Score, domain.LevelLow)

	switch report.Level {
	case domain.LevelHigh:
		report.Warnings = append(report.Warnings, "multiple signs that the sender identity is forged, likely phishing")
	case domain.LevelMedium:
		report.Warnings = append(report.Warnings, "signs that the sender identity may be forged")
	}
	if report.IsSpoofed {
		report.Warnings = append(report.Warnings, "possibly forged sender: "+report.Sender)
		for _, evidence := range report.Evidence {
			report.Warnings = append(report.Warnings, "spoofing evidence: "+evidence)
		}
	}

	return report
}

// authenticatedDomain returns the domain vouched for by a passing DKIM or SPF result
func authenticatedDomain(auth domain.AuthReport) string {
	if auth.DKIM.Status == domain.AuthPass && auth.DKIM.Domain != "" {
		return auth.DKIM.Domain
	}
	if auth.SPF.Status == domain.AuthPass && auth.SPF.Domain != "" {
		return auth.SPF.Domain
	}
	return ""
}

// matchesDomain reports whether d is base or one of its subdomains
func matchesDomain(d, base string) bool {
	return d != "" && (d == base || strings.HasSuffix(d, "."+base))
}
