package detection

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/emersion/go-msgauth/authres"
	"github.com/stoik/phishing-risk/internal/domain"
)

var (
	spfTokenPattern     = regexp.MustCompile(`(?i)\bspf=([a-z]+)`)
	dkimTokenPattern    = regexp.MustCompile(`(?i)\bdkim=([a-z]+)`)
	dmarcTokenPattern   = regexp.MustCompile(`(?i)\bdmarc=([a-z]+)`)
	spfDomainPattern    = regexp.MustCompile(`(?i)\bdomain=([^\s;]+)`)
	spfMailFromPattern  = regexp.MustCompile(`(?i)\bsmtp\.mailfrom=([^\s;]+)`)
	clientIPPattern     = regexp.MustCompile(`(?i)\bclient-ip=([^\s;]+)`)
	dkimDomainPattern   = regexp.MustCompile(`(?i)\bd=([^;\s]+)`)
	dkimIdentityPattern = regexp.MustCompile(`(?i)\bheader\.i=([^;\s]+)`)
	dkimSelectorPattern = regexp.MustCompile(`(?i)\bs=([^;\s]+)`)
	dmarcPolicyPattern  = regexp.MustCompile(`(?i)\bp=([^;\s)]+)`)
)

// AuthVerifier extracts SPF, DKIM and DMARC evidence from the
// Authentication-Results header and checks it against the declared sender
//
// Statuses come from a structured parse of the header when it is well-formed,
// otherwise from the mechanism=token pairs found anywhere in the text.
type AuthVerifier struct {
	policy Policy
}

// NewAuthVerifier creates an authentication verifier
func NewAuthVerifier(policy Policy) *AuthVerifier {
	return &AuthVerifier{policy: policy}
}

// Name returns the verifier name
func (v *AuthVerifier) Name() string {
	return "authentication"
}

// Verify evaluates the authentication headers of an email
func (v *AuthVerifier) Verify(email domain.ParsedEmail) domain.AuthReport {
	report := domain.AuthReport{
		SPF:      domain.SPFResult{Status: domain.AuthUnknown},
		DKIM:     domain.DKIMResult{Status: domain.AuthUnknown},
		DMARC:    domain.DMARCResult{Status: domain.AuthUnknown},
		Level:    domain.LevelUnknown,
		Warnings: []string{},
	}

	values := email.HeaderValues("Authentication-Results")
	if len(values) == 0 {
		report.Warnings = append(report.Warnings, "authentication: no Authentication-Results header")
		return report
	}
	text := strings.Join(values, "; ")

	for _, value := range values {
		applyStructuredResults(value, &report)
	}

	if report.SPF.Status == domain.AuthUnknown {
		report.SPF.Status = tokenStatus(spfTokenPattern, text)
	}
	if report.SPF.Status == domain.AuthUnknown {
		if fields := strings.Fields(email.Header("Received-SPF")); len(fields) > 0 {
			report.SPF.Status = normalizeStatus(fields[0])
		}
	}
	if report.DKIM.Status == domain.AuthUnknown {
		report.DKIM.Status = tokenStatus(dkimTokenPattern, text)
	}
	if report.DMARC.Status == domain.AuthUnknown {
		report.DMARC.Status = tokenStatus(dmarcTokenPattern, text)
	}

	report.SPF.Domain = strings.ToLower(firstMatch(spfDomainPattern, text))
	if report.SPF.Domain == "" {
		report.SPF.Domain = mailFromDomain(firstMatch(spfMailFromPattern, text))
	}
	report.SPF.ClientIP = firstMatch(clientIPPattern, text)
	if report.SPF.ClientIP == "" {
		report.SPF.ClientIP = firstMatch(clientIPPattern, email.Header("Received-SPF"))
	}
	if report.DKIM.Domain == "" {
		report.DKIM.Domain = strings.ToLower(firstMatch(dkimDomainPattern, text))
	}
	if report.DKIM.Domain == "" {
		report.DKIM.Domain = mailFromDomain(firstMatch(dkimIdentityPattern, text))
	}
	report.DKIM.Selector = firstMatch(dkimSelectorPattern, text)
	report.DMARC.Policy = strings.ToLower(firstMatch(dmarcPolicyPattern, text))

	v.score(email, &report)
	return report
}

func (v *AuthVerifier) score(email domain.ParsedEmail, report *domain.AuthReport) {
	add := func(weight float64, format string, args ...any) {
		report.Score += weight
		report.Warnings = append(report.Warnings, fmt.Sprintf(format, args...))
	}

	switch report.SPF.Status {
	case domain.AuthFail:
		add(v.policy.AuthFail, "SPF check failed")
	case domain.AuthSoftFail:
		add(v.policy.SPFSoftFail, "SPF check soft-failed")
	}

	switch report.DKIM.Status {
	case domain.AuthFail:
		add(v.policy.AuthFail, "DKIM signature verification failed")
	case domain.AuthUnknown:
		add(v.policy.DKIMMissing, "no DKIM result found")
	}

	switch report.DMARC.Status {
	case domain.AuthFail:
		add(v.policy.AuthFail, "DMARC check failed")
	case domain.AuthNone:
		add(v.policy.DMARCNone, "sender domain publishes no DMARC policy")
	}

	if sender := firstDomain(email.From); sender != "" {
		if sender != report.SPF.Domain {
			add(v.policy.AuthDomainMismatch, "sender domain %s does not match SPF domain %s", sender, orNone(report.SPF.Domain))
		}
		if sender != report.DKIM.Domain {
			add(v.policy.AuthDomainMismatch, "sender domain %s does not match DKIM domain %s", sender, orNone(report.DKIM.Domain))
		}
	}

	report.Level = v.policy.Auth.Level(report.Score, domain.LevelLow)
}

// applyStructuredResults fills statuses from a well-formed Authentication-Results value
func applyStructuredResults(value string, report *domain.AuthReport) {
	_, results, err := authres.Parse(value)
	if err != nil {
		return
	}
	for _, result := range results {
		switch r := result.(type) {
		case *authres.SPFResult:
			if report.SPF.Status == domain.AuthUnknown {
				report.SPF.Status = normalizeStatus(string(r.Value))
			}
		case *authres.DKIMResult:
			if report.DKIM.Status == domain.AuthUnknown {
				report.DKIM.Status = normalizeStatus(string(r.Value))
			}
			if report.DKIM.Domain == "" {
				report.DKIM.Domain = strings.ToLower(r.Domain)
			}
			if report.DKIM.Domain == "" {
				report.DKIM.Domain = mailFromDomain(r.Identifier)
			}
		case *authres.DMARCResult:
			if report.DMARC.Status == domain.AuthUnknown {
				report.DMARC.Status = normalizeStatus(string(r.Value))
			}
		}
	}
}

func tokenStatus(pattern *regexp.Regexp, text string) domain.AuthStatus {
	return normalizeStatus(firstMatch(pattern, text))
}

// normalizeStatus maps a result token to an AuthStatus. softfail is checked
// before fail since the latter is a substring of the former.
func normalizeStatus(token string) domain.AuthStatus {
	token = strings.ToLower(strings.TrimSpace(token))
	switch {
	case token == "":
		return domain.AuthUnknown
	case strings.HasPrefix(token, "softfail"):
		return domain.AuthSoftFail
	case strings.HasPrefix(token, "pass"):
		return domain.AuthPass
	case strings.HasPrefix(token, "fail"), strings.HasPrefix(token, "hardfail"):
		return domain.AuthFail
	case strings.HasPrefix(token, "neutral"):
		return domain.AuthNeutral
	case strings.HasPrefix(token, "none"):
		return domain.AuthNone
	default:
		return domain.AuthUnknown
	}
}

func firstMatch(pattern *regexp.Regexp, text string) string {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return strings.TrimRight(match[1], ";,")
}

// mailFromDomain returns the domain of an smtp.mailfrom or header.i value,
// which is an address, an "@domain" identity or a bare domain
func mailFromDomain(value string) string {
	if strings.Contains(value, "@") {
		return ExtractDomain(value)
	}
	return strings.Trim(strings.ToLower(value), ".")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
