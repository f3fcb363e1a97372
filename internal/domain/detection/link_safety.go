package detection

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/stoik/phishing-risk/internal/domain"
)

// redirectParams are query keys commonly used by open redirectors
var redirectParams = map[string]bool{
	"url": true, "redirect": true, "goto": true,
	"link": true, "return": true, "target": true,
}

// LinkSafetyAnalyzer inspects every URL in an email and scores the hyperlinks
type LinkSafetyAnalyzer struct {
	policy Policy
}

// NewLinkSafetyAnalyzer creates a URL/link safety analyzer
func NewLinkSafetyAnalyzer(policy Policy) *LinkSafetyAnalyzer {
	return &LinkSafetyAnalyzer{policy: policy}
}

// Name returns the analyzer name
func (a *LinkSafetyAnalyzer) Name() string {
	return "link_safety"
}

// AnalyzeLink scores one hyperlink given its visible text, its target and the
// domains of the email's declared senders. Each rule fires independently.
func (a *LinkSafetyAnalyzer) AnalyzeLink(displayText, target string, senderDomains []string) domain.LinkFinding {
	finding, _ := a.analyzeLink(displayText, target, senderDomains)
	return finding
}

func (a *LinkSafetyAnalyzer) analyzeLink(displayText, target string, senderDomains []string) (domain.LinkFinding, error) {
	finding := domain.LinkFinding{
		DisplayText: displayText,
		TargetURL:   target,
		Level:       domain.LevelLow,
		Reasons:     []string{},
	}

	u, err := parseURL(target)
	if err != nil {
		return finding, fmt.Errorf("unparseable link target %q: %w", target, err)
	}
	targetHost := normalizeHost(u.Hostname())

	// 1. Visible text showing a different host than the real target
	if shown := findURLs(displayText); len(shown) > 0 && targetHost != "" {
		if du, err := parseURL(shown[0]); err == nil {
			displayHost := normalizeHost(du.Hostname())
			if displayHost != "" && displayHost != targetHost {
				finding.Score += a.policy.LinkDisplayMismatch
				finding.Reasons = append(finding.Reasons, fmt.Sprintf(
					"display host %s does not match target host %s", displayHost, targetHost))
			}
		}
	}

	// 2. Target host resembling one of the sender domains
	if targetHost != "" && net.ParseIP(targetHost) == nil {
		for _, senderDomain := range senderDomains {
			rel := compareDomains(BaseName(targetHost), BaseName(senderDomain), a.policy.SimilarityEditThreshold)
			if rel.Risk == domain.LevelHigh {
				finding.Score += a.policy.LinkLookalike
				finding.Reasons = append(finding.Reasons, fmt.Sprintf(
					"target host %s resembles sender domain %s (%s)", targetHost, senderDomain, rel.Kind))
			}
		}
	}

	// 3. Explicit non-standard port
	if port := portNumber(u.Port()); isNonStandardPort(port) {
		finding.Score += a.policy.LinkNonStandardPort
		finding.Reasons = append(finding.Reasons, fmt.Sprintf("uses non-standard port %d", port))
	}

	// 4. Heavy percent-encoding
	if n := strings.Count(target, "%"); n > a.policy.PercentLimit {
		finding.Score += a.policy.LinkOverEncoded
		finding.Reasons = append(finding.Reasons, fmt.Sprintf(
			"over-encoded (%d percent escapes), likely obfuscation", n))
	}

	// 5. Redirect-style query parameters
	if found := matchingParams(u.Query(), redirectParams); len(found) > 0 {
		finding.Score += a.policy.LinkRedirectParam
		finding.Reasons = append(finding.Reasons, fmt.Sprintf(
			"contains redirect parameters: %s", strings.Join(found, ", ")))
	}

	finding.Level = a.policy.Link.Level(finding.Score, domain.LevelLow)
	return finding, nil
}

// matchingParams returns the sorted query keys that appear in the given set
func matchingParams(query map[string][]string, set map[string]bool) []string {
	var found []string
	for key := range query {
		if set[strings.ToLower(key)] {
			found = append(found, strings.ToLower(key))
		}
	}
	sort.Strings(found)
	return dedupe(found)
}

// Analyze collects the URLs of the text body, the HTML body and the attachment
// previews, and scores every HTML hyperlink
func (a *LinkSafetyAnalyzer) Analyze(email domain.ParsedEmail) domain.LinkReport {
	report := domain.LinkReport{
		URLs: domain.URLInventory{
			Text:        []string{},
			HTML:        []string{},
			Attachments: []string{},
		},
		SuspiciousLinks: []domain.LinkFinding{},
		Level:           domain.LevelUnknown,
		Warnings:        []string{},
	}
	senderDomains := uniqueDomains(email.From)

	if email.BodyText != "" {
		report.URLs.Text = dedupe(findURLs(email.BodyText))
	}

	if strings.TrimSpace(email.BodyHTML) != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(email.BodyHTML))
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("link safety: failed to parse HTML body: %v", err))
		} else {
			a.scanHTML(doc, senderDomains, &report)
		}
	}

	for _, attachment := range email.Attachments {
		if attachment.TextPreview != "" {
			report.URLs.Attachments = append(report.URLs.Attachments, findURLs(attachment.TextPreview)...)
		}
	}
	report.URLs.Attachments = dedupe(report.URLs.Attachments)

	total := report.URLs.Total()
	if total == 0 {
		report.Warnings = append(report.Warnings, "link safety: no URLs found")
		return report
	}

	report.Level = a.policy.URLComponent.Level(report.Score, domain.LevelLow)
	switch report.Level {
	case domain.LevelHigh:
		report.Warnings = append(report.Warnings, "multiple high-risk links found, likely phishing")
	case domain.LevelMedium:
		report.Warnings = append(report.Warnings, "suspicious links found, verify before clicking")
	}
	for _, link := range report.SuspiciousLinks {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"suspicious link %s (%s): %s", link.TargetURL, link.Level, strings.Join(link.Reasons, "; ")))
	}
	report.Warnings = append(report.Warnings, fmt.Sprintf(
		"found %d URLs, %d suspicious", total, len(report.SuspiciousLinks)))

	return report
}

func (a *LinkSafetyAnalyzer) scanHTML(doc *goquery.Document, senderDomains []string, report *domain.LinkReport) {
	var urls []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		urls = append(urls, href)

		finding, err := a.analyzeLink(strings.TrimSpace(s.Text()), href, senderDomains)
		if err != nil {
			report.Warnings = append(report.Warnings, "link safety: "+err.Error())
			return
		}
		if finding.Level != domain.LevelLow {
			report.SuspiciousLinks = append(report.SuspiciousLinks, finding)
			report.Score += finding.Score
		}
	})

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src != "" && !strings.HasPrefix(strings.ToLower(src), "data:") {
			urls = append(urls, src)
		}
	})

	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if t := trimURL(u); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	report.URLs.HTML = dedupe(cleaned)
}
