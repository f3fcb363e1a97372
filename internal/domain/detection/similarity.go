package detection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stoik/phishing-risk/internal/domain"
)

// suspiciousAdditions are words a lookalike domain typically appends to a real brand
var suspiciousAdditions = []string{
	"portal", "service", "vendor", "secure", "mail",
	"auth", "login", "account", "verify", "update",
}

// CompareDomains classifies the relationship between two domain base-names
//
// Rules are evaluated in priority order and the first match wins:
//  1. empty or identical names are unrelated
//  2. single character substitution (sinopec / siuopec)
//  3. anagram (abcmail / mailabc)
//  4. containment with a suspicious addition (paypal / paypal-secure-login)
//  5. Levenshtein similarity above the edit threshold
func CompareDomains(a, b string) domain.DomainRelationship {
	return compareDomains(a, b, SimilarityEditThreshold)
}

func compareDomains(a, b string, editThreshold float64) domain.DomainRelationship {
	a, b = strings.ToLower(a), strings.ToLower(b)
	rel := domain.DomainRelationship{
		DomainA: a,
		DomainB: b,
		Kind:    domain.RelationshipNone,
		Risk:    domain.LevelLow,
	}

	if a == "" || b == "" || a == b {
		return rel
	}

	ra, rb := []rune(a), []rune(b)

	if isSubstitution(ra, rb) {
		return flagged(rel, domain.RelationshipSubstitution, SimilaritySubstitution)
	}

	if isAnagram(ra, rb) {
		return flagged(rel, domain.RelationshipAnagram, SimilarityAnagram)
	}

	longer, shorter := a, b
	if len(ra) < len(rb) {
		longer, shorter = b, a
	}
	if strings.Contains(longer, shorter) {
		remainder := strings.ReplaceAll(longer, shorter, "")
		if containsAny(remainder, suspiciousAdditions) {
			return flagged(rel, domain.RelationshipContainment, SimilarityContainment)
		}
	}

	distance := levenshteinDistance(a, b)
	rel.Similarity = 1 - float64(distance)/float64(max(len(ra), len(rb)))
	if rel.Similarity > editThreshold {
		rel.Kind = domain.RelationshipEditDistance
		rel.Risk = domain.LevelHigh
	}
	return rel
}

func flagged(rel domain.DomainRelationship, kind domain.RelationshipKind, similarity float64) domain.DomainRelationship {
	rel.Kind = kind
	rel.Similarity = similarity
	rel.Risk = domain.LevelHigh
	return rel
}

// isSubstitution aligns the shorter name against the longer one's prefix and
// allows at most one differing position
func isSubstitution(a, b []rune) bool {
	diff := len(a) - len(b)
	if diff < -1 || diff > 1 {
		return false
	}

	mismatches := 0
	for i := 0; i < min(len(a), len(b)); i++ {
		if a[i] != b[i] {
			mismatches++
			if mismatches > 1 {
				return false
			}
		}
	}
	return true
}

func isAnagram(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]rune(nil), a...)
	sb := append([]rune(nil), b...)
	sort.Slice(sa, func(i, j int) bool { return sa[i] < sa[j] })
	sort.Slice(sb, func(i, j int) bool { return sb[i] < sb[j] })
	return string(sa) == string(sb)
}

// SimilarityAnalyzer compares the sender's domains against the recipients' and
// the original thread sender's domains
type SimilarityAnalyzer struct {
	policy Policy
}

// NewSimilarityAnalyzer creates a domain similarity analyzer
func NewSimilarityAnalyzer(policy Policy) *SimilarityAnalyzer {
	return &SimilarityAnalyzer{policy: policy}
}

// Name returns the analyzer name
func (a *SimilarityAnalyzer) Name() string {
	return "domain_similarity"
}

// Analyze compares every sender domain with every recipient domain and with the
// thread's original sender domain
func (a *SimilarityAnalyzer) Analyze(email domain.ParsedEmail) domain.SimilarityReport {
	report := domain.SimilarityReport{
		Relationships: []domain.DomainRelationship{},
		Level:         domain.LevelUnknown,
		Warnings:      []string{},
	}

	senders := uniqueDomains(email.From)
	counterparts := uniqueDomains(email.To)
	if thread := ExtractDomain(email.Thread.OriginalSender); thread != "" {
		counterparts = dedupe(append(counterparts, thread))
	}

	if len(senders) == 0 || len(counterparts) == 0 {
		report.Warnings = append(report.Warnings, "domain similarity: no sender/recipient domain pair to compare")
		return report
	}

	for _, sender := range senders {
		for _, other := range counterparts {
			rel := compareDomains(BaseName(sender), BaseName(other), a.policy.SimilarityEditThreshold)
			rel.DomainA, rel.DomainB = sender, other
			report.Relationships = append(report.Relationships, rel)

			if rel.Risk != domain.LevelHigh {
				continue
			}
			report.Score += a.policy.SimilarityPairIncrement
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"sender domain %s closely resembles %s (%s, similarity %.2f)",
				sender, other, rel.Kind, rel.Similarity,
			))
		}
	}

	report.Level = a.policy.Similarity.Level(report.Score, domain.LevelLow)
	return report
}
