package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level is the severity tier attached to every report and finding
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
	LevelUnknown  Level = "unknown"
)

// Attachment is the metadata the message parser extracted for one attachment
type Attachment struct {
	Filename    string `json:"filename"`
	Extension   string `json:"extension"`
	TextPreview string `json:"text_preview,omitempty"` // Already extracted and truncated upstream
}

// ThreadInfo describes the original message when the email is a reply or forward
type ThreadInfo struct {
	OriginalSender     string   `json:"original_sender,omitempty"`
	OriginalRecipients []string `json:"original_recipients,omitempty"`
	OriginalSubject    string   `json:"original_subject,omitempty"`
	OriginalDate       string   `json:"original_date,omitempty"`
}

// ParsedEmail is the normalized, already-decoded email record analyzed by the engine
//
// Headers keeps names case-preserved as received. A header that appears several
// times (Received, Authentication-Results) keeps every value in received order,
// so the last Received value is the earliest hop.
type ParsedEmail struct {
	From        []string            `json:"from"`
	To          []string            `json:"to"`
	Cc          []string            `json:"cc,omitempty"`
	Bcc         []string            `json:"bcc,omitempty"`
	ReplyTo     []string            `json:"reply_to,omitempty"`
	Subject     string              `json:"subject"`
	Date        string              `json:"date,omitempty"`
	BodyText    string              `json:"body_text,omitempty"`
	BodyHTML    string              `json:"body_html,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`
	Attachments []Attachment        `json:"attachments,omitempty"`
	Thread      ThreadInfo          `json:"thread"`
}

// HeaderValues returns every value of a header, matching the name case-insensitively.
// Values of differently-cased names are concatenated in sorted name order so the
// result does not depend on map iteration.
func (e ParsedEmail) HeaderValues(name string) []string {
	if len(e.Headers) == 0 {
		return nil
	}
	if values, ok := e.Headers[name]; ok {
		return values
	}

	var keys []string
	for key := range e.Headers {
		if strings.EqualFold(key, name) {
			keys = append(keys, key)
		}
	}
	if len(keys) > 1 {
		sort.Strings(keys)
	}

	var values []string
	for _, key := range keys {
		values = append(values, e.Headers[key]...)
	}
	return values
}

// Header returns the first value of a header, or "" when absent
func (e ParsedEmail) Header(name string) string {
	values := e.HeaderValues(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// IsEmpty reports whether the record carries nothing an analyzer could use
func (e ParsedEmail) IsEmpty() bool {
	return len(e.From) == 0 && len(e.To) == 0 && len(e.Cc) == 0 && len(e.Bcc) == 0 &&
		len(e.ReplyTo) == 0 && e.Subject == "" && e.BodyText == "" && e.BodyHTML == "" &&
		len(e.Headers) == 0 && len(e.Attachments) == 0 && e.Thread.OriginalSender == ""
}

// RelationshipKind classifies how two domain base-names relate
type RelationshipKind string

const (
	RelationshipNone         RelationshipKind = "none"
	RelationshipSubstitution RelationshipKind = "substitution"
	RelationshipContainment  RelationshipKind = "containment"
	RelationshipAnagram      RelationshipKind = "anagram"
	RelationshipEditDistance RelationshipKind = "edit_distance"
)

// DomainRelationship is the outcome of comparing two domain base-names.
// Risk is high exactly when Kind is not none.
type DomainRelationship struct {
	DomainA    string           `json:"domain_a"`
	DomainB    string           `json:"domain_b"`
	Similarity float64          `json:"similarity"`
	Kind       RelationshipKind `json:"kind"`
	Risk       Level            `json:"risk"`
}

// SimilarityReport lists the domain pairs compared for one email
type SimilarityReport struct {
	Relationships []DomainRelationship `json:"relationships"`
	Score         float64              `json:"score"`
	Level         Level                `json:"level"`
	Warnings      []string             `json:"warnings"`
}

// LinkFinding is the safety verdict for one hyperlink
type LinkFinding struct {
	DisplayText string   `json:"display_text"`
	TargetURL   string   `json:"target_url"`
	Score       float64  `json:"score"`
	Level       Level    `json:"level"`
	Reasons     []string `json:"reasons"`
}

// URLInventory groups the URLs found in each part of the email
type URLInventory struct {
	Text        []string `json:"text"`
	HTML        []string `json:"html"`
	Attachments []string `json:"attachments"`
}

// Total returns the number of URLs across all sources
func (u URLInventory) Total() int {
	return len(u.Text) + len(u.HTML) + len(u.Attachments)
}

// LinkReport is the URL/link safety result for one email
type LinkReport struct {
	URLs            URLInventory  `json:"urls"`
	SuspiciousLinks []LinkFinding `json:"suspicious_links"`
	Score           float64       `json:"score"`
	Level           Level         `json:"level"`
	Warnings        []string      `json:"warnings"`
}

// TrackingFinding is one tracker-style element found in the HTML body
type TrackingFinding struct {
	Kind   string `json:"kind"` // e.g. "tracking_pixel", "external_tracker"
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// HiddenContentFinding is one CSS-hidden element carrying text
type HiddenContentFinding struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// HiddenContentReport is the hidden-content and tracker result for one email
type HiddenContentReport struct {
	Tracking []TrackingFinding      `json:"tracking"`
	Hidden   []HiddenContentFinding `json:"hidden"`
	Score    float64                `json:"score"`
	Level    Level                  `json:"level"`
	Warnings []string               `json:"warnings"`
}

// AuthStatus is the verdict reported for one authentication mechanism
type AuthStatus string

const (
	AuthPass     AuthStatus = "pass"
	AuthFail     AuthStatus = "fail"
	AuthSoftFail AuthStatus = "softfail" // SPF only
	AuthNeutral  AuthStatus = "neutral"
	AuthNone     AuthStatus = "none"
	AuthUnknown  AuthStatus = "unknown"
)

// SPFResult holds the SPF evidence extracted from the headers
type SPFResult struct {
	Status   AuthStatus `json:"status"`
	Domain   string     `json:"domain,omitempty"`
	ClientIP string     `json:"client_ip,omitempty"`
}

// DKIMResult holds the DKIM evidence extracted from the headers
type DKIMResult struct {
	Status   AuthStatus `json:"status"`
	Domain   string     `json:"domain,omitempty"`
	Selector string     `json:"selector,omitempty"`
}

// DMARCResult holds the DMARC evidence extracted from the headers
type DMARCResult struct {
	Status AuthStatus `json:"status"`
	Policy string     `json:"policy,omitempty"`
}

// AuthReport is the authentication verification result for one email
type AuthReport struct {
	SPF      SPFResult   `json:"spf"`
	DKIM     DKIMResult  `json:"dkim"`
	DMARC    DMARCResult `json:"dmarc"`
	Score    float64     `json:"score"`
	Level    Level       `json:"level"`
	Warnings []string    `json:"warnings"`
}

// SpoofFinding is the evidence that the declared sender was forged
type SpoofFinding struct {
	IsSpoofed bool     `json:"is_spoofed"`
	Evidence  []string `json:"evidence"`
	Score     float64  `json:"score"`
}

// SpoofingReport is the sender spoofing result for one email
type SpoofingReport struct {
	SpoofFinding
	Sender   string   `json:"sender,omitempty"`
	Level    Level    `json:"level"`
	Warnings []string `json:"warnings"`
}

// DateValue is one registry date as returned by a WHOIS collaborator:
// either an already-parsed timestamp or raw text
type DateValue struct {
	Time time.Time `json:"time,omitempty"`
	Text string    `json:"text,omitempty"`
}

// WhoisRecord is the raw registration data for a domain. Registries may report
// several values per field.
type WhoisRecord struct {
	DomainName     string      `json:"domain_name"`
	CreationDate   []DateValue `json:"creation_date,omitempty"`
	ExpirationDate []DateValue `json:"expiration_date,omitempty"`
	UpdatedDate    []DateValue `json:"updated_date,omitempty"`
}

// DomainRegistration is the interpreted registration data of one domain
type DomainRegistration struct {
	Domain         string     `json:"domain"`
	CreationDate   *time.Time `json:"creation_date,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	UpdatedDate    *time.Time `json:"updated_date,omitempty"`
	AgeDays        *int       `json:"age_days,omitempty"`
	Tier           Level      `json:"tier"`
	Score          float64    `json:"score"`
	Warnings       []string   `json:"warnings"`
}

// AgeComparison records the sender vs recipient domain age check
type AgeComparison struct {
	AgeDifferenceDays int      `json:"age_difference_days"`
	Warnings          []string `json:"warnings,omitempty"`
}

// RegistrationReport is the domain registration result for one email
type RegistrationReport struct {
	Sender        *DomainRegistration `json:"sender,omitempty"`
	Recipient     *DomainRegistration `json:"recipient,omitempty"`
	AgeComparison *AgeComparison      `json:"age_comparison,omitempty"`
	Score         float64             `json:"score"`
	Level         Level               `json:"level"`
	Warnings      []string            `json:"warnings"`
}

// SectionSummary is one line of the top-level report summary
type SectionSummary struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Level Level   `json:"level"`
}

// RiskReport is the combined phishing risk assessment of one email
//
// ID is derived from the email content, so analyzing the same record twice
// yields the same report. AnalyzedAt is the injected "now" used for domain ages.
type RiskReport struct {
	ID            uuid.UUID           `json:"id"`
	AnalyzedAt    time.Time           `json:"analyzed_at"`
	Similarity    SimilarityReport    `json:"similarity"`
	Links         LinkReport          `json:"links"`
	HiddenContent HiddenContentReport `json:"hidden_content"`
	Auth          AuthReport          `json:"auth"`
	Spoofing      SpoofingReport      `json:"spoofing"`
	Registration  RegistrationReport  `json:"registration"`
	Sections      []SectionSummary    `json:"sections"`
	OverallScore  float64             `json:"overall_score"`
	OverallLevel  Level               `json:"overall_level"`
	Warnings      []string            `json:"warnings"`
}

// IsHighRisk reports whether the overall level warrants an alert
func (r RiskReport) IsHighRisk() bool {
	return r.OverallLevel == LevelHigh || r.OverallLevel == LevelCritical
}
