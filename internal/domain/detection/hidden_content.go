package detection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/stoik/phishing-risk/internal/domain"
)

const hiddenContentPreview = 100

var (
	// trackingParams are query keys that identify the reader of a message
	trackingParams = map[string]bool{
		"uid": true, "user": true, "id": true, "email": true,
		"track": true, "open": true, "click": true,
	}

	trackerMarkers = []string{"track", "beacon", "pixel"}
)

// HiddenContentDetector inspects the HTML body for CSS-hidden elements,
// tracking pixels and beacon-style resources
type HiddenContentDetector struct {
	policy Policy
}

// NewHiddenContentDetector creates a hidden content and tracker detector
func NewHiddenContentDetector(policy Policy) *HiddenContentDetector {
	return &HiddenContentDetector{policy: policy}
}

// Name returns the detector name
func (d *HiddenContentDetector) Name() string {
	return "hidden_content"
}

// Analyze scans the HTML body. An email without HTML yields an unknown level.
func (d *HiddenContentDetector) Analyze(email domain.ParsedEmail) domain.HiddenContentReport {
	report := domain.HiddenContentReport{
		Tracking: []domain.TrackingFinding{},
		Hidden:   []domain.HiddenContentFinding{},
		Level:    domain.LevelUnknown,
		Warnings: []string{},
	}

	if strings.TrimSpace(email.BodyHTML) == "" {
		report.Warnings = append(report.Warnings, "hidden content: no HTML body")
		return report
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(email.BodyHTML))
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("hidden content: failed to parse HTML body: %v", err))
		return report
	}

	d.scanImages(doc, &report)
	d.scanHiddenText(doc, &report)
	d.scanTrackingURLs(doc, &report)
	d.scanExternalTrackers(doc, &report)

	report.Level = d.policy.Hidden.Level(report.Score, domain.LevelLow)
	switch report.Level {
	case domain.LevelHigh:
		report.Warnings = append(report.Warnings, "multiple hidden or tracking elements found, likely phishing")
	case domain.LevelMedium:
		report.Warnings = append(report.Warnings, "hidden or tracking elements found")
	}
	if n := len(report.Tracking); n > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("found %d tracking elements", n))
	}
	if n := len(report.Hidden); n > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("found %d hidden content elements", n))
	}

	return report
}

// scanImages flags CSS-hidden images and images sized 1x1 or 0x0
func (d *HiddenContentDetector) scanImages(doc *goquery.Document, report *domain.HiddenContentReport) {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")

		if marker, ok := hiddenStyle(parseStyle(s.AttrOr("style", "")), true); ok {
			report.Tracking = append(report.Tracking, domain.TrackingFinding{
				Kind:   "hidden_tracking_pixel",
				URL:    src,
				Reason: "image hidden with " + marker,
			})
			report.Score += d.policy.HiddenPixel
		}

		width := dimension(s.AttrOr("width", ""))
		height := dimension(s.AttrOr("height", ""))
		if (width == "1" && height == "1") || (width == "0" && height == "0") {
			report.Tracking = append(report.Tracking, domain.TrackingFinding{
				Kind:   "tracking_pixel",
				URL:    src,
				Reason: fmt.Sprintf("image sized %sx%s", width, height),
			})
			report.Score += d.policy.TrackingPixel
		}
	})
}

// scanHiddenText flags non-image elements that hide text with inline CSS
func (d *HiddenContentDetector) scanHiddenText(doc *goquery.Document, report *domain.HiddenContentReport) {
	doc.Find("[style]").Not("img").Each(func(_ int, s *goquery.Selection) {
		marker, ok := hiddenStyle(parseStyle(s.AttrOr("style", "")), false)
		if !ok {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}

		report.Hidden = append(report.Hidden, domain.HiddenContentFinding{
			Kind:    "hidden_text",
			Content: truncateRunes(text, hiddenContentPreview),
			Reason:  fmt.Sprintf("<%s> text hidden with %s", goquery.NodeName(s), marker),
		})
		report.Score += d.policy.HiddenText
	})
}

// scanTrackingURLs inspects the URLs of links, images and forms
func (d *HiddenContentDetector) scanTrackingURLs(doc *goquery.Document, report *domain.HiddenContentReport) {
	doc.Find("a[href], img[src], form[action]").Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.AttrOr("href", s.AttrOr("src", s.AttrOr("action", ""))))
		if raw == "" || strings.HasPrefix(strings.ToLower(raw), "mailto:") || strings.HasPrefix(strings.ToLower(raw), "data:") {
			return
		}
		u, err := parseURL(raw)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("hidden content: unparseable URL %q: %v", raw, err))
			return
		}

		if port := portNumber(u.Port()); isNonStandardPort(port) {
			report.Tracking = append(report.Tracking, domain.TrackingFinding{
				Kind:   "suspicious_port",
				URL:    raw,
				Reason: fmt.Sprintf("uses non-standard port %d", port),
			})
			report.Score += d.policy.TrackerNonStandardPort
		}

		if found := matchingParams(u.Query(), trackingParams); len(found) > 0 {
			report.Tracking = append(report.Tracking, domain.TrackingFinding{
				Kind:   "tracking_parameters",
				URL:    raw,
				Reason: "contains tracking parameters: " + strings.Join(found, ", "),
			})
			report.Score += d.policy.TrackingParam
		}

		if n := strings.Count(raw, "%"); n > d.policy.PercentLimit {
			report.Tracking = append(report.Tracking, domain.TrackingFinding{
				Kind:   "encoded_url",
				URL:    raw,
				Reason: fmt.Sprintf("over-encoded (%d percent escapes)", n),
			})
			report.Score += d.policy.TrackerOverEncoded
		}
	})
}

// scanExternalTrackers flags resources whose URL names a tracker or beacon
func (d *HiddenContentDetector) scanExternalTrackers(doc *goquery.Document, report *domain.HiddenContentReport) {
	doc.Find("script[src], iframe[src], img[src], link[href]").Each(func(_ int, s *goquery.Selection) {
		raw := s.AttrOr("src", s.AttrOr("href", ""))
		if !containsAny(strings.ToLower(raw), trackerMarkers) {
			return
		}
		report.Tracking = append(report.Tracking, domain.TrackingFinding{
			Kind:   "external_tracker",
			URL:    raw,
			Reason: fmt.Sprintf("<%s> loads a tracker-style resource", goquery.NodeName(s)),
		})
		report.Score += d.policy.ExternalTracker
	})
}

// parseStyle splits an inline style into lowercased, whitespace-free declarations
func parseStyle(style string) map[string]string {
	decls := make(map[string]string)
	for _, part := range strings.Split(style, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.Join(strings.Fields(prop), ""))
		value = strings.ToLower(strings.Join(strings.Fields(value), ""))
		value = strings.TrimSuffix(value, "!important")
		if prop != "" {
			decls[prop] = value
		}
	}
	return decls
}

// hiddenStyle reports the first declaration that hides an element. Width and
// height markers only apply to images.
func hiddenStyle(decls map[string]string, image bool) (string, bool) {
	if decls["display"] == "none" {
		return "display:none", true
	}
	if decls["visibility"] == "hidden" {
		return "visibility:hidden", true
	}
	if v, ok := decls["opacity"]; ok && isZero(v) {
		return "opacity:0", true
	}
	if v, ok := decls["font-size"]; ok && isZero(v) {
		return "font-size:0", true
	}
	if image {
		for _, prop := range []string{"width", "height"} {
			if v, ok := decls[prop]; ok && (v == "1px" || isZero(v)) {
				return prop + ":" + v, true
			}
		}
	}
	return "", false
}

// isZero reports whether a CSS length or number is zero ("0", "0px", "0.0em")
func isZero(value string) bool {
	end := 0
	for end < len(value) && (value[end] == '.' || (value[end] >= '0' && value[end] <= '9')) {
		end++
	}
	if end == 0 {
		return false
	}
	n, err := strconv.ParseFloat(value[:end], 64)
	return err == nil && n == 0
}

func dimension(attr string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(attr)), "px")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
