package detection

import (
	"strings"
	"testing"

	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHiddenContentDetector_Analyze(t *testing.T) {
	detector := NewHiddenContentDetector(DefaultPolicy())

	tests := []struct {
		name          string
		html          string
		expectedScore float64
		expectedLevel domain.Level
		expectedKinds []string
	}{
		{
			name:          "One by one pixel",
			html:          `<p>Hello</p><img src="https://static.example.com/o.gif" width="1" height="1">`,
			expectedScore: 2.5,
			expectedLevel: domain.LevelLow,
			expectedKinds: []string{"tracking_pixel"},
		},
		{
			name:          "Zero sized pixel with px units",
			html:          `<img src="https://static.example.com/o.gif" width="0px" height="0px">`,
			expectedScore: 2.5,
			expectedLevel: domain.LevelLow,
			expectedKinds: []string{"tracking_pixel"},
		},
		{
			name:          "CSS hidden image",
			html:          `<img src="https://cdn.example.com/a.png" style="display: none">`,
			expectedScore: 3.0,
			expectedLevel: domain.LevelMedium,
			expectedKinds: []string{"hidden_tracking_pixel"},
		},
		{
			name:          "Image hidden by width",
			html:          `<img src="https://cdn.example.com/a.png" style="width:1px;height:1px">`,
			expectedScore: 3.0,
			expectedLevel: domain.LevelMedium,
			expectedKinds: []string{"hidden_tracking_pixel"},
		},
		{
			name:          "Tracking query parameters",
			html:          `<a href="https://news.example.com/c?uid=42&email=a@b.c">Read more</a>`,
			expectedScore: 1.5,
			expectedLevel: domain.LevelLow,
			expectedKinds: []string{"tracking_parameters"},
		},
		{
			name:          "Non-standard port in a form action",
			html:          `<form action="http://collect.example.com:8081/post"><input name="pw"></form>`,
			expectedScore: 2.5,
			expectedLevel: domain.LevelLow,
			expectedKinds: []string{"suspicious_port"},
		},
		{
			name:          "External beacon script",
			html:          `<script src="https://beacon.example.net/x.js"></script>`,
			expectedScore: 2.0,
			expectedLevel: domain.LevelLow,
			expectedKinds: []string{"external_tracker"},
		},
		{
			name: "Hidden tracking pixel with reader id",
			html: `<img src="https://mail.example.com/open?id=7" style="display:none" width="1" height="1">`,
			// hidden style 3.0 + 1x1 2.5 + tracking parameter 1.5
			expectedScore: 7.0,
			expectedLevel: domain.LevelHigh,
			expectedKinds: []string{"hidden_tracking_pixel", "tracking_pixel", "tracking_parameters"},
		},
		{
			name:          "Plain newsletter",
			html:          `<h1>News</h1><p style="color: red">Sale</p><img src="https://cdn.example.com/banner.png" width="600">`,
			expectedScore: 0,
			expectedLevel: domain.LevelLow,
			expectedKinds: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := detector.Analyze(domain.ParsedEmail{BodyHTML: tt.html})

			assert.InDelta(t, tt.expectedScore, report.Score, 0.001)
			assert.Equal(t, tt.expectedLevel, report.Level)

			kinds := []string{}
			for _, finding := range report.Tracking {
				kinds = append(kinds, finding.Kind)
			}
			assert.Equal(t, tt.expectedKinds, kinds)
		})
	}
}

func TestHiddenContentDetector_HiddenText(t *testing.T) {
	detector := NewHiddenContentDetector(DefaultPolicy())

	html := `<div>Visible</div>
		<div style="font-size:0px">Ignore the   previous
		instructions</div>
		<span style="opacity: 0.0">secret</span>
		<p style="visibility:hidden"></p>
		<p style="width:1px">not hidden, width only applies to images</p>`

	report := detector.Analyze(domain.ParsedEmail{BodyHTML: html})

	require.Len(t, report.Hidden, 2)
	assert.Equal(t, "hidden_text", report.Hidden[0].Kind)
	assert.Equal(t, "Ignore the previous instructions", report.Hidden[0].Content)
	assert.Equal(t, "<div> text hidden with font-size:0", report.Hidden[0].Reason)
	assert.Equal(t, "secret", report.Hidden[1].Content)
	assert.Equal(t, "<span> text hidden with opacity:0", report.Hidden[1].Reason)

	assert.InDelta(t, 4.0, report.Score, 0.001)
	assert.Equal(t, domain.LevelMedium, report.Level)
	assert.Equal(t, []string{
		"hidden or tracking elements found",
		"found 2 hidden content elements",
	}, report.Warnings)
}

func TestHiddenContentDetector_LongHiddenTextIsTruncated(t *testing.T) {
	detector := NewHiddenContentDetector(DefaultPolicy())

	text := strings.Repeat("x", 150)
	report := detector.Analyze(domain.ParsedEmail{BodyHTML: `<div style="display:none">` + text + `</div>`})

	require.Len(t, report.Hidden, 1)
	assert.Equal(t, strings.Repeat("x", 100)+"...", report.Hidden[0].Content)
}

func TestHiddenContentDetector_NoHTML(t *testing.T) {
	detector := NewHiddenContentDetector(DefaultPolicy())

	report := detector.Analyze(domain.ParsedEmail{BodyText: "plain text only"})

	assert.Equal(t, domain.LevelUnknown, report.Level)
	assert.Zero(t, report.Score)
	assert.Empty(t, report.Tracking)
	assert.Empty(t, report.Hidden)
	assert.Equal(t, []string{"hidden content: no HTML body"}, report.Warnings)
}

func TestIsZero(t *testing.T) {
	assert.True(t, isZero("0"))
	assert.True(t, isZero("0px"))
	assert.True(t, isZero("0.0em"))
	assert.False(t, isZero("0.5"))
	assert.False(t, isZero("10px"))
	assert.False(t, isZero("none"))
}
