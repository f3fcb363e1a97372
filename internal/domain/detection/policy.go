package detection

import (
	"time"

	"github.com/stoik/phishing-risk/internal/domain"
)

// Score increments and thresholds used by the analyzers.
//
// These values are tuning policy, not derived quantities. Every one of them can be
// overridden through the policy.* configuration keys (see config.Config.Policy).
const (
	// Domain similarity
	SimilaritySubstitution    = 0.95
	SimilarityAnagram         = 1.0
	SimilarityContainment     = 0.9
	SimilarityEditThreshold   = 0.8
	SimilarityPairIncrement   = 3.0
	SimilarityHighThreshold   = 3.0
	SimilarityMediumThreshold = 1.0

	// Links
	LinkDisplayMismatchWeight   = 3.0
	LinkLookalikeWeight         = 2.5
	LinkNonStandardPortWeight   = 2.0
	LinkOverEncodedWeight       = 1.5
	LinkRedirectParamWeight     = 2.0
	LinkHighThreshold           = 3.0
	LinkMediumThreshold         = 1.5
	URLComponentHighThreshold   = 5.0
	URLComponentMediumThreshold = 2.5
	PercentEncodingLimit        = 5

	// Hidden content and trackers
	HiddenPixelWeight            = 3.0
	TrackingPixelWeight          = 2.5
	HiddenTextWeight             = 2.0
	TrackerNonStandardPortWeight = 2.5
	TrackingParamWeight          = 1.5
	TrackerOverEncodedWeight     = 2.0
	ExternalTrackerWeight        = 2.0
	HiddenHighThreshold          = 5.0
	HiddenMediumThreshold        = 3.0

	// Authentication
	AuthFailWeight           = 3.0
	SPFSoftFailWeight        = 1.5
	DKIMMissingWeight        = 1.0
	DMARCNoneWeight          = 1.0
	AuthDomainMismatchWeight = 2.0
	AuthHighThreshold        = 5.0
	AuthMediumThreshold      = 2.0

	// Spoofing
	SpoofSPFFailWeight          = 3.0
	SpoofReceivedMismatchWeight = 2.5
	SpoofGatewaySPFWeight       = 2.0
	SpoofBrandWeight            = 3.0
	SpoofHighThreshold          = 5.0
	SpoofMediumThreshold        = 2.5

	// Registration
	AgeCriticalDays               = 7
	AgeHighDays                   = 30
	AgeMediumDays                 = 90
	AgeLowDays                    = 365
	AgeCriticalScore              = 5.0
	AgeHighScore                  = 4.0
	AgeMediumScore                = 3.0
	AgeLowScore                   = 2.0
	AgeGapDays                    = 365
	AgeGapWeight                  = 2.0
	RegistrationCriticalThreshold = 5.0
	RegistrationHighThreshold     = 4.0
	RegistrationMediumThreshold   = 3.0

	// Overall
	OverallCriticalThreshold = 10.0
	OverallHighThreshold     = 5.0
	OverallMediumThreshold   = 2.5

	// WHOIS retry
	LookupAttempts   = 3
	LookupRetryDelay = 2 * time.Second
)

// Thresholds maps a cumulative score to a level. Zero thresholds never match.
type Thresholds struct {
	Critical float64
	High     float64
	Medium   float64
}

// Level returns the first tier whose threshold the score reaches, or fallback
func (t Thresholds) Level(score float64, fallback domain.Level) domain.Level {
	switch {
	case t.Critical > 0 && score >= t.Critical:
		return domain.LevelCritical
	case t.High > 0 && score >= t.High:
		return domain.LevelHigh
	case t.Medium > 0 && score >= t.Medium:
		return domain.LevelMedium
	default:
		return fallback
	}
}

// AgeTier is one bucket of the domain age scale
type AgeTier struct {
	MaxDays int
	Level   domain.Level
	Score   float64
}

// Policy bundles every tunable weight and threshold
type Policy struct {
	SimilarityPairIncrement float64
	SimilarityEditThreshold float64
	Similarity              Thresholds

	LinkDisplayMismatch float64
	LinkLookalike       float64
	LinkNonStandardPort float64
	LinkOverEncoded     float64
	LinkRedirectParam   float64
	Link                Thresholds
	URLComponent        Thresholds
	PercentLimit        int

	HiddenPixel            float64
	TrackingPixel          float64
	HiddenText             float64
	TrackerNonStandardPort float64
	TrackingParam          float64
	TrackerOverEncoded     float64
	ExternalTracker        float64
	Hidden                 Thresholds

	AuthFail           float64
	SPFSoftFail        float64
	DKIMMissing        float64
	DMARCNone          float64
	AuthDomainMismatch float64
	Auth               Thresholds

	SpoofSPFFail          float64
	SpoofReceivedMismatch float64
	SpoofGatewaySPF       float64
	SpoofBrand            float64
	Spoof                 Thresholds

	AgeTiers     []AgeTier
	AgeGapDays   int
	AgeGapWeight float64
	Registration Thresholds

	Overall Thresholds
}

// DefaultPolicy returns the stock weights
func DefaultPolicy() Policy {
	return Policy{
		SimilarityPairIncrement: SimilarityPairIncrement,
		SimilarityEditThreshold: SimilarityEditThreshold,
		Similarity:              Thresholds{High: SimilarityHighThreshold, Medium: SimilarityMediumThreshold},

		LinkDisplayMismatch: LinkDisplayMismatchWeight,
		LinkLookalike:       LinkLookalikeWeight,
		LinkNonStandardPort: LinkNonStandardPortWeight,
		LinkOverEncoded:     LinkOverEncodedWeight,
		LinkRedirectParam:   LinkRedirectParamWeight,
		Link:                Thresholds{High: LinkHighThreshold, Medium: LinkMediumThreshold},
		URLComponent:        Thresholds{High: URLComponentHighThreshold, Medium: URLComponentMediumThreshold},
		PercentLimit:        PercentEncodingLimit,

		HiddenPixel:            HiddenPixelWeight,
		TrackingPixel:          TrackingPixelWeight,
		HiddenText:             HiddenTextWeight,
		TrackerNonStandardPort: TrackerNonStandardPortWeight,
		TrackingParam:          TrackingParamWeight,
		TrackerOverEncoded:     TrackerOverEncodedWeight,
		ExternalTracker:        ExternalTrackerWeight,
		Hidden:                 Thresholds{High: HiddenHighThreshold, Medium: HiddenMediumThreshold},

		AuthFail:           AuthFailWeight,
		SPFSoftFail:        SPFSoftFailWeight,
		DKIMMissing:        DKIMMissingWeight,
		DMARCNone:          DMARCNoneWeight,
		AuthDomainMismatch: AuthDomainMismatchWeight,
		Auth:               Thresholds{High: AuthHighThreshold, Medium: AuthMediumThreshold},

		SpoofSPFFail:          SpoofSPFFailWeight,
		SpoofReceivedMismatch: SpoofReceivedMismatchWeight,
		SpoofGatewaySPF:       SpoofGatewaySPFWeight,
		SpoofBrand:            SpoofBrandWeight,
		Spoof:                 Thresholds{High: SpoofHighThreshold, Medium: SpoofMediumThreshold},

		AgeTiers: []AgeTier{
			{MaxDays: AgeCriticalDays, Level: domain.LevelCritical, Score: AgeCriticalScore},
			{MaxDays: AgeHighDays, Level: domain.LevelHigh, Score: AgeHighScore},
			{MaxDays: AgeMediumDays, Level: domain.LevelMedium, Score: AgeMediumScore},
			{MaxDays: AgeLowDays, Level: domain.LevelLow, Score: AgeLowScore},
		},
		AgeGapDays:   AgeGapDays,
		AgeGapWeight: AgeGapWeight,
		Registration: Thresholds{
			Critical: RegistrationCriticalThreshold,
			High:     RegistrationHighThreshold,
			Medium:   RegistrationMediumThreshold,
		},

		Overall: Thresholds{
			Critical: OverallCriticalThreshold,
			High:     OverallHighThreshold,
			Medium:   OverallMediumThreshold,
		},
	}
}
