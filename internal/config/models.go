package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/stoik/phishing-risk/internal/domain/detection"
)

// LoggingConfig represents the logger configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// CacheConfig represents the registration cache configuration
type CacheConfig struct {
	Enabled       bool
	Type          string
	TTL           time.Duration
	CleanupFreq   time.Duration
	SQLitePath    string
	PostgresDSN   string
	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// WhoisConfig represents the RDAP client configuration
type WhoisConfig struct {
	Enabled     bool
	FallbackURL string
	Servers     map[string]string
	Timeout     time.Duration
	RateLimit   float64
	Burst       int
	Attempts    int
	RetryDelay  time.Duration
}

// ServerConfig represents the HTTP API configuration
type ServerConfig struct {
	ListenAddress string
	Mode          string
	MaxBodyBytes  int64
}

// GetLogging returns the logging configuration
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:  c.GetString("logging.level"),
		Format: c.GetString("logging.format"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, err
	}
	cleanupFreq, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return CacheConfig{}, err
	}

	return CacheConfig{
		Enabled:       c.GetBool("cache.enabled"),
		Type:          strings.ToLower(c.GetString("cache.type")),
		TTL:           ttl,
		CleanupFreq:   cleanupFreq,
		SQLitePath:    c.GetString("cache.sqlite_path"),
		PostgresDSN:   c.GetString("cache.postgres_dsn"),
		MySQLDSN:      c.GetString("cache.mysql_dsn"),
		RedisAddr:     c.GetString("cache.redis_addr"),
		RedisPassword: c.GetString("cache.redis_password"),
		RedisDB:       c.GetInt("cache.redis_db"),
	}, nil
}

// GetWhois returns the RDAP client configuration
func (c *Config) GetWhois() (WhoisConfig, error) {
	timeout, err := c.GetDuration("whois.timeout")
	if err != nil {
		return WhoisConfig{}, err
	}
	retryDelay, err := c.GetDuration("whois.retry_delay")
	if err != nil {
		return WhoisConfig{}, err
	}

	return WhoisConfig{
		Enabled:     c.GetBool("whois.enabled"),
		FallbackURL: c.GetString("whois.fallback_url"),
		Servers:     c.GetStringMapString("whois.servers"),
		Timeout:     timeout,
		RateLimit:   c.GetFloat64("whois.rate_limit"),
		Burst:       c.GetInt("whois.burst"),
		Attempts:    c.GetInt("whois.attempts"),
		RetryDelay:  retryDelay,
	}, nil
}

// GetServer returns the HTTP API configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
		Mode:          c.GetString("server.mode"),
		MaxBodyBytes:  c.GetInt64("server.max_body_bytes"),
	}
}

// Policy returns the stock scoring policy with the overrides found under policy.*
// Weights and thresholds must not be negative, scores only ever accumulate.
func (c *Config) Policy() (detection.Policy, error) {
	p := detection.DefaultPolicy()

	overrides := []struct {
		key    string
		target *float64
	}{
		{"policy.similarity.pair_increment", &p.SimilarityPairIncrement},
		{"policy.similarity.edit_threshold", &p.SimilarityEditThreshold},
		{"policy.similarity.high", &p.Similarity.High},
		{"policy.similarity.medium", &p.Similarity.Medium},

		{"policy.links.display_mismatch", &p.LinkDisplayMismatch},
		{"policy.links.lookalike", &p.LinkLookalike},
		{"policy.links.non_standard_port", &p.LinkNonStandardPort},
		{"policy.links.over_encoded", &p.LinkOverEncoded},
		{"policy.links.redirect_param", &p.LinkRedirectParam},
		{"policy.links.link_high", &p.Link.High},
		{"policy.links.link_medium", &p.Link.Medium},
		{"policy.links.high", &p.URLComponent.High},
		{"policy.links.medium", &p.URLComponent.Medium},

		{"policy.hidden.hidden_pixel", &p.HiddenPixel},
		{"policy.hidden.tracking_pixel", &p.TrackingPixel},
		{"policy.hidden.hidden_text", &p.HiddenText},
		{"policy.hidden.non_standard_port", &p.TrackerNonStandardPort},
		{"policy.hidden.tracking_param", &p.TrackingParam},
		{"policy.hidden.over_encoded", &p.TrackerOverEncoded},
		{"policy.hidden.external_tracker", &p.ExternalTracker},
		{"policy.hidden.high", &p.Hidden.High},
		{"policy.hidden.medium", &p.Hidden.Medium},

		{"policy.auth.fail", &p.AuthFail},
		{"policy.auth.spf_softfail", &p.SPFSoftFail},
		{"policy.auth.dkim_missing", &p.DKIMMissing},
		{"policy.auth.dmarc_none", &p.DMARCNone},
		{"policy.auth.domain_mismatch", &p.AuthDomainMismatch},
		{"policy.auth.high", &p.Auth.High},
		{"policy.auth.medium", &p.Auth.Medium},

		{"policy.spoofing.spf_fail", &p.SpoofSPFFail},
		{"policy.spoofing.received_mismatch", &p.SpoofReceivedMismatch},
		{"policy.spoofing.gateway_spf", &p.SpoofGatewaySPF},
		{"policy.spoofing.brand", &p.SpoofBrand},
		{"policy.spoofing.high", &p.Spoof.High},
		{"policy.spoofing.medium", &p.Spoof.Medium},

		{"policy.registration.age_gap_weight", &p.AgeGapWeight},
		{"policy.registration.critical", &p.Registration.Critical},
		{"policy.registration.high", &p.Registration.High},
		{"policy.registration.medium", &p.Registration.Medium},

		{"policy.overall.critical", &p.Overall.Critical},
		{"policy.overall.high", &p.Overall.High},
		{"policy.overall.medium", &p.Overall.Medium},
	}
	for _, o := range overrides {
		if !c.IsSet(o.key) {
			continue
		}
		value := c.GetFloat64(o.key)
		if value < 0 {
			return p, fmt.Errorf("%s must not be negative, got %v", o.key, value)
		}
		*o.target = value
	}

	intOverrides := []struct {
		key    string
		target *int
	}{
		{"policy.links.percent_limit", &p.PercentLimit},
		{"policy.registration.age_gap_days", &p.AgeGapDays},
	}
	for _, o := range intOverrides {
		if !c.IsSet(o.key) {
			continue
		}
		value := c.GetInt(o.key)
		if value < 0 {
			return p, fmt.Errorf("%s must not be negative, got %d", o.key, value)
		}
		*o.target = value
	}

	return p, nil
}

// DetectionContext builds the analyzer configuration: watch-lists, policy and
// WHOIS retry policy
func (c *Config) DetectionContext() (*detection.DetectionContext, error) {
	whois, err := c.GetWhois()
	if err != nil {
		return nil, err
	}
	if whois.Attempts < 1 {
		return nil, fmt.Errorf("whois.attempts must be at least 1, got %d", whois.Attempts)
	}

	policy, err := c.Policy()
	if err != nil {
		return nil, err
	}

	dctx := detection.NewDetectionContext(c.GetStringSlice("detection.protected_domains"))
	dctx.GatewaySPFHeaders = c.GetStringSlice("detection.gateway_spf_headers")
	dctx.CheckRecipientAge = c.GetBool("detection.check_recipient_age")
	dctx.Policy = policy
	dctx.Retry.Attempts = whois.Attempts
	dctx.Retry.Delay = whois.RetryDelay
	return dctx, nil
}
