package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stoik/phishing-risk/internal/domain/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew_Defaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	cache, err := cfg.GetCache()
	require.NoError(t, err)
	assert.True(t, cache.Enabled)
	assert.Equal(t, "memory", cache.Type)
	assert.Equal(t, 24*time.Hour, cache.TTL)
	assert.Equal(t, time.Hour, cache.CleanupFreq)

	whois, err := cfg.GetWhois()
	require.NoError(t, err)
	assert.True(t, whois.Enabled)
	assert.Equal(t, "https://rdap.org", whois.FallbackURL)
	assert.Equal(t, 3, whois.Attempts)
	assert.Equal(t, 2*time.Second, whois.RetryDelay)

	assert.Equal(t, LoggingConfig{Level: "info", Format: "json"}, cfg.GetLogging())
	assert.Equal(t, "0.0.0.0:8080", cfg.GetServer().ListenAddress)
	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, detection.DefaultPolicy(), policy)
}

func TestNew_FromFile(t *testing.T) {
	path := writeConfig(t, `
detection:
  protected_domains: ["paypal.com", "didiglobal.com"]
  check_recipient_age: false
whois:
  attempts: 5
  retry_delay: 500ms
  servers:
    com: https://rdap.verisign.com/com/v1
cache:
  type: sqlite
  ttl: 12h
policy:
  auth:
    fail: 4.5
  links:
    percent_limit: 8
  overall:
    critical: 12
logging:
  level: debug
`)

	cfg, err := New(path)
	require.NoError(t, err)

	cache, err := cfg.GetCache()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cache.Type)
	assert.Equal(t, 12*time.Hour, cache.TTL)

	whois, err := cfg.GetWhois()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"com": "https://rdap.verisign.com/com/v1"}, whois.Servers)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, 4.5, policy.AuthFail)
	assert.Equal(t, 8, policy.PercentLimit)
	assert.Equal(t, 12.0, policy.Overall.Critical)
	assert.Equal(t, detection.OverallHighThreshold, policy.Overall.High, "unset keys keep their default")
	assert.Equal(t, detection.SPFSoftFailWeight, policy.SPFSoftFail)

	dctx, err := cfg.DetectionContext()
	require.NoError(t, err)
	assert.Equal(t, []string{"paypal.com", "didiglobal.com"}, dctx.ProtectedDomains)
	assert.Equal(t, []string{"X-Fangmail-Spf"}, dctx.GatewaySPFHeaders)
	assert.False(t, dctx.CheckRecipientAge)
	assert.Equal(t, 5, dctx.Retry.Attempts)
	assert.Equal(t, 500*time.Millisecond, dctx.Retry.Delay)
	assert.Equal(t, 4.5, dctx.Policy.AuthFail)
	assert.Equal(t, "debug", cfg.GetLogging().Level)
}

func TestNew_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "cache:\n  type: sqlite\n")
	t.Setenv("PHISH_RISK_CACHE_TYPE", "redis")

	cfg, err := New(path)
	require.NoError(t, err)

	cache, err := cfg.GetCache()
	require.NoError(t, err)
	assert.Equal(t, "redis", cache.Type)
}

func TestNew_MissingExplicitFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfig_InvalidValues(t *testing.T) {
	v := NewEmptyViper()
	v.Set("cache.ttl", "one day")
	v.Set("whois.attempts", 0)
	cfg := NewFromViper(v)

	_, err := cfg.GetCache()
	assert.ErrorContains(t, err, "cache.ttl")

	_, err = cfg.DetectionContext()
	assert.ErrorContains(t, err, "whois.attempts")
}

func TestConfig_Policy_RejectsNegativeValues(t *testing.T) {
	tests := []struct {
		name          string
		key           string
		value         any
		expectedError string
	}{
		{"Negative weight", "policy.auth.fail", -3.0, "policy.auth.fail must not be negative, got -3"},
		{"Negative threshold", "policy.overall.high", -1, "policy.overall.high must not be negative, got -1"},
		{"Negative percent limit", "policy.links.percent_limit", -2, "policy.links.percent_limit must not be negative, got -2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewEmptyViper()
			v.Set(tt.key, tt.value)
			cfg := NewFromViper(v)

			_, err := cfg.Policy()
			assert.EqualError(t, err, tt.expectedError)

			_, err = cfg.DetectionContext()
			assert.EqualError(t, err, tt.expectedError)
		})
	}
}

func TestConfig_Policy_AcceptsZero(t *testing.T) {
	v := NewEmptyViper()
	v.Set("policy.links.redirect_param", 0)
	cfg := NewFromViper(v)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Zero(t, policy.LinkRedirectParam)
}
