package whois

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the registry has no record for the domain
var ErrNotFound = errors.New("domain not found in registry")

// maxResponseBytes bounds the RDAP document read from a registry
const maxResponseBytes = 1 << 20

// DefaultServers maps common TLDs to their registry RDAP base URLs. Other TLDs
// go to the fallback bootstrap service.
var DefaultServers = map[string]string{
	"com": "https://rdap.verisign.com/com/v1/",
	"net": "https://rdap.verisign.com/net/v1/",
	"org": "https://rdap.publicinterestregistry.net/rdap/",
	"io":  "https://rdap.nic.io/",
	"dev": "https://rdap.nic.google/",
	"app": "https://rdap.nic.google/",
	"uk":  "https://rdap.nominet.uk/uk/",
	"eu":  "https://rdap.eu/",
	"nl":  "https://rdap.sidn.nl/rdap/",
	"cc":  "https://rdap.verisign.com/cc/v1/",
	"xyz": "https://rdap.centralnic.com/xyz/",
	"top": "https://rdap.nic.top/",
}

// ClientConfig holds the RDAP client settings
type ClientConfig struct {
	FallbackURL string
	Servers     map[string]string // Overrides and additions to DefaultServers
	Timeout     time.Duration
	RateLimit   float64 // Requests per second, 0 disables limiting
	Burst       int
	UserAgent   string
}

// RDAPClient implements ports.WhoisLookup over the registration data access protocol
type RDAPClient struct {
	httpClient  *http.Client
	servers     map[string]string
	fallbackURL string
	userAgent   string
	limiter     *rate.Limiter
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewRDAPClient creates a new RDAP client
func NewRDAPClient(cfg ClientConfig, m *metrics.Metrics, logger *zap.Logger) *RDAPClient {
	servers := make(map[string]string, len(DefaultServers)+len(cfg.Servers))
	for tld, endpoint := range DefaultServers {
		servers[tld] = endpoint
	}
	for tld, endpoint := range cfg.Servers {
		servers[strings.ToLower(strings.TrimPrefix(tld, "."))] = endpoint
	}

	fallback := cfg.FallbackURL
	if fallback == "" {
		fallback = "https://rdap.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "phishing-risk/1.0"
	}

	return &RDAPClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		servers:     servers,
		fallbackURL: fallback,
		userAgent:   userAgent,
		limiter:     rate.NewLimiter(limit, burst),
		metrics:     m,
		logger:      logger,
	}
}

type rdapEvent struct {
	Action string `json:"eventAction"`
	Date   string `json:"eventDate"`
}

type rdapDomain struct {
	LDHName   string      `json:"ldhName"`
	Events    []rdapEvent `json:"events"`
	ErrorCode int         `json:"errorCode"`
}

// Lookup fetches the registration record of a domain. It performs a single
// request; retries belong to the caller.
func (c *RDAPClient) Lookup(ctx context.Context, domainName string) (*domain.WhoisRecord, error) {
	domainName = strings.ToLower(strings.TrimSuffix(domainName, "."))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.Endpoint(domainName)
	c.logger.Debug("RDAP lookup", zap.String("domain", domainName), zap.String("url", endpoint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.metrics.RecordLookup("error")
		return nil, fmt.Errorf("failed to build RDAP request: %w", err)
	}
	req.Header.Set("Accept", "application/rdap+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordLookup("error")
		return nil, fmt.Errorf("RDAP lookup of %s failed: %w", domainName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.RecordLookup("error")
		return nil, fmt.Errorf("failed to read RDAP response for %s: %w", domainName, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		c.metrics.RecordLookup("not_found")
		return nil, fmt.Errorf("%s: %w", domainName, ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		c.metrics.RecordLookup("error")
		return nil, fmt.Errorf("RDAP lookup of %s returned HTTP %d", domainName, resp.StatusCode)
	}

	var data rdapDomain
	if err := json.Unmarshal(body, &data); err != nil {
		c.metrics.RecordLookup("error")
		return nil, fmt.Errorf("invalid RDAP response for %s: %w", domainName, err)
	}
	if data.ErrorCode == http.StatusNotFound {
		c.metrics.RecordLookup("not_found")
		return nil, fmt.Errorf("%s: %w", domainName, ErrNotFound)
	}
	if data.ErrorCode != 0 {
		c.metrics.RecordLookup("error")
		return nil, fmt.Errorf("RDAP error %d for %s", data.ErrorCode, domainName)
	}

	c.metrics.RecordLookup("ok")
	return toRecord(domainName, data), nil
}

// Endpoint returns the RDAP URL queried for a domain
func (c *RDAPClient) Endpoint(domainName string) string {
	base, ok := c.servers[tld(domainName)]
	if !ok {
		base = c.fallbackURL
	}
	return fmt.Sprintf("%s/domain/%s", strings.TrimRight(base, "/"), domainName)
}

func tld(domainName string) string {
	if i := strings.LastIndex(domainName, "."); i >= 0 {
		return domainName[i+1:]
	}
	return domainName
}

// toRecord maps RDAP events onto registry dates. Timestamps that are not
// RFC 3339 are passed on as text for the analyzer to interpret.
func toRecord(domainName string, data rdapDomain) *domain.WhoisRecord {
	record := &domain.WhoisRecord{DomainName: domainName}
	if data.LDHName != "" {
		record.DomainName = strings.ToLower(data.LDHName)
	}

	for _, event := range data.Events {
		value := domain.DateValue{Text: event.Date}
		if t, err := time.Parse(time.RFC3339, event.Date); err == nil {
			value = domain.DateValue{Time: t.UTC()}
		}

		switch strings.ToLower(event.Action) {
		case "registration":
			record.CreationDate = append(record.CreationDate, value)
		case "expiration":
			record.ExpirationDate = append(record.ExpirationDate, value)
		case "last changed":
			record.UpdatedDate = append(record.UpdatedDate, value)
		}
	}
	return record
}
