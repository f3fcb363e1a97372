package di

import (
	"context"
	"errors"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/stoik/phishing-risk/internal/adapters/storage"
	"github.com/stoik/phishing-risk/internal/adapters/whois"
	"github.com/stoik/phishing-risk/internal/application"
	"github.com/stoik/phishing-risk/internal/config"
	"github.com/stoik/phishing-risk/internal/domain/detection"
	"github.com/stoik/phishing-risk/internal/logging"
	"github.com/stoik/phishing-risk/internal/metrics"
	"github.com/stoik/phishing-risk/internal/ports"
)

// WhoisStack is the registration lookup chain together with the cache it owns
type WhoisStack struct {
	Lookup ports.WhoisLookup       // nil when lookups are disabled
	Cache  ports.RegistrationCache // nil when caching is disabled
}

// Close releases the cache
func (s *WhoisStack) Close() error {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.Close()
}

// BuildContainer creates and configures a dependency injection container
func BuildContainer(cfg *config.Config) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.New); err != nil {
		return nil, err
	}

	// Register the registration lookup chain
	if err := container.Provide(NewWhoisStack); err != nil {
		return nil, err
	}

	// Register detector
	if err := container.Provide(func(cfg *config.Config, stack *WhoisStack, logger *zap.Logger) (*detection.Detector, error) {
		dctx, err := cfg.DetectionContext()
		if err != nil {
			return nil, err
		}
		if len(dctx.ProtectedDomains) > 0 {
			logger.Info("Loaded protected domains", zap.Strings("domains", dctx.ProtectedDomains))
		}
		return detection.NewDetector(dctx, stack.Lookup, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register application service
	if err := container.Provide(application.NewAnalysisService); err != nil {
		return nil, err
	}

	return container, nil
}

// NewWhoisStack builds the RDAP client and wraps it with the configured cache
func NewWhoisStack(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*WhoisStack, error) {
	whoisCfg, err := cfg.GetWhois()
	if err != nil {
		return nil, err
	}
	if !whoisCfg.Enabled {
		logger.Info("Registration lookups disabled")
		return &WhoisStack{}, nil
	}

	client := whois.NewRDAPClient(whois.ClientConfig{
		FallbackURL: whoisCfg.FallbackURL,
		Servers:     whoisCfg.Servers,
		Timeout:     whoisCfg.Timeout,
		RateLimit:   whoisCfg.RateLimit,
		Burst:       whoisCfg.Burst,
	}, m, logger)

	cacheCfg, err := cfg.GetCache()
	if err != nil {
		return nil, err
	}
	if !cacheCfg.Enabled {
		return &WhoisStack{Lookup: client}, nil
	}
	if cacheCfg.TTL <= 0 {
		return nil, errors.New("cache.ttl must be positive")
	}

	cache, err := storage.NewRegistrationCache(context.Background(), cacheCfg, logger)
	if err != nil {
		return nil, err
	}
	return &WhoisStack{
		Lookup: whois.NewCachedLookup(client, cache, cacheCfg.TTL, m, logger),
		Cache:  cache,
	}, nil
}
