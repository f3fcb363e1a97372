package di

import (
	"testing"

	"github.com/stoik/phishing-risk/internal/adapters/storage"
	"github.com/stoik/phishing-risk/internal/adapters/whois"
	"github.com/stoik/phishing-risk/internal/application"
	"github.com/stoik/phishing-risk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContainer(t *testing.T) {
	v := config.NewEmptyViper()
	v.Set("logging.format", "console")

	container, err := BuildContainer(config.NewFromViper(v))
	require.NoError(t, err)

	err = container.Invoke(func(service *application.AnalysisService, stack *WhoisStack) {
		assert.NotNil(t, service)
		assert.IsType(t, &whois.CachedLookup{}, stack.Lookup)
		assert.IsType(t, &storage.MemoryCache{}, stack.Cache)
		assert.NoError(t, stack.Close())
	})
	assert.NoError(t, err)
}

func TestNewWhoisStack(t *testing.T) {
	tests := []struct {
		name         string
		settings     map[string]any
		expectLookup bool
		expectCache  bool
		expectErr    bool
	}{
		{"lookups disabled", map[string]any{"whois.enabled": false}, false, false, false},
		{"cache disabled", map[string]any{"cache.enabled": false}, true, false, false},
		{"unsupported cache", map[string]any{"cache.type": "memcached"}, false, false, true},
		{"invalid ttl", map[string]any{"cache.ttl": "0s"}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := config.NewEmptyViper()
			for key, value := range tt.settings {
				v.Set(key, value)
			}

			container, err := BuildContainer(config.NewFromViper(v))
			require.NoError(t, err)

			err = container.Invoke(func(stack *WhoisStack) {
				assert.Equal(t, tt.expectLookup, stack.Lookup != nil)
				assert.Equal(t, tt.expectCache, stack.Cache != nil)
			})
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
