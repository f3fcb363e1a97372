package whois

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stoik/phishing-risk/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const exampleRDAP = `{
	"objectClassName": "domain",
	"ldhName": "EXAMPLE.COM",
	"events": [
		{"eventAction": "registration", "eventDate": "1995-08-14T04:00:00Z"},
		{"eventAction": "expiration", "eventDate": "2025-08-13T04:00:00Z"},
		{"eventAction": "last changed", "eventDate": "2024-08-14 07:01:34"},
		{"eventAction": "last update of RDAP database", "eventDate": "2024-06-01T10:00:00Z"}
	]
}`

func newTestRDAPServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/rdap+json", r.Header.Get("Accept"))

		switch r.URL.Path {
		case "/domain/example.com":
			w.Header().Set("Content-Type", "application/rdap+json")
			w.Write([]byte(exampleRDAP))
		case "/domain/missing.com":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errorCode": 404, "title": "Not Found"}`))
		case "/domain/teapot.com":
			w.WriteHeader(http.StatusTeapot)
		default:
			w.Write([]byte(`not json`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(server *httptest.Server, m *metrics.Metrics) *RDAPClient {
	return NewRDAPClient(ClientConfig{
		FallbackURL: "https://rdap.invalid",
		Servers:     map[string]string{".COM": server.URL + "/"},
		Timeout:     2 * time.Second,
	}, m, zap.NewNop())
}

func TestRDAPClient_Lookup(t *testing.T) {
	server := newTestRDAPServer(t)
	m := metrics.New()
	client := newTestClient(server, m)

	record, err := client.Lookup(context.Background(), "Example.com.")
	require.NoError(t, err)

	assert.Equal(t, "example.com", record.DomainName)
	require.Len(t, record.CreationDate, 1)
	assert.True(t, record.CreationDate[0].Time.Equal(time.Date(1995, 8, 14, 4, 0, 0, 0, time.UTC)))
	require.Len(t, record.ExpirationDate, 1)
	assert.True(t, record.ExpirationDate[0].Time.Equal(time.Date(2025, 8, 13, 4, 0, 0, 0, time.UTC)))
	require.Len(t, record.UpdatedDate, 1)
	assert.True(t, record.UpdatedDate[0].Time.IsZero())
	assert.Equal(t, "2024-08-14 07:01:34", record.UpdatedDate[0].Text)

	expected := `
# HELP phishing_risk_whois_lookups_total Total number of registration lookups by result
# TYPE phishing_risk_whois_lookups_total counter
phishing_risk_whois_lookups_total{result="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "phishing_risk_whois_lookups_total"))
}

func TestRDAPClient_Lookup_Errors(t *testing.T) {
	server := newTestRDAPServer(t)
	client := newTestClient(server, nil)

	tests := []struct {
		name        string
		domain      string
		notFound    bool
		expectedErr string
	}{
		{"not found", "missing.com", true, "missing.com: domain not found in registry"},
		{"server error", "teapot.com", false, "RDAP lookup of teapot.com returned HTTP 418"},
		{"invalid body", "garbage.com", false, "invalid RDAP response for garbage.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := client.Lookup(context.Background(), tt.domain)

			require.Error(t, err)
			assert.Nil(t, record)
			assert.Contains(t, err.Error(), tt.expectedErr)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrNotFound))
		})
	}
}

func TestRDAPClient_Lookup_CancelledContext(t *testing.T) {
	server := newTestRDAPServer(t)
	client := newTestClient(server, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Lookup(ctx, "example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRDAPClient_Endpoint(t *testing.T) {
	client := NewRDAPClient(ClientConfig{
		Servers: map[string]string{"fr": "https://rdap.nic.fr"},
	}, nil, zap.NewNop())

	assert.Equal(t, "https://rdap.verisign.com/com/v1/domain/example.com", client.Endpoint("example.com"))
	assert.Equal(t, "https://rdap.nic.fr/domain/exemple.fr", client.Endpoint("exemple.fr"))
	assert.Equal(t, "https://rdap.org/domain/example.museum", client.Endpoint("example.museum"))
}
