package mailsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSource_Messages(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name             string
		content          string
		expectedSubjects []string
		expectErr        bool
	}{
		{
			name:             "Single record",
			content:          `{"from":["ceo@c0mpany.com"],"subject":"Invoice","headers":{"Received":["a","b"]}}`,
			expectedSubjects: []string{"Invoice"},
		},
		{
			name:             "Array of records",
			content:          ` [{"subject":"one"},{"subject":"two"}]`,
			expectedSubjects: []string{"one", "two"},
		},
		{
			name:      "Malformed",
			content:   `{"subject":`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewJSONSource(writeFile(t, dir, "emails.json", tt.content))

			emails, err := source.Messages(context.Background())
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			subjects := make([]string, 0, len(emails))
			for _, email := range emails {
				subjects = append(subjects, email.Subject)
			}
			assert.Equal(t, tt.expectedSubjects, subjects)
		})
	}
}
