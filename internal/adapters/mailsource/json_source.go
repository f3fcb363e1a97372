package mailsource

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/stoik/phishing-risk/internal/domain"
)

// JSONSource implements ports.EmailSource over a JSON file holding one parsed
// email object or an array of them
type JSONSource struct {
	path string
}

// NewJSONSource creates a JSON-backed email source
func NewJSONSource(path string) *JSONSource {
	return &JSONSource{path: path}
}

// Name returns the path the source reads from
func (s *JSONSource) Name() string {
	return s.path
}

// Messages decodes the records of the file
func (s *JSONSource) Messages(_ context.Context) ([]domain.ParsedEmail, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, eris.Wrap(err, "failed to read JSON source")
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var emails []domain.ParsedEmail
		if err := json.Unmarshal(data, &emails); err != nil {
			return nil, eris.Wrapf(err, "invalid email list in %s", s.path)
		}
		return emails, nil
	}

	var email domain.ParsedEmail
	if err := json.Unmarshal(data, &email); err != nil {
		return nil, eris.Wrapf(err, "invalid email record in %s", s.path)
	}
	return []domain.ParsedEmail{email}, nil
}
