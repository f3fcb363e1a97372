package mailsource

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emersion/go-mbox"
	"github.com/rotisserie/eris"
	"github.com/stoik/phishing-risk/internal/domain"
	"go.uber.org/zap"
)

// maxFileSize bounds a single .eml file
const maxFileSize = 50 << 20

// FileSource implements ports.EmailSource over files on disk
//
// The path may be a single .eml file, an mbox file, or a directory whose
// .eml and .mbox files are read in name order.
type FileSource struct {
	path   string
	logger *zap.Logger
}

// NewFileSource creates a file-backed email source
func NewFileSource(path string, logger *zap.Logger) *FileSource {
	return &FileSource{path: path, logger: logger}
}

// Name returns the path the source reads from
func (s *FileSource) Name() string {
	return s.path
}

// Messages reads every message of the source. Messages that fail to decode
// are logged and skipped.
func (s *FileSource) Messages(ctx context.Context) ([]domain.ParsedEmail, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to stat %s", s.path)
	}

	if !info.IsDir() {
		return s.readFile(ctx, s.path)
	}

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to list %s", s.path)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.Type().IsRegular() && (ext == ".eml" || ext == ".mbox") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var emails []domain.ParsedEmail
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return emails, err
		}
		batch, err := s.readFile(ctx, filepath.Join(s.path, name))
		if err != nil {
			s.logger.Warn("Skipping unreadable mail file", zap.String("file", name), zap.Error(err))
			continue
		}
		emails = append(emails, batch...)
	}
	return emails, nil
}

func (s *FileSource) readFile(ctx context.Context, path string) ([]domain.ParsedEmail, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open mail file")
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	isMbox, err := looksLikeMbox(reader)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}
	if isMbox {
		return s.readMbox(ctx, path, reader)
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxFileSize+1))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}
	if len(data) > maxFileSize {
		return nil, eris.Errorf("%s exceeds the maximum size of %d bytes", path, maxFileSize)
	}

	email, err := ParseMessage(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}
	return []domain.ParsedEmail{email}, nil
}

func (s *FileSource) readMbox(ctx context.Context, path string, r io.Reader) ([]domain.ParsedEmail, error) {
	reader := mbox.NewReader(r)

	var emails []domain.ParsedEmail
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return emails, err
		}

		msg, err := reader.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return emails, eris.Wrapf(err, "failed to read message %d of %s", i, path)
		}

		email, err := ParseMessage(msg)
		if err != nil {
			s.logger.Warn("Skipping undecodable message",
				zap.String("file", path),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		emails = append(emails, email)
	}

	s.logger.Debug("Read mbox", zap.String("file", path), zap.Int("messages", len(emails)))
	return emails, nil
}

// looksLikeMbox reports whether the stream starts with an mbox "From " separator line
func looksLikeMbox(r *bufio.Reader) (bool, error) {
	head, err := r.Peek(5)
	if err != nil && err != io.EOF {
		return false, err
	}
	return string(head) == "From ", nil
}
