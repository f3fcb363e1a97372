package mailsource

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/rotisserie/eris"
	"github.com/stoik/phishing-risk/internal/domain"
)

const (
	// maxPartBytes bounds how much of one MIME part is read into memory
	maxPartBytes = 10 << 20

	// previewRunes is the length of the text preview kept for text attachments
	previewRunes = 500
)

// ParseMessage decodes one RFC 5322 message into the record analyzed by the engine
//
// Bodies are transfer-decoded and converted to UTF-8. Every inline text/plain
// part is appended to BodyText and every inline text/html part to BodyHTML.
func ParseMessage(r io.Reader) (domain.ParsedEmail, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return domain.ParsedEmail{}, eris.Wrap(err, "failed to read message")
	}
	defer mr.Close()

	email := domain.ParsedEmail{
		From:    addresses(mr.Header, "From"),
		To:      addresses(mr.Header, "To"),
		Cc:      addresses(mr.Header, "Cc"),
		Bcc:     addresses(mr.Header, "Bcc"),
		ReplyTo: addresses(mr.Header, "Reply-To"),
		Date:    mr.Header.Get("Date"),
		Headers: rawHeaders(mr.Header),
	}
	if subject, err := mr.Header.Subject(); err == nil {
		email.Subject = subject
	} else {
		email.Subject = mr.Header.Get("Subject")
	}

	var text, html []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return email, eris.Wrap(err, "failed to read message part")
		}
		if part == nil {
			continue
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			if contentType != "text/plain" && contentType != "text/html" && contentType != "" {
				continue
			}
			body, err := io.ReadAll(io.LimitReader(part.Body, maxPartBytes))
			if err != nil {
				return email, eris.Wrapf(err, "failed to read %s part", contentType)
			}
			if contentType == "text/html" {
				html = append(html, string(body))
			} else {
				text = append(text, string(body))
			}

		case *mail.AttachmentHeader:
			attachment, err := readAttachment(h, part.Body)
			if err != nil {
				return email, err
			}
			email.Attachments = append(email.Attachments, attachment)
		}
	}

	email.BodyText = strings.Join(text, "\n")
	email.BodyHTML = strings.Join(html, "\n")
	return email, nil
}

func readAttachment(h *mail.AttachmentHeader, body io.Reader) (domain.Attachment, error) {
	filename, err := h.Filename()
	if err != nil {
		filename = ""
	}
	attachment := domain.Attachment{
		Filename:  filename,
		Extension: strings.ToLower(filepath.Ext(filename)),
	}

	contentType, _, _ := h.ContentType()
	if !strings.HasPrefix(contentType, "text/") {
		return attachment, nil
	}

	content, err := io.ReadAll(io.LimitReader(body, maxPartBytes))
	if err != nil {
		return attachment, eris.Wrapf(err, "failed to read attachment %q", filename)
	}
	attachment.TextPreview = preview(string(content), previewRunes)
	return attachment, nil
}

func preview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// addresses formats an address list header as "Name <addr>" or "addr".
// Unparseable lists are kept raw so the domain can still be extracted.
func addresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		if raw := strings.TrimSpace(h.Get(key)); raw != "" {
			return []string{raw}
		}
		return nil
	}

	out := make([]string, 0, len(list))
	for _, addr := range list {
		if addr.Name == "" {
			out = append(out, addr.Address)
			continue
		}
		out = append(out, addr.Name+" <"+addr.Address+">")
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// rawHeaders copies every header field, decoding RFC 2047 words when possible
func rawHeaders(h mail.Header) map[string][]string {
	headers := make(map[string][]string)
	fields := h.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		headers[fields.Key()] = append(headers[fields.Key()], value)
	}
	return headers
}
