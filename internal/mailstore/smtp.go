package mailstore

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailview/backend/internal/models"
)

// defaultChunkBytes is the body size above which a send is split into
// sequential chunk messages.
const defaultChunkBytes = 64 * 1024

// SMTPSender implements Sender over SMTP with PLAIN auth. Bodies above the
// chunk size go out as numbered chunk messages, each with its own generated
// message-id, so the registry can track every piece independently.
type SMTPSender struct {
	addr        string
	username    string
	password    string
	fromAddress string
	fromName    string
	domain      string
	chunkBytes  int
	logger      *zap.Logger
}

// NewSMTPSender creates an SMTPSender. domain is used for generated
// message-ids; a non-positive chunkBytes selects the default chunk size.
func NewSMTPSender(addr, username, password, fromAddress, fromName, domain string, chunkBytes int, logger *zap.Logger) *SMTPSender {
	if chunkBytes <= 0 {
		chunkBytes = defaultChunkBytes
	}
	return &SMTPSender{
		addr:        addr,
		username:    username,
		password:    password,
		fromAddress: fromAddress,
		fromName:    fromName,
		domain:      domain,
		chunkBytes:  chunkBytes,
		logger:      logger,
	}
}

// FromAddress returns the configured sender address.
func (s *SMTPSender) FromAddress() string { return s.fromAddress }

// FromName returns the configured sender display name.
func (s *SMTPSender) FromName() string { return s.fromName }

// SendMessage submits the composed message, splitting oversized bodies into
// chunks. An error mid-way still reports the message-ids already accepted so
// their placeholders can be created.
func (s *SMTPSender) SendMessage(ctx context.Context, compose models.ComposeFields) (models.SendResult, error) {
	recipients := collectRecipients(compose)
	if len(recipients) == 0 {
		return models.SendResult{}, fmt.Errorf("no recipients")
	}

	bodies := splitBody(compose.Body, s.chunkBytes)
	total := len(bodies)

	var result models.SendResult
	result.Chunked = total > 1

	for i, body := range bodies {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		subject := compose.Subject
		if total > 1 {
			subject = fmt.Sprintf("%s (%d/%d)", compose.Subject, i+1, total)
		}

		messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain)
		raw := s.buildMessage(compose, subject, messageID, body)

		if err := s.submit(recipients, raw); err != nil {
			return result, fmt.Errorf("failed to send message %d of %d: %w", i+1, total, err)
		}

		if result.PrimaryMessageID == "" {
			result.PrimaryMessageID = messageID
		}
		result.MessageIDs = append(result.MessageIDs, messageID)
	}

	s.logger.Info("message sent",
		zap.Int("chunks", total),
		zap.Int("recipients", len(recipients)))
	return result, nil
}

// submit delivers one raw message over a fresh SMTP connection.
func (s *SMTPSender) submit(recipients []string, raw string) error {
	c, err := smtp.Dial(s.addr)
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(nil); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if s.username != "" {
		auth := sasl.NewPlainClient("", s.username, s.password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := c.SendMail(s.fromAddress, recipients, strings.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to submit message: %w", err)
	}

	return c.Quit()
}

// buildMessage renders the RFC 5322 message for one chunk.
func (s *SMTPSender) buildMessage(compose models.ComposeFields, subject, messageID, body string) string {
	var b strings.Builder

	from := s.fromAddress
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.fromName), s.fromAddress)
	}
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(compose.To, ", "))
	if len(compose.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(compose.Cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// collectRecipients flattens To, Cc and Bcc into the SMTP envelope recipient
// list, dropping blanks and duplicates.
func collectRecipients(compose models.ComposeFields) []string {
	seen := make(map[string]struct{})
	var recipients []string
	for _, group := range [][]string{compose.To, compose.Cc, compose.Bcc} {
		for _, addr := range group {
			trimmed := strings.TrimSpace(addr)
			if trimmed == "" {
				continue
			}
			key := strings.ToLower(trimmed)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			recipients = append(recipients, trimmed)
		}
	}
	return recipients
}

// splitBody cuts a body into chunks of at most limit bytes, never splitting
// inside a rune.
func splitBody(body string, limit int) []string {
	if len(body) <= limit {
		return []string{body}
	}

	var chunks []string
	var b strings.Builder
	for _, r := range body {
		if b.Len()+len(string(r)) > limit {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
