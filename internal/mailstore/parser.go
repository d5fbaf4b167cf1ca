package mailstore

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	"mailview/backend/internal/models"
)

// previewRunes is the length of the list-view snippet derived from a body.
const previewRunes = 160

// MessageFromIMAP converts a fetched IMAP message to the listing model. The
// store-assigned identifier combines folder and UID so it stays stable across
// fetches of the same folder.
func MessageFromIMAP(imapMsg *imap.Message, folder string, section *imap.BodySectionName) models.Message {
	msg := models.Message{
		ID: fmt.Sprintf("%s:%d", folder, imapMsg.Uid),
	}

	for _, flag := range imapMsg.Flags {
		switch flag {
		case imap.SeenFlag:
			msg.IsRead = true
		case imap.FlaggedFlag:
			msg.IsFlagged = true
		}
	}

	if env := imapMsg.Envelope; env != nil {
		msg.MessageID = env.MessageId
		msg.Subject = env.Subject
		if len(env.From) > 0 && env.From[0] != nil {
			msg.FromName = env.From[0].PersonalName
			msg.FromAddress = formatAddress(env.From[0])
		}
		if !env.Date.IsZero() {
			msg.Date = env.Date.Format(time.RFC3339)
		}
	}

	msg.SizeBytes = int64(imapMsg.Size)
	msg.HasAttachments = hasAttachmentParts(imapMsg.BodyStructure)

	if section != nil {
		if bodyReader := imapMsg.GetBody(section); bodyReader != nil {
			msg.Preview = extractPreview(bodyReader)
		}
	}

	return msg
}

// extractPreview parses the raw body with enmime and reduces its text to a
// single-line snippet. Parse failures yield an empty preview; the listing
// still has its headers.
func extractPreview(bodyReader io.Reader) string {
	envelope, err := enmime.ReadEnvelope(bodyReader)
	if err != nil {
		return ""
	}
	return PreviewFromText(envelope.Text)
}

// PreviewFromText collapses whitespace runs to single spaces and truncates to
// the preview length.
func PreviewFromText(text string) string {
	var b strings.Builder
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}

	runes := []rune(b.String())
	if len(runes) > previewRunes {
		runes = runes[:previewRunes]
	}
	return string(runes)
}

// hasAttachmentParts walks a body structure looking for a part with an
// attachment disposition or a filename parameter.
func hasAttachmentParts(bs *imap.BodyStructure) bool {
	if bs == nil {
		return false
	}
	if strings.EqualFold(bs.Disposition, "attachment") {
		return true
	}
	if bs.DispositionParams != nil {
		if _, ok := bs.DispositionParams["filename"]; ok {
			return true
		}
	}
	for _, part := range bs.Parts {
		if hasAttachmentParts(part) {
			return true
		}
	}
	return false
}

// formatAddress renders an IMAP address as either "addr@host" or
// "Name <addr@host>".
func formatAddress(address *imap.Address) string {
	if address == nil || (address.MailboxName == "" && address.HostName == "") {
		return ""
	}
	if address.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", address.PersonalName, address.MailboxName, address.HostName)
	}
	return fmt.Sprintf("%s@%s", address.MailboxName, address.HostName)
}
