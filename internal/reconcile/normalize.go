package reconcile

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// noSubjectKeys holds content keys of "no subject" placeholders. A subject that
// folds to one of these carries no matching signal.
var noSubjectKeys = map[string]struct{}{
	"nosubject":  {},
	"untitled":   {},
	"无主题":        {},
	"無題":         {},
	"件名なし":       {},
	"keinbetreff": {},
	"sansobjet":   {},
	"sinasunto":   {},
}

// MessageIDKey folds a Message-ID header value into a comparable key:
// trimmed, angle brackets stripped, lower-cased. Empty input yields "".
func MessageIDKey(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	return strings.ToLower(strings.TrimSpace(s))
}

// ContentKey folds a subject or preview string into a comparable key. The
// input is NFKC-normalized, lower-cased, stripped of zero-width characters,
// and reduced to letters and digits only (whitespace and punctuation carry no
// signal). A residual that is empty or a known "no subject" placeholder yields
// "" and must be treated as carrying no signal.
func ContentKey(raw string) string {
	s := norm.NFKC.String(strings.TrimSpace(raw))
	s = strings.ToLower(s)

	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	key := b.String()
	if _, placeholder := noSubjectKeys[key]; placeholder {
		return ""
	}
	return key
}

// MailboxAddress extracts the bare address from a raw sender field. A field of
// the form `Name <addr>` yields the lower-cased bracketed part; anything else
// is returned trimmed and lower-cased as a whole.
func MailboxAddress(raw string) string {
	s := strings.TrimSpace(raw)
	if open := strings.LastIndex(s, "<"); open >= 0 {
		if close := strings.Index(s[open:], ">"); close > 0 {
			return strings.ToLower(strings.TrimSpace(s[open+1 : open+close]))
		}
	}
	return strings.ToLower(s)
}

// dateLayouts are the formats the mail store has been observed to emit.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-ish date string to epoch milliseconds. An
// unparsable date reports ok=false rather than zero, so callers can degrade to
// content-only matching instead of comparing against 1970.
func ParseTimestamp(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}
