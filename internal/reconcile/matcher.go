package reconcile

import (
	"time"

	"mailview/backend/internal/models"
)

const (
	// freshnessGuard protects a just-created placeholder from being retired by
	// an unrelated older message before the scheduler's first real refresh.
	freshnessGuard = 12 * time.Second
	// remoteOlderSlack is how much older than the placeholder a remote message
	// may be and still count as its echo.
	remoteOlderSlack = 2 * time.Minute
	// contentWindow is the time window for subject- or preview-keyed matches.
	contentWindow = 2 * time.Hour
	// strictWindow is the time window for the empty-signal fallback and for
	// address-gated synced comparisons.
	strictWindow = 24 * time.Hour
	// syncedTightWindow is the window inside which two already-synced messages
	// with any content signal are considered the same mail.
	syncedTightWindow = 30 * time.Minute
)

// Matches reports whether a local message and a remote fetched message denote
// the same underlying mail. It is a pure predicate: it never mutates its
// arguments and is total over every input, including unparsable dates.
//
// now feeds the freshness guard for local pending messages; already-synced
// locals (IsLocalPending false) skip the guard and the older-remote check.
func Matches(local models.PendingMessage, remote models.Message, now time.Time) bool {
	if localID, remoteID := MessageIDKey(local.SMTPMessageID), MessageIDKey(remote.MessageID); localID != "" && localID == remoteID {
		return true
	}

	localSubject, remoteSubject := ContentKey(local.Subject), ContentKey(remote.Subject)
	subjectMatch := localSubject != "" && localSubject == remoteSubject
	localPreview, remotePreview := ContentKey(local.Preview), ContentKey(remote.Preview)
	previewMatch := localPreview != "" && localPreview == remotePreview

	localTS, localOK := ParseTimestamp(local.Date)
	remoteTS, remoteOK := ParseTimestamp(remote.Date)
	if !localOK || !remoteOK {
		// No usable timeline: degrade to content-only matching.
		return subjectMatch || previewMatch
	}

	if !local.IsLocalPending {
		return matchesSynced(local, remote, subjectMatch, previewMatch, localTS, remoteTS)
	}

	if now.UnixMilli()-local.CreatedAt < freshnessGuard.Milliseconds() {
		return false
	}

	if remoteTS < localTS-remoteOlderSlack.Milliseconds() {
		return false
	}

	delta := absMillis(localTS - remoteTS)
	switch {
	case subjectMatch:
		return delta <= contentWindow.Milliseconds()
	case previewMatch:
		localAddr, remoteAddr := MailboxAddress(local.FromAddress), MailboxAddress(remote.FromAddress)
		if localAddr != "" && remoteAddr != "" && localAddr != remoteAddr {
			return false
		}
		return delta <= contentWindow.Milliseconds()
	default:
		// No content signal at all: require agreeing senders and attachment
		// presence before trusting the wide time window.
		localAddr, remoteAddr := MailboxAddress(local.FromAddress), MailboxAddress(remote.FromAddress)
		if localAddr == "" || remoteAddr == "" || localAddr != remoteAddr {
			return false
		}
		if local.HasAttachments != remote.HasAttachments {
			return false
		}
		return delta <= strictWindow.Milliseconds()
	}
}

// matchesSynced compares two messages that have both already been indexed by
// the mail store, so the pending-side guards do not apply.
func matchesSynced(local models.PendingMessage, remote models.Message, subjectMatch, previewMatch bool, localTS, remoteTS int64) bool {
	if !subjectMatch && !previewMatch {
		return false
	}

	delta := absMillis(localTS - remoteTS)
	if delta <= syncedTightWindow.Milliseconds() {
		return true
	}
	if delta <= strictWindow.Milliseconds() {
		localAddr, remoteAddr := MailboxAddress(local.FromAddress), MailboxAddress(remote.FromAddress)
		return localAddr != "" && localAddr == remoteAddr
	}
	return false
}

func absMillis(d int64) int64 {
	if d < 0 {
		return -d
	}
	return d
}
