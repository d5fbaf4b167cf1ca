package reconcile

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailview/backend/internal/models"
)

// DefaultPendingTTL bounds how long an unmatched placeholder may survive. A
// message that lands in a differently-named folder never produces a matching
// remote, and without a bound its placeholder would pin a ghost row forever.
const DefaultPendingTTL = 48 * time.Hour

// ReconcileResult summarizes one reconcile pass over a folder.
type ReconcileResult struct {
	Kept    []models.PendingMessage
	Matched int
	Expired int
}

// Registry owns the per-folder lists of locally synthesized placeholders and
// produces the merged, deduplicated view the UI renders. All mutation of the
// pending lists happens here: CreatePlaceholders grows them, Reconcile shrinks
// them, and nothing else touches them.
type Registry struct {
	mu      sync.Mutex
	pending map[string][]models.PendingMessage
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry creates a Registry with the given placeholder TTL. A zero ttl
// selects DefaultPendingTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &Registry{
		pending: make(map[string][]models.PendingMessage),
		ttl:     ttl,
		now:     time.Now,
	}
}

// CreatePlaceholders synthesizes pending messages for a completed send and
// prepends them to the folder's pending list, newest first. A chunked send
// yields one placeholder per server message-id, with the subject suffixed by
// the part index the way the sender suffixes the outgoing parts.
func (r *Registry) CreatePlaceholders(folder string, result models.SendResult, compose models.ComposeFields, from string, fromName string) []models.PendingMessage {
	ids := result.MessageIDs
	if len(ids) == 0 {
		ids = []string{result.PrimaryMessageID}
	}

	now := r.now()
	created := make([]models.PendingMessage, 0, len(ids))
	for i, serverID := range ids {
		subject := compose.Subject
		if result.Chunked && len(ids) > 1 {
			subject = fmt.Sprintf("%s (%d/%d)", compose.Subject, i+1, len(ids))
		}

		created = append(created, models.PendingMessage{
			Message: models.Message{
				ID:             models.LocalIDPrefix + uuid.NewString(),
				MessageID:      serverID,
				Subject:        subject,
				FromName:       fromName,
				FromAddress:    from,
				Date:           now.UTC().Format(time.RFC3339),
				SizeBytes:      int64(len(compose.Body)),
				IsRead:         true,
				HasAttachments: compose.HasAttachments,
				Preview:        previewOf(compose.Body),
				IsLocalPending: true,
				SyncState:      models.SyncStateAccepted,
			},
			Folder:        folder,
			SMTPMessageID: serverID,
			CreatedAt:     now.UnixMilli(),
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[folder] = append(created, r.pending[folder]...)
	return created
}

// Reconcile drops every stored placeholder whose counterpart appears in the
// fetched batch and returns the survivors. The pass is greedy: placeholders
// are visited in order, each consuming the first remote message that satisfies
// the matcher, so a remote message retires at most one placeholder. Expired
// placeholders are dropped regardless of the batch.
func (r *Registry) Reconcile(folder string, remote []models.Message) ReconcileResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	pool := make([]models.Message, len(remote))
	copy(pool, remote)

	var res ReconcileResult
	kept := r.pending[folder][:0:0]
	for _, p := range r.pending[folder] {
		if now.UnixMilli()-p.CreatedAt > r.ttl.Milliseconds() {
			res.Expired++
			continue
		}

		matched := false
		for i, candidate := range pool {
			if Matches(p, candidate, now) {
				// Consume the candidate so it cannot retire a second placeholder.
				pool = append(pool[:i], pool[i+1:]...)
				matched = true
				break
			}
		}
		if matched {
			res.Matched++
			continue
		}

		p.SyncState = models.SyncStateSyncing
		kept = append(kept, p)
	}

	if len(kept) == 0 {
		delete(r.pending, folder)
	} else {
		r.pending[folder] = kept
	}
	res.Kept = kept
	return res
}

// MergedView returns the folder listing to render: surviving placeholders
// first, then the fetched batch, so placeholders sit above confirmed mail.
func (r *Registry) MergedView(folder string, remote []models.Message) []models.Message {
	kept := r.Reconcile(folder, remote).Kept

	merged := make([]models.Message, 0, len(kept)+len(remote))
	for _, p := range kept {
		merged = append(merged, p.Message)
	}
	return append(merged, remote...)
}

// PendingCount reports how many placeholders a folder currently holds.
func (r *Registry) PendingCount(folder string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[folder])
}

// previewLimit caps the synthesized preview at roughly what the mail store
// reports for fetched messages.
const previewLimit = 160

func previewOf(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLimit {
		return body
	}
	return string(runes[:previewLimit])
}
