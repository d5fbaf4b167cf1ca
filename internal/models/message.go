package models

// SyncState tags a locally synthesized message with how far it has progressed
// toward appearing in the authoritative folder listing.
type SyncState string

const (
	// SyncStateAccepted means the mail store accepted the send but the message
	// has not yet been observed in any folder listing.
	SyncStateAccepted SyncState = "accepted"
	// SyncStateSyncing means a refresh is underway that may surface the
	// authoritative copy.
	SyncStateSyncing SyncState = "syncing"
)

// LocalIDPrefix marks identifiers of messages synthesized locally at send time,
// so they can never collide with identifiers assigned by the mail store.
const LocalIDPrefix = "local-"

// Message is one row of a folder listing as served to the UI.
type Message struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"message_id,omitempty"`
	Subject        string    `json:"subject"`
	FromName       string    `json:"from_name,omitempty"`
	FromAddress    string    `json:"from_address"`
	Date           string    `json:"date"`
	SizeBytes      int64     `json:"size_bytes"`
	IsRead         bool      `json:"is_read"`
	IsFlagged      bool      `json:"is_flagged"`
	HasAttachments bool      `json:"has_attachments"`
	Preview        string    `json:"preview,omitempty"`
	IsLocalPending bool      `json:"is_local_pending,omitempty"`
	SyncState      SyncState `json:"sync_state,omitempty"`
}

// PendingMessage is a locally synthesized Message shown in a folder listing
// until its authoritative counterpart appears in a fetched batch.
type PendingMessage struct {
	Message

	// Folder is the folder listing the placeholder renders in.
	Folder string `json:"folder"`
	// SMTPMessageID is the server-assigned outbound message-id, used for exact
	// matching against fetched messages when available.
	SMTPMessageID string `json:"smtp_message_id,omitempty"`
	// CreatedAt is the placeholder creation time in epoch milliseconds.
	CreatedAt int64 `json:"created_at"`
}

// ComposeFields carries the user-entered fields of an outgoing message.
type ComposeFields struct {
	To             []string `json:"to"`
	Cc             []string `json:"cc,omitempty"`
	Bcc            []string `json:"bcc,omitempty"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	HasAttachments bool     `json:"has_attachments,omitempty"`
}

// SendResult reports what the mail store accepted for a single send call.
// A large message may be split into several parts, each with its own
// server-assigned message-id.
type SendResult struct {
	PrimaryMessageID string   `json:"primary_message_id"`
	MessageIDs       []string `json:"message_ids"`
	Chunked          bool     `json:"chunked"`
}
