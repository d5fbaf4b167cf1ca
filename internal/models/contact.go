package models

// ContactRecord is one entry of the recipient directory. The address is the
// unique key and is always stored trimmed and lower-cased.
type ContactRecord struct {
	Address    string   `json:"address"`
	Aliases    []string `json:"aliases,omitempty"`
	UsageCount int      `json:"usage_count"`
	LastUsedAt int64    `json:"last_used_at"`
}
