// Package contacts maintains the recipient directory: a ranked, size-capped
// set of addresses learned from both fetched and sent mail. Ranking is a
// best-effort convenience for compose auto-completion, not a correctness
// critical store, so merges are last-write-wins and persistence is
// fire-and-forget.
package contacts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailview/backend/internal/kv"
	"mailview/backend/internal/models"
)

const (
	// maxAliases caps the display-name aliases kept per address; the oldest is
	// evicted first.
	maxAliases = 6
	// aliasMaxRunes truncates each alias, with an ellipsis marker appended.
	aliasMaxRunes = 12
	// maxRecords caps the persisted record set, trimmed by ascending rank.
	maxRecords = 500
	// usageWeight is what one use is worth in recency terms when scoring.
	usageWeight = 3 * 24 * time.Hour
)

// Seen is one usage signal for an address, extracted from a fetched sender or
// a sent-to recipient.
type Seen struct {
	Address    string
	Name       string
	SeenAt     int64 // epoch ms; zero means "now"
	UsageDelta int
}

// Suggestion is a ranked directory entry shaped for UI consumption.
type Suggestion struct {
	Address      string `json:"address"`
	DisplayLabel string `json:"display_label"`
}

// Directory owns the in-memory record set and its persistence.
type Directory struct {
	mu      sync.Mutex
	store   kv.Store
	key     string
	records []models.ContactRecord
	logger  *zap.Logger
	now     func() time.Time
}

// NewDirectory creates a Directory persisting under the given KV key.
func NewDirectory(store kv.Store, key string, logger *zap.Logger) *Directory {
	return &Directory{
		store:  store,
		key:    key,
		logger: logger,
		now:    time.Now,
	}
}

// Load replaces the in-memory record set with the persisted one. A missing or
// malformed payload is treated as an empty directory, not an error.
func (d *Directory) Load(ctx context.Context) error {
	payload, ok, err := d.store.Get(ctx, d.key)
	if err != nil {
		return err
	}

	var records []models.ContactRecord
	if ok {
		records = decodeStore(payload)
	}

	d.mu.Lock()
	d.records = records
	d.mu.Unlock()
	return nil
}

// Observe merges usage signals into the directory and persists the result.
// The write is fire-and-forget: a storage failure is logged and the in-memory
// state stays authoritative until the next merge.
func (d *Directory) Observe(ctx context.Context, incoming []Seen) {
	if len(incoming) == 0 {
		return
	}

	d.mu.Lock()
	d.records = Merge(d.records, incoming, d.now())
	payload := encodeStore(d.records)
	d.mu.Unlock()

	go func() {
		if err := d.store.Set(context.WithoutCancel(ctx), d.key, payload); err != nil {
			d.logger.Warn("failed to persist contact directory", zap.Error(err))
		}
	}()
}

// Ranked returns the directory ordered by descending score, capped at the
// record limit.
func (d *Directory) Ranked() []Suggestion {
	d.mu.Lock()
	records := make([]models.ContactRecord, len(d.records))
	copy(records, d.records)
	d.mu.Unlock()

	return Rank(records)
}

// Merge folds usage signals into an existing record set and returns it sorted
// by descending score, trimmed to the record cap. Records are keyed by
// normalized address; an empty address carries no signal and is skipped.
func Merge(existing []models.ContactRecord, incoming []Seen, now time.Time) []models.ContactRecord {
	byAddress := make(map[string]int, len(existing))
	merged := make([]models.ContactRecord, len(existing))
	copy(merged, existing)
	for i, r := range merged {
		byAddress[r.Address] = i
	}

	nowMS := now.UnixMilli()
	for _, seen := range incoming {
		address := strings.ToLower(strings.TrimSpace(seen.Address))
		if address == "" {
			continue
		}

		idx, ok := byAddress[address]
		if !ok {
			merged = append(merged, models.ContactRecord{Address: address})
			idx = len(merged) - 1
			byAddress[address] = idx
		}
		record := &merged[idx]

		if alias := normalizeAlias(seen.Name); alias != "" {
			record.Aliases = appendAlias(record.Aliases, alias)
		}

		delta := seen.UsageDelta
		if delta < 0 {
			delta = 0
		}
		record.UsageCount = max(1, record.UsageCount+delta)

		seenAt := seen.SeenAt
		if seenAt == 0 {
			seenAt = nowMS
		}
		record.LastUsedAt = max(record.LastUsedAt, seenAt)
	}

	sortByRank(merged)
	if len(merged) > maxRecords {
		merged = merged[:maxRecords]
	}
	return merged
}

// Score combines recency and frequency into one scalar: each use is worth
// three days of recency.
func Score(r models.ContactRecord) int64 {
	return r.LastUsedAt + int64(r.UsageCount)*usageWeight.Milliseconds()
}

// Rank orders records by descending score and shapes them for the UI.
func Rank(records []models.ContactRecord) []Suggestion {
	sortByRank(records)
	if len(records) > maxRecords {
		records = records[:maxRecords]
	}

	suggestions := make([]Suggestion, 0, len(records))
	for _, r := range records {
		suggestions = append(suggestions, Suggestion{
			Address:      r.Address,
			DisplayLabel: displayLabel(r),
		})
	}
	return suggestions
}

func sortByRank(records []models.ContactRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		si, sj := Score(records[i]), Score(records[j])
		if si != sj {
			return si > sj
		}
		if records[i].LastUsedAt != records[j].LastUsedAt {
			return records[i].LastUsedAt > records[j].LastUsedAt
		}
		return records[i].UsageCount > records[j].UsageCount
	})
}

// displayLabel renders aliases joined by "|" followed by the bracketed
// address; an alias-less record is just the bracketed address.
func displayLabel(r models.ContactRecord) string {
	if len(r.Aliases) == 0 {
		return "<" + r.Address + ">"
	}
	return strings.Join(r.Aliases, "|") + "<" + r.Address + ">"
}

// normalizeAlias trims a display name and truncates it to the alias length,
// marking truncation with an ellipsis.
func normalizeAlias(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= aliasMaxRunes {
		return s
	}
	return string(runes[:aliasMaxRunes]) + "…"
}

// appendAlias moves an already-known alias to most-recent, appends new ones,
// and evicts the oldest past the cap.
func appendAlias(aliases []string, alias string) []string {
	out := aliases[:0:0]
	for _, a := range aliases {
		if a != alias {
			out = append(out, a)
		}
	}
	out = append(out, alias)
	if len(out) > maxAliases {
		out = out[len(out)-maxAliases:]
	}
	return out
}
