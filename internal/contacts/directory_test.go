package contacts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailview/backend/internal/kv"
	"mailview/backend/internal/models"
)

var mergeNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMergeCreatesAndUpdatesRecords(t *testing.T) {
	records := Merge(nil, []Seen{
		{Address: "  Ann@Example.COM ", Name: "Ann", UsageDelta: 1},
	}, mergeNow)

	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "ann@example.com", r.Address, "address is trimmed and lower-cased")
	assert.Equal(t, []string{"Ann"}, r.Aliases)
	assert.Equal(t, 1, r.UsageCount)
	assert.Equal(t, mergeNow.UnixMilli(), r.LastUsedAt)
}

func TestMergeSkipsEmptyAddresses(t *testing.T) {
	records := Merge(nil, []Seen{{Address: "   "}, {Address: ""}}, mergeNow)
	assert.Empty(t, records)
}

func TestMergeIsIdempotentForZeroDelta(t *testing.T) {
	seen := []Seen{{Address: "ann@example.com", SeenAt: mergeNow.UnixMilli()}}

	once := Merge(nil, seen, mergeNow)
	twice := Merge(once, seen, mergeNow)

	require.Len(t, twice, 1)
	assert.Equal(t, once[0].UsageCount, twice[0].UsageCount)
	assert.Equal(t, once[0].LastUsedAt, twice[0].LastUsedAt)
}

func TestMergeAliasHandling(t *testing.T) {
	t.Run("duplicate alias moves to most recent", func(t *testing.T) {
		records := Merge(nil, []Seen{
			{Address: "a@x.com", Name: "Ann"},
			{Address: "a@x.com", Name: "Annie"},
			{Address: "a@x.com", Name: "Ann"},
		}, mergeNow)

		require.Len(t, records, 1)
		assert.Equal(t, []string{"Annie", "Ann"}, records[0].Aliases)
	})

	t.Run("alias list caps at six, oldest evicted", func(t *testing.T) {
		var incoming []Seen
		for _, name := range []string{"n1", "n2", "n3", "n4", "n5", "n6", "n7"} {
			incoming = append(incoming, Seen{Address: "a@x.com", Name: name})
		}
		records := Merge(nil, incoming, mergeNow)

		require.Len(t, records, 1)
		assert.Equal(t, []string{"n2", "n3", "n4", "n5", "n6", "n7"}, records[0].Aliases)
	})

	t.Run("long alias truncates with ellipsis", func(t *testing.T) {
		records := Merge(nil, []Seen{
			{Address: "a@x.com", Name: "Dr. Penelope Featherington"},
		}, mergeNow)

		require.Len(t, records, 1)
		require.Len(t, records[0].Aliases, 1)
		alias := records[0].Aliases[0]
		assert.Equal(t, "Dr. Penelope…", alias)
	})
}

func TestMergeUsageAndRecency(t *testing.T) {
	earlier := mergeNow.Add(-24 * time.Hour).UnixMilli()

	records := Merge(nil, []Seen{
		{Address: "a@x.com", SeenAt: mergeNow.UnixMilli(), UsageDelta: 1},
	}, mergeNow)
	records = Merge(records, []Seen{
		{Address: "a@x.com", SeenAt: earlier, UsageDelta: 1},
	}, mergeNow)

	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].UsageCount)
	assert.Equal(t, mergeNow.UnixMilli(), records[0].LastUsedAt, "an older signal never rolls recency back")

	records = Merge(records, []Seen{
		{Address: "a@x.com", UsageDelta: -5},
	}, mergeNow)
	assert.Equal(t, 2, records[0].UsageCount, "negative deltas are clamped to zero")
}

func TestScoreOrdering(t *testing.T) {
	// A was used once, just now. B was used twice, a day ago. Each use is
	// worth three days, so B's extra use outweighs one day of recency.
	a := models.ContactRecord{Address: "a@x.com", UsageCount: 1, LastUsedAt: mergeNow.UnixMilli()}
	b := models.ContactRecord{Address: "b@x.com", UsageCount: 2, LastUsedAt: mergeNow.Add(-24 * time.Hour).UnixMilli()}

	suggestions := Rank([]models.ContactRecord{a, b})
	require.Len(t, suggestions, 2)
	assert.Equal(t, "b@x.com", suggestions[0].Address)
}

func TestRankTieBreaks(t *testing.T) {
	// Equal scores: higher last_used_at wins.
	weight := usageWeight.Milliseconds()
	a := models.ContactRecord{Address: "a@x.com", UsageCount: 2, LastUsedAt: mergeNow.UnixMilli() - weight}
	b := models.ContactRecord{Address: "b@x.com", UsageCount: 1, LastUsedAt: mergeNow.UnixMilli()}
	require.Equal(t, Score(a), Score(b))

	suggestions := Rank([]models.ContactRecord{a, b})
	assert.Equal(t, "b@x.com", suggestions[0].Address)
}

func TestDisplayLabel(t *testing.T) {
	t.Run("without aliases", func(t *testing.T) {
		suggestions := Rank([]models.ContactRecord{{Address: "a@x.com", UsageCount: 1}})
		require.Len(t, suggestions, 1)
		assert.Equal(t, "<a@x.com>", suggestions[0].DisplayLabel)
	})

	t.Run("aliases joined before the address", func(t *testing.T) {
		suggestions := Rank([]models.ContactRecord{{
			Address:    "a@x.com",
			Aliases:    []string{"Ann", "Annie"},
			UsageCount: 1,
		}})
		require.Len(t, suggestions, 1)
		assert.Equal(t, "Ann|Annie<a@x.com>", suggestions[0].DisplayLabel)
	})
}

func TestMergeCapsRecordSet(t *testing.T) {
	var incoming []Seen
	for i := 0; i < maxRecords+50; i++ {
		incoming = append(incoming, Seen{
			Address: addrN(i),
			SeenAt:  mergeNow.UnixMilli() - int64(i),
		})
	}

	records := Merge(nil, incoming, mergeNow)
	assert.Len(t, records, maxRecords)
	// Trimming is by ascending rank: the most recently seen entries survive.
	assert.Equal(t, addrN(0), records[0].Address)
}

func addrN(i int) string {
	return "user" + string(rune('a'+i%26)) + "-" + itoa(i) + "@example.com"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func TestDirectoryObserveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	d := NewDirectory(store, "contacts", zap.NewNop())
	require.NoError(t, d.Load(ctx))

	d.Observe(ctx, []Seen{
		{Address: "ann@example.com", Name: "Ann", UsageDelta: 1, SeenAt: mergeNow.UnixMilli()},
	})

	// Persistence is fire-and-forget; wait for the write to land.
	require.Eventually(t, func() bool {
		_, ok, err := store.Get(ctx, "contacts")
		return ok && err == nil
	}, time.Second, 10*time.Millisecond)

	fresh := NewDirectory(store, "contacts", zap.NewNop())
	require.NoError(t, fresh.Load(ctx))

	suggestions := fresh.Ranked()
	require.Len(t, suggestions, 1)
	assert.Equal(t, "ann@example.com", suggestions[0].Address)
	assert.Equal(t, "Ann<ann@example.com>", suggestions[0].DisplayLabel)
}
