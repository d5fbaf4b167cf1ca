package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailview/backend/internal/models"
)

func newTestRegistry(now time.Time) *Registry {
	r := NewRegistry(0)
	r.now = func() time.Time { return now }
	return r
}

func TestCreatePlaceholders(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	compose := models.ComposeFields{
		To:      []string{"team@x.com"},
		Subject: "Weekly report",
		Body:    "Numbers attached below.",
	}

	t.Run("single send yields one placeholder", func(t *testing.T) {
		r := newTestRegistry(now)
		created := r.CreatePlaceholders("Sent", models.SendResult{
			PrimaryMessageID: "<m1@host>",
			MessageIDs:       []string{"<m1@host>"},
		}, compose, "me@x.com", "Me")

		require.Len(t, created, 1)
		p := created[0]
		assert.True(t, strings.HasPrefix(p.ID, models.LocalIDPrefix))
		assert.True(t, p.IsLocalPending)
		assert.Equal(t, models.SyncStateAccepted, p.SyncState)
		assert.Equal(t, "<m1@host>", p.SMTPMessageID)
		assert.Equal(t, "Weekly report", p.Subject)
		assert.Equal(t, now.UnixMilli(), p.CreatedAt)
		assert.Equal(t, 1, r.PendingCount("Sent"))
	})

	t.Run("chunked send yields one placeholder per part with indexed subjects", func(t *testing.T) {
		r := newTestRegistry(now)
		created := r.CreatePlaceholders("Sent", models.SendResult{
			PrimaryMessageID: "<m1@host>",
			MessageIDs:       []string{"<m1@host>", "<m2@host>", "<m3@host>"},
			Chunked:          true,
		}, compose, "me@x.com", "Me")

		require.Len(t, created, 3)
		assert.Equal(t, "Weekly report (1/3)", created[0].Subject)
		assert.Equal(t, "Weekly report (3/3)", created[2].Subject)
		assert.Equal(t, "<m2@host>", created[1].SMTPMessageID)
	})

	t.Run("newest placeholders sit first", func(t *testing.T) {
		r := newTestRegistry(now)
		r.CreatePlaceholders("Sent", models.SendResult{PrimaryMessageID: "<old@host>"}, compose, "me@x.com", "")
		r.CreatePlaceholders("Sent", models.SendResult{PrimaryMessageID: "<new@host>"}, compose, "me@x.com", "")

		view := r.MergedView("Sent", nil)
		require.Len(t, view, 2)
		assert.Equal(t, "<new@host>", view[0].MessageID)
	})
}

func TestReconcileRetiresMatchedPlaceholders(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(now)

	r.CreatePlaceholders("Sent", models.SendResult{PrimaryMessageID: "<m1@host>"}, models.ComposeFields{
		Subject: "Report",
		Body:    "Hello team",
	}, "me@x.com", "")

	res := r.Reconcile("Sent", []models.Message{{
		ID:        "101",
		MessageID: "<m1@host>",
		Subject:   "Report",
		Date:      now.Format(time.RFC3339),
	}})

	assert.Equal(t, 1, res.Matched)
	assert.Empty(t, res.Kept)
	assert.Equal(t, 0, r.PendingCount("Sent"))
}

func TestReconcileGreedyUsesEachRemoteOnce(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(now)

	// Two placeholders that would both match the single remote via its
	// message-id. The first processed one consumes it; the second survives.
	first := r.CreatePlaceholders("Sent", models.SendResult{PrimaryMessageID: "<dup@host>"}, models.ComposeFields{Subject: "A"}, "me@x.com", "")
	second := r.CreatePlaceholders("Sent", models.SendResult{PrimaryMessageID: "<dup@host>"}, models.ComposeFields{Subject: "B"}, "me@x.com", "")
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	res := r.Reconcile("Sent", []models.Message{{
		ID:        "7",
		MessageID: "<dup@host>",
		Subject:   "whatever",
		Date:      now.Format(time.RFC3339),
	}})

	assert.Equal(t, 1, res.Matched)
	require.Len(t, res.Kept, 1)
	assert.Equal(t, models.SyncStateSyncing, res.Kept[0].SyncState)
}

func TestReconcileKeepsUnmatchedPlaceholders(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(now)

	r.CreatePlaceholders("Sent", models.SendResult{PrimaryMessageID: "<m1@host>"}, models.ComposeFields{Subject: "Report"}, "me@x.com", "")

	res := r.Reconcile("Sent", []models.Message{{
		ID:      "55",
		Subject: "unrelated mail",
		Date:    now.Format(time.RFC3339),
	}})

	assert.Zero(t, res.Matched)
	assert.Len(t, res.Kept, 1)
	assert.Equal(t, 1, r.PendingCount("Sent"))
}

func TestReconcileExpiresStalePlaceholders(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(start)

	r.CreatePlaceholders("Sent", models.SendResult{PrimaryMessageID: "<m1@host>"}, models.ComposeFields{Subject: "Report"}, "me@x.com", "")

	// Jump past the TTL; the placeholder drops even with an empty batch.
	r.now = func() time.Time { return start.Add(DefaultPendingTTL + time.Hour) }
	res := r.Reconcile("Sent", nil)

	assert.Equal(t, 1, res.Expired)
	assert.Empty(t, res.Kept)
	assert.Equal(t, 0, r.PendingCount("Sent"))
}

func TestMergedViewPlacesPlaceholdersAboveRemote(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(now)

	r.CreatePlaceholders("Sent", models.SendResult{PrimaryMessageID: "<m1@host>"}, models.ComposeFields{Subject: "Pending one"}, "me@x.com", "")

	remote := []models.Message{
		{ID: "2", Subject: "Confirmed mail", Date: now.Add(-time.Hour).Format(time.RFC3339)},
	}
	view := r.MergedView("Sent", remote)

	require.Len(t, view, 2)
	assert.True(t, view[0].IsLocalPending)
	assert.Equal(t, "Confirmed mail", view[1].Subject)
}
