package session

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailview/backend/internal/contacts"
	"mailview/backend/internal/kv"
	"mailview/backend/internal/models"
	"mailview/backend/internal/poll"
	"mailview/backend/internal/reconcile"
)

// stubClock implements poll.Clock and fires timers only when told to.
type stubClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*stubTimer
}

type stubTimer struct {
	clock   *stubClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) AfterFunc(d time.Duration, f func()) poll.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &stubTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *stubTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fireNext fires the earliest pending timer and returns its delay.
func (c *stubClock) fireNext(t *testing.T) time.Duration {
	t.Helper()

	c.mu.Lock()
	var pending []*stubTimer
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			pending = append(pending, timer)
		}
	}
	require.NotEmpty(t, pending, "no pending timer to fire")
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].delay < pending[j].delay })
	next := pending[0]
	next.fired = true
	c.mu.Unlock()

	next.fn()
	return next.delay
}

func (c *stubClock) pendingDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var delays []time.Duration
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			delays = append(delays, timer.delay)
		}
	}
	sort.Slice(delays, func(i, j int) bool { return delays[i] < delays[j] })
	return delays
}

// stubFetcher returns a fixed batch per folder and counts calls.
type stubFetcher struct {
	mu      sync.Mutex
	batches map[string][]models.Message
	calls   map[string]int
	err     error
}

func (f *stubFetcher) FetchFolderMessages(_ context.Context, folder string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[folder]++
	if f.err != nil {
		return nil, f.err
	}
	return f.batches[folder], nil
}

func (f *stubFetcher) callCount(folder string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[folder]
}

// stubSender returns a canned result.
type stubSender struct {
	result models.SendResult
	err    error
	sent   []models.ComposeFields
}

func (s *stubSender) SendMessage(_ context.Context, compose models.ComposeFields) (models.SendResult, error) {
	s.sent = append(s.sent, compose)
	return s.result, s.err
}

func newTestSession(t *testing.T, fetcher *stubFetcher, sender *stubSender) (*Session, *stubClock) {
	t.Helper()
	clock := newStubClock()
	directory := contacts.NewDirectory(kv.NewMemoryStore(), "contacts", zap.NewNop())
	s := NewSession(context.Background(), Config{
		Fetcher:     fetcher,
		Sender:      sender,
		Registry:    reconcile.NewRegistry(0),
		Directory:   directory,
		Signals:     poll.NewEnvSignals(),
		Clock:       clock,
		Logger:      zap.NewNop(),
		FromAddress: "me@example.com",
		FromName:    "Me",
	})
	t.Cleanup(s.Close)
	return s, clock
}

func TestOpenFolderSchedulesSettleRefresh(t *testing.T) {
	fetcher := &stubFetcher{batches: map[string][]models.Message{
		"INBOX": {{ID: "INBOX:1", Subject: "hi", FromAddress: "Ada <ada@example.com>", FromName: "Ada", Date: "2024-06-01T11:00:00Z"}},
	}}
	s, clock := newTestSession(t, fetcher, &stubSender{})

	s.OpenFolder("INBOX")
	assert.True(t, s.IsOpen("INBOX"))
	assert.Equal(t, 0, fetcher.callCount("INBOX"))

	// The settle timer is the only pending one; firing it runs the fetch.
	require.Equal(t, 4*time.Second, clock.fireNext(t))
	assert.Equal(t, 1, fetcher.callCount("INBOX"))

	view := s.MergedView("INBOX")
	require.Len(t, view, 1)
	assert.Equal(t, "INBOX:1", view[0].ID)
}

func TestOpenFolderIsIdempotent(t *testing.T) {
	s, clock := newTestSession(t, &stubFetcher{}, &stubSender{})

	s.OpenFolder("INBOX")
	s.OpenFolder("INBOX")
	assert.Len(t, clock.pendingDelays(), 1, "a second open must not arm a second loop")
}

func TestCloseFolderStopsPolling(t *testing.T) {
	fetcher := &stubFetcher{}
	s, clock := newTestSession(t, fetcher, &stubSender{})

	s.OpenFolder("INBOX")
	s.CloseFolder("INBOX")
	assert.False(t, s.IsOpen("INBOX"))
	assert.Empty(t, clock.pendingDelays(), "cancel stops the settle timer")
}

func TestRefreshFeedsSenderContacts(t *testing.T) {
	fetcher := &stubFetcher{batches: map[string][]models.Message{
		"INBOX": {{ID: "INBOX:1", FromAddress: "Ada Lovelace <ada@example.com>", FromName: "Ada Lovelace", Date: "2024-06-01T11:00:00Z"}},
	}}
	s, clock := newTestSession(t, fetcher, &stubSender{})

	s.OpenFolder("INBOX")
	clock.fireNext(t)

	require.Eventually(t, func() bool {
		for _, c := range s.Contacts() {
			if c.Address == "ada@example.com" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestSendCreatesPlaceholdersAndFeedsRecipients(t *testing.T) {
	sender := &stubSender{result: models.SendResult{
		PrimaryMessageID: "<p1@mail.example.com>",
		MessageIDs:       []string{"<p1@mail.example.com>"},
	}}
	s, _ := newTestSession(t, &stubFetcher{}, sender)

	created, err := s.Send(context.Background(), models.ComposeFields{
		To:      []string{"Bob <bob@example.com>"},
		Subject: "Hello",
		Body:    "body",
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.True(t, created[0].IsLocalPending)
	assert.Equal(t, models.SyncStateAccepted, created[0].SyncState)

	view := s.MergedView(DefaultSentFolder)
	require.Len(t, view, 1)
	assert.Equal(t, "Hello", view[0].Subject)

	require.Eventually(t, func() bool {
		for _, c := range s.Contacts() {
			if c.Address == "bob@example.com" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestSendBurstFallbackWhenSentFolderClosed(t *testing.T) {
	sender := &stubSender{result: models.SendResult{PrimaryMessageID: "<p1@x>", MessageIDs: []string{"<p1@x>"}}}
	fetcher := &stubFetcher{}
	s, clock := newTestSession(t, fetcher, sender)

	_, err := s.Send(context.Background(), models.ComposeFields{To: []string{"bob@example.com"}, Subject: "s", Body: "b"})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{3500 * time.Millisecond, 12 * time.Second}, clock.pendingDelays())

	clock.fireNext(t)
	clock.fireNext(t)
	assert.Equal(t, 2, fetcher.callCount(DefaultSentFolder))
}

func TestSendErrorWithoutAcceptedPartsCreatesNothing(t *testing.T) {
	sender := &stubSender{err: assert.AnError}
	s, clock := newTestSession(t, &stubFetcher{}, sender)

	_, err := s.Send(context.Background(), models.ComposeFields{To: []string{"bob@example.com"}, Subject: "s", Body: "b"})
	assert.Error(t, err)
	assert.Empty(t, s.MergedView(DefaultSentFolder))
	assert.Empty(t, clock.pendingDelays(), "a fully failed send schedules no burst")
}

func TestSendPartialChunkFailureKeepsAcceptedPlaceholders(t *testing.T) {
	// Two chunks accepted before the third failed: both echoes will arrive and
	// must have placeholders to retire.
	sender := &stubSender{
		result: models.SendResult{
			PrimaryMessageID: "<c1@x>",
			MessageIDs:       []string{"<c1@x>", "<c2@x>"},
			Chunked:          true,
		},
		err: assert.AnError,
	}
	s, _ := newTestSession(t, &stubFetcher{}, sender)

	created, err := s.Send(context.Background(), models.ComposeFields{To: []string{"bob@example.com"}, Subject: "Big", Body: "b"})
	assert.Error(t, err)
	assert.Len(t, created, 2)
	assert.Len(t, s.MergedView(DefaultSentFolder), 2)
}

func TestRefreshReconcilesPlaceholders(t *testing.T) {
	sender := &stubSender{result: models.SendResult{PrimaryMessageID: "<p1@mail.example.com>", MessageIDs: []string{"<p1@mail.example.com>"}}}
	fetcher := &stubFetcher{batches: map[string][]models.Message{}}
	s, clock := newTestSession(t, fetcher, sender)

	s.OpenFolder(DefaultSentFolder)
	_, err := s.Send(context.Background(), models.ComposeFields{To: []string{"bob@example.com"}, Subject: "Hello", Body: "b"})
	require.NoError(t, err)
	require.Len(t, s.MergedView(DefaultSentFolder), 1)

	// The server's copy appears with the same message-id; the next refresh
	// retires the placeholder.
	fetcher.mu.Lock()
	fetcher.batches[DefaultSentFolder] = []models.Message{{
		ID:        "Sent:9",
		MessageID: "<p1@mail.example.com>",
		Subject:   "Hello",
		Date:      clock.Now().Format(time.RFC3339),
	}}
	fetcher.mu.Unlock()

	clock.fireNext(t)

	view := s.MergedView(DefaultSentFolder)
	require.Len(t, view, 1)
	assert.Equal(t, "Sent:9", view[0].ID)
	assert.False(t, view[0].IsLocalPending)
}

func TestPokeFolderRunsImmediateRefresh(t *testing.T) {
	fetcher := &stubFetcher{}
	s, clock := newTestSession(t, fetcher, &stubSender{})

	s.OpenFolder("INBOX")
	clock.fireNext(t)
	require.Equal(t, 1, fetcher.callCount("INBOX"))

	s.PokeFolder("INBOX")
	assert.Equal(t, 2, fetcher.callCount("INBOX"))

	// Poking an unknown folder is harmless.
	s.PokeFolder("Archive")
}
