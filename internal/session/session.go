// Package session is the core of the mail view: it owns the per-folder
// schedulers, the placeholder registry, the contact directory and the last
// fetched batch per folder, and coordinates them into the merged listings the
// UI renders.
package session

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"mailview/backend/internal/contacts"
	"mailview/backend/internal/mailstore"
	"mailview/backend/internal/metrics"
	"mailview/backend/internal/models"
	"mailview/backend/internal/poll"
	"mailview/backend/internal/reconcile"
	"mailview/backend/internal/websocket"
)

// DefaultSentFolder is where placeholders for outgoing mail are parked until
// the server's copy shows up.
const DefaultSentFolder = "Sent"

// Config carries the session's collaborators. Metrics and Hub may be nil in
// tests.
type Config struct {
	Fetcher   mailstore.Fetcher
	Sender    mailstore.Sender
	Registry  *reconcile.Registry
	Directory *contacts.Directory
	Hub       *websocket.Hub
	Signals   poll.Signals
	Clock     poll.Clock
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	FromAddress string
	FromName    string
	SentFolder  string
}

// Session coordinates fetch, reconcile, polling and contact feeding for one
// mail account.
type Session struct {
	cfg Config
	ctx context.Context

	mu         sync.Mutex
	schedulers map[string]*poll.Scheduler
	lastBatch  map[string][]models.Message
	closed     bool
}

// NewSession creates a Session. ctx bounds every background refresh the
// session starts.
func NewSession(ctx context.Context, cfg Config) *Session {
	if cfg.SentFolder == "" {
		cfg.SentFolder = DefaultSentFolder
	}
	if cfg.Clock == nil {
		cfg.Clock = poll.RealClock()
	}
	return &Session{
		cfg:        cfg,
		ctx:        ctx,
		schedulers: make(map[string]*poll.Scheduler),
		lastBatch:  make(map[string][]models.Message),
	}
}

// OpenFolder starts the polling loop for a folder. Opening an already-open
// folder is a no-op.
func (s *Session) OpenFolder(folder string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if _, ok := s.schedulers[folder]; ok {
		return
	}

	sched := poll.NewScheduler(s.ctx, folder, s.refreshFolder, s.cfg.Clock, s.cfg.Signals, s.cfg.Logger)
	s.schedulers[folder] = sched
	sched.Start()

	s.cfg.Logger.Info("folder opened", zap.String("folder", folder))
}

// CloseFolder cancels the folder's polling loop. The last fetched batch and
// any pending placeholders survive, so reopening resumes from known state.
func (s *Session) CloseFolder(folder string) {
	s.mu.Lock()
	sched, ok := s.schedulers[folder]
	delete(s.schedulers, folder)
	s.mu.Unlock()

	if ok {
		sched.Cancel()
		s.cfg.Logger.Info("folder closed", zap.String("folder", folder))
	}
}

// Close cancels every open folder's loop.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	scheds := make([]*poll.Scheduler, 0, len(s.schedulers))
	for _, sched := range s.schedulers {
		scheds = append(scheds, sched)
	}
	s.schedulers = make(map[string]*poll.Scheduler)
	s.mu.Unlock()

	for _, sched := range scheds {
		sched.Cancel()
	}
}

// PokeFolder requests an immediate out-of-band refresh of an open folder,
// typically from an IDLE push. Unknown folders are ignored.
func (s *Session) PokeFolder(folder string) {
	s.mu.Lock()
	sched, ok := s.schedulers[folder]
	s.mu.Unlock()

	if ok {
		sched.Poke()
	}
}

// IsOpen reports whether the folder currently has a polling loop.
func (s *Session) IsOpen(folder string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.schedulers[folder]
	return ok
}

// MergedView returns the folder listing to render: surviving placeholders
// above the last fetched batch.
func (s *Session) MergedView(folder string) []models.Message {
	s.mu.Lock()
	batch := s.lastBatch[folder]
	s.mu.Unlock()

	return s.cfg.Registry.MergedView(folder, batch)
}

// Contacts returns the ranked recipient suggestions.
func (s *Session) Contacts() []contacts.Suggestion {
	return s.cfg.Directory.Ranked()
}

// Send submits a composed message, creates the placeholders for its accepted
// parts, feeds the recipients into the contact directory and schedules the
// post-send refresh burst. Placeholders are created even when a chunked send
// fails part-way: the parts the server accepted will echo back and must
// reconcile.
func (s *Session) Send(ctx context.Context, compose models.ComposeFields) ([]models.PendingMessage, error) {
	result, sendErr := s.cfg.Sender.SendMessage(ctx, compose)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveSend(sendErr, len(result.MessageIDs))
	}
	if sendErr != nil && len(result.MessageIDs) == 0 {
		return nil, sendErr
	}

	created := s.cfg.Registry.CreatePlaceholders(s.cfg.SentFolder, result, compose, s.cfg.FromAddress, s.cfg.FromName)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.PlaceholdersCreated.Add(float64(len(created)))
	}

	s.cfg.Directory.Observe(ctx, recipientSignals(compose))
	s.burstSentFolder()

	s.cfg.Logger.Info("send completed",
		zap.Int("placeholders", len(created)),
		zap.Bool("chunked", result.Chunked),
		zap.Error(sendErr))
	return created, sendErr
}

// burstSentFolder schedules the supplementary refreshes that catch the
// server's echo of a send. With the sent folder open they route through its
// scheduler; otherwise two one-shot refreshes run directly.
func (s *Session) burstSentFolder() {
	folder := s.cfg.SentFolder

	s.mu.Lock()
	sched, open := s.schedulers[folder]
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.BurstsScheduled.Inc()
	}

	if open {
		sched.Burst()
		return
	}
	for _, offset := range poll.BurstOffsets() {
		s.cfg.Clock.AfterFunc(offset, func() {
			_ = s.refreshFolder(s.ctx, folder)
		})
	}
}

// refreshFolder runs one fetch-and-apply cycle: fetch the folder, reconcile
// placeholders against the batch, remember the batch for merged views, feed
// sender addresses into the contact directory and notify UI clients.
func (s *Session) refreshFolder(ctx context.Context, folder string) error {
	batch, err := s.cfg.Fetcher.FetchFolderMessages(ctx, folder)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveRefresh(folder, err)
	}
	if err != nil {
		return err
	}

	res := s.cfg.Registry.Reconcile(folder, batch)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.PlaceholdersReconciled.Add(float64(res.Matched))
		s.cfg.Metrics.PlaceholdersExpired.Add(float64(res.Expired))
		s.cfg.Metrics.PlaceholdersPending.Set(float64(len(res.Kept)))
	}

	s.mu.Lock()
	s.lastBatch[folder] = batch
	s.mu.Unlock()

	s.cfg.Directory.Observe(ctx, senderSignals(batch))

	if s.cfg.Hub != nil {
		s.cfg.Hub.BroadcastFolderRefreshed(folder)
	}

	s.cfg.Logger.Debug("folder refreshed",
		zap.String("folder", folder),
		zap.Int("messages", len(batch)),
		zap.Int("matched", res.Matched),
		zap.Int("pending", len(res.Kept)))
	return nil
}

// senderSignals extracts contact signals from a fetched batch. Seeing a
// sender is pure observation, so the usage delta stays zero.
func senderSignals(batch []models.Message) []contacts.Seen {
	signals := make([]contacts.Seen, 0, len(batch))
	for _, m := range batch {
		address := reconcile.MailboxAddress(m.FromAddress)
		if address == "" {
			continue
		}
		var seenAt int64
		if ms, ok := reconcile.ParseTimestamp(m.Date); ok {
			seenAt = ms
		}
		signals = append(signals, contacts.Seen{
			Address: address,
			Name:    displayName(m.FromName, m.FromAddress),
			SeenAt:  seenAt,
		})
	}
	return signals
}

// recipientSignals extracts contact signals from a composed message. Sending
// to an address is an explicit use, so each recipient gets a usage delta of
// one.
func recipientSignals(compose models.ComposeFields) []contacts.Seen {
	var signals []contacts.Seen
	for _, group := range [][]string{compose.To, compose.Cc, compose.Bcc} {
		for _, raw := range group {
			address := reconcile.MailboxAddress(raw)
			if address == "" {
				continue
			}
			signals = append(signals, contacts.Seen{
				Address:    address,
				Name:       displayName("", raw),
				UsageDelta: 1,
			})
		}
	}
	return signals
}

// displayName prefers the explicit name, falling back to the display-name
// part of a "Name <addr>" form.
func displayName(name, raw string) string {
	if name != "" {
		return name
	}
	if idx := strings.LastIndex(raw, "<"); idx > 0 {
		return strings.TrimSpace(raw[:idx])
	}
	return ""
}
