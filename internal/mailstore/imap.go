package mailstore

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"mailview/backend/internal/models"
)

// defaultFetchWindow bounds how many of a folder's newest messages one fetch
// returns.
const defaultFetchWindow = 50

// IMAPStore implements Fetcher against an IMAP server. It keeps one lazily
// dialed worker connection and drops it on any protocol error, so the next
// fetch reconnects fresh.
type IMAPStore struct {
	addr     string
	username string
	password string
	useTLS   bool
	window   uint32
	logger   *zap.Logger

	mu     sync.Mutex
	client *client.Client
}

// NewIMAPStore creates an IMAPStore. A non-positive window selects the
// default fetch window.
func NewIMAPStore(addr, username, password string, useTLS bool, window int, logger *zap.Logger) *IMAPStore {
	w := uint32(defaultFetchWindow)
	if window > 0 {
		w = uint32(window)
	}
	return &IMAPStore{
		addr:     addr,
		username: username,
		password: password,
		useTLS:   useTLS,
		window:   w,
		logger:   logger,
	}
}

// FetchFolderMessages lists the newest messages of a folder, newest first.
// Calls are serialized on the single worker connection.
func (s *IMAPStore) FetchFolderMessages(ctx context.Context, folder string) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connectLocked()
	if err != nil {
		return nil, err
	}

	mbox, err := c.Select(folder, true)
	if err != nil {
		s.dropLocked()
		return nil, fmt.Errorf("failed to select folder %s: %w", folder, err)
	}

	if mbox.Messages == 0 {
		return []models.Message{}, nil
	}

	from := uint32(1)
	if mbox.Messages > s.window {
		from = mbox.Messages - s.window + 1
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchBodyStructure,
		imap.FetchFlags,
		imap.FetchUid,
		imap.FetchRFC822Size,
		section.FetchItem(),
	}

	fetched := make(chan *imap.Message, s.window)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, fetched)
	}()

	var messages []models.Message
	for msg := range fetched {
		messages = append(messages, MessageFromIMAP(msg, folder, section))
	}

	if err := <-done; err != nil {
		s.dropLocked()
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	sortNewestFirst(messages)
	return messages, nil
}

// Close logs out the worker connection if one is open.
func (s *IMAPStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
}

// connectLocked returns the worker connection, dialing and authenticating
// when none is open. Caller must hold s.mu.
func (s *IMAPStore) connectLocked() (*client.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	c, err := s.dial()
	if err != nil {
		return nil, err
	}

	if err := c.Login(s.username, s.password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	s.client = c
	return c, nil
}

func (s *IMAPStore) dropLocked() {
	if s.client != nil {
		_ = s.client.Logout()
		s.client = nil
	}
}

// dial connects to the IMAP server with a 5-second timeout.
func (s *IMAPStore) dial() (*client.Client, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}

	if s.useTLS {
		c, err := client.DialWithDialerTLS(dialer, s.addr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	return c, nil
}

// sortNewestFirst orders a batch by descending date, falling back to the
// store-assigned identifier so unparsable dates still sort stably.
func sortNewestFirst(messages []models.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		ti, iOK := parseDate(messages[i].Date)
		tj, jOK := parseDate(messages[j].Date)
		if iOK && jOK && !ti.Equal(tj) {
			return ti.After(tj)
		}
		if iOK != jOK {
			return iOK
		}
		return messages[i].ID > messages[j].ID
	})
}

func parseDate(raw string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, raw)
	return t, err == nil
}
