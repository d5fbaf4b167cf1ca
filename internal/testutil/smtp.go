// Package testutil provides in-process backends for integration tests: an
// in-memory SMTP server and a containerized Postgres.
package testutil

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
)

// ReceivedMessage is one message accepted by the in-memory SMTP backend.
type ReceivedMessage struct {
	From string
	To   []string
	Data []byte
}

// MemoryBackend is an in-memory SMTP backend that accepts any credentials and
// records every delivered message.
type MemoryBackend struct {
	mu       sync.Mutex
	messages []ReceivedMessage
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// NewSession creates a new SMTP session.
func (b *MemoryBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &memorySession{backend: b}, nil
}

// Messages returns a copy of all received messages.
func (b *MemoryBackend) Messages() []ReceivedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ReceivedMessage(nil), b.messages...)
}

// Clear drops all recorded messages.
func (b *MemoryBackend) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

type memorySession struct {
	backend *MemoryBackend
	from    string
	to      []string
}

func (s *memorySession) AuthMechanism() (string, bool) {
	return "PLAIN", true
}

func (s *memorySession) AuthPlain(username, password string) error {
	// Any credentials pass in tests.
	return nil
}

func (s *memorySession) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *memorySession) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *memorySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.messages = append(s.backend.messages, ReceivedMessage{
		From: s.from,
		To:   append([]string(nil), s.to...),
		Data: data,
	})
	return nil
}

func (s *memorySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *memorySession) Logout() error {
	return nil
}

// SMTPServer is an in-process SMTP server for tests.
type SMTPServer struct {
	Server  *smtp.Server
	Address string
	Backend *MemoryBackend
}

// NewSMTPServer starts an in-memory SMTP server on a random port and
// registers its shutdown with the test's cleanup.
func NewSMTPServer(t *testing.T) *SMTPServer {
	t.Helper()

	backend := NewMemoryBackend()

	server := smtp.NewServer(backend)
	server.Addr = ":0"
	server.AllowInsecureAuth = true
	server.Domain = "localhost"

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		if err := server.Serve(listener); err != nil {
			t.Logf("SMTP server error: %v", err)
		}
	}()

	// Give the server a moment to start accepting.
	time.Sleep(100 * time.Millisecond)

	t.Cleanup(func() {
		_ = server.Close()
	})

	return &SMTPServer{
		Server:  server,
		Address: listener.Addr().String(),
		Backend: backend,
	}
}
