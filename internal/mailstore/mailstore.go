// Package mailstore is the boundary to the backend mail store. The session
// core only ever sees the two collaborator interfaces here; the IMAP and SMTP
// adapters are the production implementations.
package mailstore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailview/backend/internal/models"
)

// Fetcher retrieves the current listing of a folder, newest first.
type Fetcher interface {
	FetchFolderMessages(ctx context.Context, folder string) ([]models.Message, error)
}

// Sender submits an outgoing message to the mail store.
type Sender interface {
	SendMessage(ctx context.Context, compose models.ComposeFields) (models.SendResult, error)
}

// fetchRetryDelay is the fixed pause before the single retry of a failed
// fetch. After the retry also fails the cycle is abandoned and the view stays
// on its last known good state until the next scheduled tick.
const fetchRetryDelay = 1200 * time.Millisecond

// RetryingFetcher wraps a Fetcher and retries a failed fetch exactly once.
type RetryingFetcher struct {
	inner  Fetcher
	delay  time.Duration
	logger *zap.Logger
}

// NewRetryingFetcher wraps inner with the standard single-retry policy.
func NewRetryingFetcher(inner Fetcher, logger *zap.Logger) *RetryingFetcher {
	return &RetryingFetcher{inner: inner, delay: fetchRetryDelay, logger: logger}
}

func (f *RetryingFetcher) FetchFolderMessages(ctx context.Context, folder string) ([]models.Message, error) {
	messages, err := f.inner.FetchFolderMessages(ctx, folder)
	if err == nil {
		return messages, nil
	}

	f.logger.Warn("folder fetch failed, retrying once",
		zap.String("folder", folder),
		zap.Error(err))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.delay):
	}

	return f.inner.FetchFolderMessages(ctx, folder)
}
