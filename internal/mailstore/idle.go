package mailstore

import (
	"context"
	"time"

	idle "github.com/emersion/go-imap-idle"
	imapclient "github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

// idleRetrySleep is the backoff after an IDLE error before reconnecting.
const idleRetrySleep = 10 * time.Second

// StartIdleTrigger runs an IMAP IDLE loop on a dedicated listener connection
// and calls onUpdate whenever the server reports mailbox changes for the
// folder. The trigger is advisory: onUpdate typically pokes the folder's
// scheduler, which decides whether a refresh actually runs. Blocks until ctx
// is cancelled.
func (s *IMAPStore) StartIdleTrigger(ctx context.Context, folder string, onUpdate func()) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.runIdleOnce(ctx, folder, onUpdate); err != nil {
			s.logger.Warn("idle listener ended, reconnecting",
				zap.String("folder", folder),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(idleRetrySleep):
		}
	}
}

// runIdleOnce dials a listener connection, enters IDLE and dispatches mailbox
// updates until the connection drops or ctx is cancelled.
func (s *IMAPStore) runIdleOnce(ctx context.Context, folder string, onUpdate func()) error {
	c, err := s.dial()
	if err != nil {
		return err
	}
	defer func() { _ = c.Logout() }()

	if err := c.Login(s.username, s.password); err != nil {
		return err
	}

	if _, err := c.Select(folder, true); err != nil {
		return err
	}

	idleClient := idle.NewClient(c)

	updates := make(chan imapclient.Update, 10)
	c.Updates = updates

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- idleClient.IdleWithFallback(stop, 5*time.Second)
	}()

	for {
		select {
		case <-ctx.Done():
			close(stop)
			return nil
		case err := <-done:
			return err
		case update := <-updates:
			if mbox, ok := update.(*imapclient.MailboxUpdate); ok && mbox.Mailbox != nil {
				onUpdate()
			}
		}
	}
}
