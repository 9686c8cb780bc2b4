package repository

import (
	"context"

	statedomain "mailsweep-backend/internal/state/domain"
)

// Store is the state persistence contract consumed by the pipeline:
// checkpoints, the decision log, and the alert queue. A GORM-backed
// implementation is used when a database is configured; otherwise the
// in-memory store stands in, losing persistence across restarts.
type Store interface {
	// GetCheckpoint returns the checkpoint for a mailbox, or nil when the
	// mailbox has never been watched.
	GetCheckpoint(ctx context.Context, email string) (*statedomain.MailboxCheckpoint, error)

	// SetCheckpoint upserts the checkpoint. The stored history ID never
	// decreases: lower values are ignored. A zero watchExpiration keeps the
	// stored expiration.
	SetCheckpoint(ctx context.Context, email string, historyID uint64, watchExpiration int64) error

	// GetDecision returns the logged decision for a message, or nil when the
	// message has never been seen.
	GetDecision(ctx context.Context, mailboxEmail, gmailID string) (*statedomain.MessageDecision, error)

	// PutDecision upserts the decision row for (gmail_id, mailbox_email).
	PutDecision(ctx context.Context, decision *statedomain.MessageDecision) error

	EnqueueAlert(ctx context.Context, alert *statedomain.AlertItem) error

	// ListQueuedAlerts returns queued alerts, oldest first. An empty mailbox
	// matches all mailboxes.
	ListQueuedAlerts(ctx context.Context, mailboxEmail string) ([]*statedomain.AlertItem, error)

	MarkAlertSent(ctx context.Context, id string) error
	MarkAlertError(ctx context.Context, id, detail string) error
}
