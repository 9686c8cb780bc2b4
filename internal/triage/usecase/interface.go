package usecase

import (
	"context"

	triagedomain "mailsweep-backend/internal/triage/domain"
)

// Label is a mailbox label the mail service knows about.
type Label struct {
	ID   string
	Name string
}

// HistoryPage is one page of "message added" history records.
type HistoryPage struct {
	AddedIDs      []string
	HistoryID     uint64
	NextPageToken string
}

// InboxPage is one page of inbox message ids.
type InboxPage struct {
	IDs           []string
	NextPageToken string
	SizeEstimate  int64
}

// MailService is the mailbox collaborator. Implementations map provider
// errors onto the triage domain sentinels; ModifyLabels and Delete are
// idempotent (reapplying an already-applied mutation succeeds).
type MailService interface {
	GetMessage(ctx context.Context, mailbox, id string) (*triagedomain.MessageEnvelope, error)
	ListHistory(ctx context.Context, mailbox string, startHistoryID uint64, pageToken string) (*HistoryPage, error)
	ListInbox(ctx context.Context, mailbox string, maxResults int64, pageToken string) (*InboxPage, error)
	ModifyLabels(ctx context.Context, mailbox, id string, addLabelIDs, removeLabelIDs []string) error
	Delete(ctx context.Context, mailbox, id string) error
	ListLabels(ctx context.Context, mailbox string) ([]Label, error)
	CreateLabel(ctx context.Context, mailbox, name string) (Label, error)
	// Watch registers push notifications for the mailbox and returns the
	// mailbox's current history id and the watch expiration.
	Watch(ctx context.Context, mailbox string) (historyID uint64, expiration int64, err error)
}

// Classifier is a single-turn text-in/text-out language model call. The
// caller parses the raw response, tolerating incidental code fences.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// Notifier delivers alerts. A globally disabled notifier no-ops sends
// without surfacing errors, leaving queued-state bookkeeping untouched.
type Notifier interface {
	SendImmediate(ctx context.Context, text string) error
	SendDigest(ctx context.Context, text string) error
}
