package domain

import "time"

// MailboxCheckpoint marks the last processed point in a mailbox's change
// history. The history ID is monotonically non-decreasing per mailbox: it is
// created on first watch registration and advanced only after the
// corresponding message page has been durably logged. The checkpoint is a
// replay-cost optimization; the decision log is the correctness boundary.
type MailboxCheckpoint struct {
	Email           string `json:"email" gorm:"primaryKey"`
	HistoryID       uint64 `json:"history_id"`
	WatchExpiration int64  `json:"watch_expiration"`
	UpdatedAt       time.Time
}

// DecisionState records how a message left the pipeline.
type DecisionState string

const (
	DecisionProcessed DecisionState = "processed"
	DecisionError     DecisionState = "error"
	// DecisionSummary is reserved for cached on-demand message summaries.
	// No pipeline path writes it; only processed and error gate re-runs.
	DecisionSummary DecisionState = "summary"
)

// MessageDecision is the idempotency ledger: at most one row per
// (gmail_id, mailbox_email), and a processed row means "do not re-act".
type MessageDecision struct {
	ID           string `json:"id" gorm:"primaryKey"`
	GmailID      string `json:"gmail_id" gorm:"uniqueIndex:idx_mailbox_message;not null"`
	MailboxEmail string `json:"mailbox_email" gorm:"uniqueIndex:idx_mailbox_message;not null"`
	Category     string `json:"category"`
	Action       string `json:"action"`
	Label        string `json:"label"`
	State        DecisionState `json:"state" gorm:"index"`
	ErrorDetail  string        `json:"error_detail"`
	DecidedAt    time.Time     `json:"decided_at"`
}

// AlertStatus tracks an alert through the digest queue.
type AlertStatus string

const (
	AlertQueued AlertStatus = "queued"
	AlertSent   AlertStatus = "sent"
	AlertError  AlertStatus = "error"
)

// AlertItem is a notification raised for a message decision. Immediate alerts
// are logged sent or error; digest alerts sit queued until the next digest
// run consumes them.
type AlertItem struct {
	ID           string      `json:"id" gorm:"primaryKey"`
	GmailID      string      `json:"gmail_id" gorm:"index"`
	MailboxEmail string      `json:"mailbox_email" gorm:"index"`
	Summary      string      `json:"summary"`
	Status       AlertStatus `json:"status" gorm:"index"`
	ErrorDetail  string      `json:"error_detail"`
	CreatedAt    time.Time   `json:"created_at"`
}
