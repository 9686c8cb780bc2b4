package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	statedomain "mailsweep-backend/internal/state/domain"
	staterepo "mailsweep-backend/internal/state/repository"
)

// Notifier delivers a digest message. A disabled notifier returns nil so the
// queue bookkeeping still runs.
type Notifier interface {
	SendDigest(ctx context.Context, text string) error
}

// Service drains the queued should-read alerts into one digest message per
// run, grouped by mailbox. Items are marked sent per alert only after the
// digest goes out; a failed send leaves them queued for the next run.
type Service struct {
	store    staterepo.Store
	notifier Notifier
	logger   *slog.Logger
}

func NewService(store staterepo.Store, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger.With("component", "digest"),
	}
}

// Run sends one digest covering every queued alert. Returns the number of
// alerts included, zero when the queue was empty.
func (s *Service) Run(ctx context.Context) (int, error) {
	alerts, err := s.store.ListQueuedAlerts(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list queued alerts: %w", err)
	}
	if len(alerts) == 0 {
		s.logger.Debug("digest skipped, queue empty")
		return 0, nil
	}

	byMailbox := make(map[string][]*statedomain.AlertItem)
	for _, alert := range alerts {
		byMailbox[alert.MailboxEmail] = append(byMailbox[alert.MailboxEmail], alert)
	}
	mailboxes := make([]string, 0, len(byMailbox))
	for mailbox := range byMailbox {
		mailboxes = append(mailboxes, mailbox)
	}
	sort.Strings(mailboxes)

	var b strings.Builder
	for i, mailbox := range mailboxes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Daily digest for %s:\n", mailbox)
		for _, alert := range byMailbox[mailbox] {
			b.WriteString("- ")
			b.WriteString(alert.Summary)
			b.WriteString("\n")
		}
	}

	if err := s.notifier.SendDigest(ctx, b.String()); err != nil {
		s.logger.Error("digest send failed", "alerts", len(alerts), "error", err)
		return 0, fmt.Errorf("send digest: %w", err)
	}

	for _, alert := range alerts {
		if err := s.store.MarkAlertSent(ctx, alert.ID); err != nil {
			s.logger.Error("mark alert sent failed", "alert_id", alert.ID, "error", err)
		}
	}

	s.logger.Info("digest sent", "alerts", len(alerts), "mailboxes", len(mailboxes))
	return len(alerts), nil
}
