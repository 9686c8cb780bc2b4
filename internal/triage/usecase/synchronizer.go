package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	statedomain "mailsweep-backend/internal/state/domain"
	staterepo "mailsweep-backend/internal/state/repository"
	triagedomain "mailsweep-backend/internal/triage/domain"
)

// SyncResult summarizes one notification-driven sync pass.
type SyncResult struct {
	Mailbox        string                        `json:"mailbox"`
	Processed      int                           `json:"processed"`
	Skipped        int                           `json:"skipped"`
	Errors         int                           `json:"errors"`
	Counts         map[triagedomain.Category]int `json:"counts"`
	CheckpointFrom uint64                        `json:"checkpoint_from"`
	CheckpointTo   uint64                        `json:"checkpoint_to"`
	Seeded         bool                          `json:"seeded"`
}

// Synchronizer drives the incremental sync path: it turns a push
// notification into a history walk from the mailbox checkpoint, classifies
// and acts on each newly added message, and advances the checkpoint only
// after the page's outcomes are in the decision log.
//
// Unlike batch jobs, this path raises alerts: requires_response sends
// immediately, should_read queues for the daily digest.
type Synchronizer struct {
	mail     MailService
	store    staterepo.Store
	engine   *Engine
	notifier Notifier
	logger   *slog.Logger
}

func NewSynchronizer(mail MailService, store staterepo.Store, engine *Engine, notifier Notifier, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		mail:     mail,
		store:    store,
		engine:   engine,
		notifier: notifier,
		logger:   logger.With("component", "synchronizer"),
	}
}

// RegisterWatch registers (or renews) push notifications for the mailbox and
// seeds its checkpoint from the watch response. Messages older than the
// registration point are never backfilled; batch jobs cover those.
func (s *Synchronizer) RegisterWatch(ctx context.Context, mailbox string) (uint64, error) {
	historyID, expiration, err := s.mail.Watch(ctx, mailbox)
	if err != nil {
		return 0, fmt.Errorf("register watch: %w", err)
	}
	if err := s.store.SetCheckpoint(ctx, mailbox, historyID, expiration); err != nil {
		return 0, fmt.Errorf("store checkpoint: %w", err)
	}
	s.logger.Info("watch registered", "mailbox", mailbox, "history_id", historyID,
		"expires", time.UnixMilli(expiration))
	return historyID, nil
}

// ProcessNotification handles one push notification carrying the mailbox's
// current history id. With no stored checkpoint the notification only seeds
// one; otherwise the gap between checkpoint and notification is walked page
// by page.
func (s *Synchronizer) ProcessNotification(ctx context.Context, mailbox string, notifiedHistoryID uint64, expiration int64) (*SyncResult, error) {
	return s.sync(ctx, mailbox, notifiedHistoryID, expiration, false)
}

// Refresh walks the mailbox's history from its checkpoint without a
// notification hint. With force set, already-processed messages are
// re-classified and re-acted on.
func (s *Synchronizer) Refresh(ctx context.Context, mailbox string, force bool) (*SyncResult, error) {
	return s.sync(ctx, mailbox, 0, 0, force)
}

func (s *Synchronizer) sync(ctx context.Context, mailbox string, notifiedHistoryID uint64, expiration int64, force bool) (*SyncResult, error) {
	result := &SyncResult{
		Mailbox: mailbox,
		Counts:  make(map[triagedomain.Category]int),
	}

	checkpoint, err := s.store.GetCheckpoint(ctx, mailbox)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if checkpoint == nil {
		if notifiedHistoryID == 0 {
			return nil, fmt.Errorf("mailbox %s has no checkpoint, register a watch first", mailbox)
		}
		if err := s.store.SetCheckpoint(ctx, mailbox, notifiedHistoryID, expiration); err != nil {
			return nil, fmt.Errorf("seed checkpoint: %w", err)
		}
		s.logger.Info("checkpoint seeded", "mailbox", mailbox, "history_id", notifiedHistoryID)
		result.Seeded = true
		result.CheckpointTo = notifiedHistoryID
		return result, nil
	}
	result.CheckpointFrom = checkpoint.HistoryID
	result.CheckpointTo = checkpoint.HistoryID

	if notifiedHistoryID != 0 && notifiedHistoryID <= checkpoint.HistoryID {
		s.logger.Debug("notification already covered", "mailbox", mailbox,
			"notified", notifiedHistoryID, "checkpoint", checkpoint.HistoryID)
		return result, nil
	}

	executor := NewExecutor(s.mail, mailbox, s.logger)

	pageToken := ""
	for {
		page, err := s.mail.ListHistory(ctx, mailbox, checkpoint.HistoryID, pageToken)
		if err != nil {
			if errors.Is(err, triagedomain.ErrCheckpointInvalid) {
				return result, s.recoverCheckpoint(ctx, mailbox, checkpoint.HistoryID)
			}
			return result, fmt.Errorf("list history: %w", err)
		}

		for _, id := range page.AddedIDs {
			outcome, err := s.processMessage(ctx, executor, mailbox, id, force)
			switch {
			case err != nil:
				result.Errors++
			case outcome == nil:
				result.Skipped++
			default:
				result.Processed++
				result.Counts[outcome.Category]++
			}
		}

		// The page's outcomes are logged; now it is safe to advance.
		if page.HistoryID > result.CheckpointTo {
			if err := s.store.SetCheckpoint(ctx, mailbox, page.HistoryID, expiration); err != nil {
				return result, fmt.Errorf("advance checkpoint: %w", err)
			}
			result.CheckpointTo = page.HistoryID
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	s.logger.Info("sync complete", "mailbox", mailbox,
		"processed", result.Processed, "skipped", result.Skipped, "errors", result.Errors,
		"checkpoint", result.CheckpointTo)
	return result, nil
}

// processMessage runs one message through classify, act, log. A nil decision
// with nil error means the message was skipped (already processed, or gone).
func (s *Synchronizer) processMessage(ctx context.Context, executor *Executor, mailbox, id string, force bool) (*triagedomain.Decision, error) {
	if !force {
		existing, err := s.store.GetDecision(ctx, mailbox, id)
		if err != nil {
			return nil, fmt.Errorf("lookup decision: %w", err)
		}
		if existing != nil && existing.State == statedomain.DecisionProcessed {
			return nil, nil
		}
	}

	env, err := s.mail.GetMessage(ctx, mailbox, id)
	if err != nil {
		if errors.Is(err, triagedomain.ErrMessageNotFound) {
			return nil, nil
		}
		s.logDecisionError(ctx, mailbox, id, err)
		return nil, err
	}

	labels, err := executor.UserLabels(ctx)
	if err != nil {
		s.logDecisionError(ctx, mailbox, id, err)
		return nil, err
	}

	decision, err := s.engine.Classify(ctx, env, labels)
	if err != nil {
		s.logDecisionError(ctx, mailbox, id, err)
		return nil, err
	}

	action, label, err := executor.Apply(ctx, id, decision)
	if err != nil {
		s.logDecisionError(ctx, mailbox, id, err)
		return nil, err
	}

	if err := s.store.PutDecision(ctx, &statedomain.MessageDecision{
		GmailID:      id,
		MailboxEmail: mailbox,
		Category:     string(decision.Category),
		Action:       action,
		Label:        label,
		State:        statedomain.DecisionProcessed,
		DecidedAt:    time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("log decision: %w", err)
	}

	s.raiseAlert(ctx, mailbox, id, env, decision)
	return decision, nil
}

// raiseAlert delivers or queues the notification a decision calls for.
// Delivery failures are recorded on the alert row and never fail the sync.
func (s *Synchronizer) raiseAlert(ctx context.Context, mailbox, id string, env *triagedomain.MessageEnvelope, decision *triagedomain.Decision) {
	summary := decision.Summary
	if summary == "" {
		summary = env.Subject
	}

	switch decision.Category {
	case triagedomain.CategoryRequiresResponse:
		alert := &statedomain.AlertItem{
			GmailID:      id,
			MailboxEmail: mailbox,
			Summary:      summary,
			Status:       statedomain.AlertSent,
			CreatedAt:    time.Now(),
		}
		text := fmt.Sprintf("Response needed in %s:\nFrom: %s\nSubject: %s\n%s",
			mailbox, env.From, env.Subject, summary)
		if err := s.notifier.SendImmediate(ctx, text); err != nil {
			s.logger.Error("immediate alert failed", "mailbox", mailbox, "message_id", id, "error", err)
			alert.Status = statedomain.AlertError
			alert.ErrorDetail = err.Error()
		}
		if err := s.store.EnqueueAlert(ctx, alert); err != nil {
			s.logger.Error("alert log failed", "mailbox", mailbox, "message_id", id, "error", err)
		}
	case triagedomain.CategoryShouldRead:
		if err := s.store.EnqueueAlert(ctx, &statedomain.AlertItem{
			GmailID:      id,
			MailboxEmail: mailbox,
			Summary:      summary,
			Status:       statedomain.AlertQueued,
			CreatedAt:    time.Now(),
		}); err != nil {
			s.logger.Error("alert queue failed", "mailbox", mailbox, "message_id", id, "error", err)
		}
	}
}

func (s *Synchronizer) logDecisionError(ctx context.Context, mailbox, id string, cause error) {
	s.logger.Warn("message failed", "mailbox", mailbox, "message_id", id, "error", cause)
	if err := s.store.PutDecision(ctx, &statedomain.MessageDecision{
		GmailID:      id,
		MailboxEmail: mailbox,
		State:        statedomain.DecisionError,
		ErrorDetail:  cause.Error(),
		DecidedAt:    time.Now(),
	}); err != nil {
		s.logger.Error("decision log failed", "mailbox", mailbox, "message_id", id, "error", err)
	}
}

// recoverCheckpoint handles a history id the provider no longer honors. The
// watch is re-registered and the checkpoint jumps to the mailbox's present;
// the gap is not replayed, a later batch job can cover it.
func (s *Synchronizer) recoverCheckpoint(ctx context.Context, mailbox string, stale uint64) error {
	s.logger.Warn("checkpoint no longer valid, replaying from now", "mailbox", mailbox, "stale_history_id", stale)
	if _, err := s.RegisterWatch(ctx, mailbox); err != nil {
		return fmt.Errorf("recover checkpoint: %w", err)
	}
	return nil
}
