package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	criteriadomain "mailsweep-backend/internal/criteria/domain"
	criteriarepo "mailsweep-backend/internal/criteria/repository"
	statedomain "mailsweep-backend/internal/state/domain"
	staterepo "mailsweep-backend/internal/state/repository"
	triagedomain "mailsweep-backend/internal/triage/domain"
)

// FeedbackRequest is a user correction for one message: the category (and
// optional label) the message should have received, plus an optional
// free-text comment explaining why.
type FeedbackRequest struct {
	Mailbox  string                `json:"mailbox"`
	GmailID  string                `json:"gmail_id"`
	Category triagedomain.Category `json:"category"`
	Label    string                `json:"label,omitempty"`
	Comment  string                `json:"comment,omitempty"`
}

// FeedbackResult reports the applied correction and the criterion it minted.
type FeedbackResult struct {
	Action    string                     `json:"action"`
	Label     string                     `json:"label,omitempty"`
	Criterion *criteriadomain.Criterion  `json:"criterion"`
	Decision  *statedomain.MessageDecision `json:"decision"`
}

// Feedback applies manual corrections: re-act on the message per the user's
// category, overwrite its decision row, and append a criterion so future
// classifications learn from the correction.
type Feedback struct {
	mail     MailService
	store    staterepo.Store
	criteria criteriarepo.Repository
	logger   *slog.Logger
}

func NewFeedback(mail MailService, store staterepo.Store, criteria criteriarepo.Repository, logger *slog.Logger) *Feedback {
	return &Feedback{
		mail:     mail,
		store:    store,
		criteria: criteria,
		logger:   logger.With("component", "feedback"),
	}
}

// Apply executes one correction end to end. The criterion is appended only
// after the mailbox mutation and the decision overwrite both succeed.
func (f *Feedback) Apply(ctx context.Context, req FeedbackRequest) (*FeedbackResult, error) {
	if req.Mailbox == "" || req.GmailID == "" {
		return nil, fmt.Errorf("mailbox and gmail_id required")
	}

	decision, err := ManualDecision(req.Category, req.Label)
	if err != nil {
		return nil, err
	}

	env, err := f.mail.GetMessage(ctx, req.Mailbox, req.GmailID)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}

	executor := NewExecutor(f.mail, req.Mailbox, f.logger)
	action, label, err := executor.Apply(ctx, req.GmailID, decision)
	if err != nil {
		return nil, fmt.Errorf("apply correction: %w", err)
	}

	row := &statedomain.MessageDecision{
		GmailID:      req.GmailID,
		MailboxEmail: req.Mailbox,
		Category:     string(req.Category),
		Action:       action,
		Label:        label,
		State:        statedomain.DecisionProcessed,
		DecidedAt:    time.Now(),
	}
	if err := f.store.PutDecision(ctx, row); err != nil {
		return nil, fmt.Errorf("log correction: %w", err)
	}

	criterion, err := f.criteria.Append(ctx, buildCriterionText(env, req))
	if err != nil {
		return nil, fmt.Errorf("append criterion: %w", err)
	}

	f.logger.Info("feedback applied", "mailbox", req.Mailbox, "message_id", req.GmailID,
		"category", req.Category, "action", action, "criterion_id", criterion.ID)

	return &FeedbackResult{
		Action:    action,
		Label:     label,
		Criterion: criterion,
		Decision:  row,
	}, nil
}

// buildCriterionText turns a correction into a prompt-ready rule anchored on
// the message's subject and sender.
func buildCriterionText(env *triagedomain.MessageEnvelope, req FeedbackRequest) string {
	var sentence string
	switch req.Category {
	case triagedomain.CategorySpam:
		sentence = "classify as spam and delete them."
	case triagedomain.CategoryReceipt:
		sentence = fmt.Sprintf("classify as receipt, archive them, and label them %q.", triagedomain.ReceiptLabel)
	case triagedomain.CategoryUsefulArchive:
		label := req.Label
		if label == "" {
			label = triagedomain.DefaultArchiveLabel
		}
		sentence = fmt.Sprintf("classify as useful_archive, archive them, and label them %q.", label)
	case triagedomain.CategoryRequiresResponse:
		sentence = "classify as requires_response and keep them in the inbox."
	case triagedomain.CategoryShouldRead:
		sentence = "classify as should_read and keep them in the inbox."
	}

	text := fmt.Sprintf("For emails similar to '%s' from %s, %s",
		strings.TrimSpace(env.Subject), strings.TrimSpace(env.From), sentence)
	if comment := strings.TrimSpace(req.Comment); comment != "" {
		text += " Reason: " + comment + "."
	}
	return text
}
