package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	triagedomain "mailsweep-backend/internal/triage/domain"
)

// Executor applies canonical actions to one mailbox. It caches the mailbox's
// label name -> id mapping for the lifetime of the run, creating missing
// labels on first use. Create a fresh Executor per run so label changes made
// outside the run are picked up next time.
type Executor struct {
	mail    MailService
	mailbox string
	logger  *slog.Logger

	labelIDs   map[string]string
	userLabels []string
	seeded     bool
}

func NewExecutor(mail MailService, mailbox string, logger *slog.Logger) *Executor {
	return &Executor{
		mail:    mail,
		mailbox: mailbox,
		logger:  logger.With("component", "executor", "mailbox", mailbox),
	}
}

// UserLabels returns the mailbox's user-visible label names, seeding the
// cache on first call. The engine offers these to the classifier.
func (x *Executor) UserLabels(ctx context.Context) ([]string, error) {
	if err := x.seed(ctx); err != nil {
		return nil, err
	}
	return x.userLabels, nil
}

// Apply performs the decision's canonical action on the message. A message
// that vanished underneath us (already deleted or relabelled elsewhere)
// counts as success. Returns the action name and effective label for the
// decision log.
func (x *Executor) Apply(ctx context.Context, messageID string, decision *triagedomain.Decision) (action string, label string, err error) {
	act := decision.Action()
	action = act.Name()
	label = act.AddLabel

	if act.Delete {
		if err := x.mail.Delete(ctx, x.mailbox, messageID); err != nil {
			if errors.Is(err, triagedomain.ErrMessageNotFound) {
				return action, label, nil
			}
			return action, label, fmt.Errorf("delete message: %w", err)
		}
		return action, label, nil
	}

	var add, remove []string
	if act.AddLabel != "" {
		id, err := x.ensureLabel(ctx, act.AddLabel)
		if err != nil {
			return action, label, err
		}
		add = append(add, id)
	}
	if act.Archive {
		remove = append(remove, "INBOX")
	}
	if len(add) == 0 && len(remove) == 0 {
		return action, label, nil
	}

	if err := x.mail.ModifyLabels(ctx, x.mailbox, messageID, add, remove); err != nil {
		if errors.Is(err, triagedomain.ErrMessageNotFound) {
			return action, label, nil
		}
		return action, label, fmt.Errorf("modify labels: %w", err)
	}
	return action, label, nil
}

// ensureLabel resolves a label name to its id, creating the label when the
// mailbox does not have it yet.
func (x *Executor) ensureLabel(ctx context.Context, name string) (string, error) {
	if err := x.seed(ctx); err != nil {
		return "", err
	}
	if id, ok := x.labelIDs[name]; ok {
		return id, nil
	}
	created, err := x.mail.CreateLabel(ctx, x.mailbox, name)
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	x.labelIDs[name] = created.ID
	x.userLabels = append(x.userLabels, name)
	x.logger.Info("created label", "label", name)
	return created.ID, nil
}

func (x *Executor) seed(ctx context.Context) error {
	if x.seeded {
		return nil
	}
	labels, err := x.mail.ListLabels(ctx, x.mailbox)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	x.labelIDs = make(map[string]string, len(labels))
	x.userLabels = make([]string, 0, len(labels))
	for _, l := range labels {
		x.labelIDs[l.Name] = l.ID
		x.userLabels = append(x.userLabels, l.Name)
	}
	x.seeded = true
	return nil
}
