package digest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	statedomain "mailsweep-backend/internal/state/domain"
	staterepo "mailsweep-backend/internal/state/repository"
)

type fakeNotifier struct {
	digests []string
	err     error
}

func (f *fakeNotifier) SendDigest(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.digests = append(f.digests, text)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func enqueue(t *testing.T, store staterepo.Store, mailbox, id, summary string) {
	t.Helper()
	if err := store.EnqueueAlert(context.Background(), &statedomain.AlertItem{
		GmailID:      id,
		MailboxEmail: mailbox,
		Summary:      summary,
		Status:       statedomain.AlertQueued,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestRunGroupsByMailboxAndMarksSent(t *testing.T) {
	store := staterepo.NewMemoryStore()
	enqueue(t, store, "a@example.com", "m1", "Board deck shared")
	enqueue(t, store, "b@example.com", "m2", "Quarterly report out")
	enqueue(t, store, "a@example.com", "m3", "New compliance policy")

	notifier := &fakeNotifier{}
	svc := NewService(store, notifier, testLogger())

	count, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if len(notifier.digests) != 1 {
		t.Fatalf("digests sent = %d, want one combined message", len(notifier.digests))
	}

	text := notifier.digests[0]
	for _, fragment := range []string{
		"Daily digest for a@example.com:",
		"Daily digest for b@example.com:",
		"- Board deck shared",
		"- Quarterly report out",
		"- New compliance policy",
	} {
		if !strings.Contains(text, fragment) {
			t.Errorf("digest missing %q:\n%s", fragment, text)
		}
	}

	// Consumed items leave the queue.
	queued, err := store.ListQueuedAlerts(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 0 {
		t.Errorf("queued after run = %d, want 0", len(queued))
	}
}

func TestRunEmptyQueueSendsNothing(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(staterepo.NewMemoryStore(), notifier, testLogger())

	count, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 || len(notifier.digests) != 0 {
		t.Errorf("count=%d digests=%d, want 0/0", count, len(notifier.digests))
	}
}

func TestRunFailedSendLeavesQueueIntact(t *testing.T) {
	store := staterepo.NewMemoryStore()
	enqueue(t, store, "a@example.com", "m1", "Something to read")

	notifier := &fakeNotifier{err: errors.New("telegram down")}
	svc := NewService(store, notifier, testLogger())

	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected send failure to surface")
	}

	queued, err := store.ListQueuedAlerts(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 1 {
		t.Errorf("queued = %d, failed send must keep items for the next run", len(queued))
	}
}

// A disabled notifier returns nil from SendDigest, so the queue still drains.
func TestRunDisabledNotifierStillDrainsQueue(t *testing.T) {
	store := staterepo.NewMemoryStore()
	enqueue(t, store, "a@example.com", "m1", "Something to read")

	svc := NewService(store, &fakeNotifier{}, testLogger())
	count, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	queued, _ := store.ListQueuedAlerts(context.Background(), "")
	if len(queued) != 0 {
		t.Errorf("queued = %d, want 0", len(queued))
	}
}
