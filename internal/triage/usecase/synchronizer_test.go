package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	criteriarepo "mailsweep-backend/internal/criteria/repository"
	statedomain "mailsweep-backend/internal/state/domain"
	staterepo "mailsweep-backend/internal/state/repository"
	triagedomain "mailsweep-backend/internal/triage/domain"
)

func newTestSynchronizer(mail *fakeMail, store staterepo.Store, clf Classifier, notifier Notifier) *Synchronizer {
	engine := NewEngine(clf, criteriarepo.NewMemoryRepository(), time.Second, testLogger())
	return NewSynchronizer(mail, store, engine, notifier, testLogger())
}

func TestProcessNotificationSeedsCheckpointWithoutBackfill(t *testing.T) {
	mail := newFakeMail()
	mail.addMessage("old-01", "Old mail", "old@example.com")
	store := staterepo.NewMemoryStore()
	sync := newTestSynchronizer(mail, store, newFakeClassifier(""), &fakeNotifier{})

	ctx := context.Background()
	result, err := sync.ProcessNotification(ctx, testMailbox, 500, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Seeded {
		t.Error("first notification should seed the checkpoint")
	}
	if result.Processed != 0 {
		t.Errorf("processed = %d, seeding must not backfill", result.Processed)
	}
	if got := mail.mutationCount(); got != 0 {
		t.Errorf("mutations = %d, want 0", got)
	}

	checkpoint, err := store.GetCheckpoint(ctx, testMailbox)
	if err != nil {
		t.Fatal(err)
	}
	if checkpoint == nil || checkpoint.HistoryID != 500 {
		t.Fatalf("checkpoint = %+v, want history id 500", checkpoint)
	}
}

func TestProcessNotificationWalksHistoryAndAdvancesCheckpoint(t *testing.T) {
	mail := newFakeMail()
	mail.addMessage("msg-01", "Contract question", "client@example.com")
	mail.addMessage("msg-02", "Weekly update", "news@example.com")
	mail.history = []*HistoryPage{
		{AddedIDs: []string{"msg-01"}, HistoryID: 510, NextPageToken: "page2"},
		{AddedIDs: []string{"msg-02"}, HistoryID: 520},
	}

	clf := newFakeClassifier("")
	clf.responses["msg-01"] = decisionJSON("requires_response", "")
	clf.responses["msg-02"] = decisionJSON("should_read", "")

	store := staterepo.NewMemoryStore()
	if err := store.SetCheckpoint(context.Background(), testMailbox, 500, 0); err != nil {
		t.Fatal(err)
	}
	notifier := &fakeNotifier{}
	sync := newTestSynchronizer(mail, store, clf, notifier)

	ctx := context.Background()
	result, err := sync.ProcessNotification(ctx, testMailbox, 520, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 2 || result.Errors != 0 {
		t.Fatalf("processed=%d errors=%d, want 2/0", result.Processed, result.Errors)
	}
	if result.CheckpointTo != 520 {
		t.Errorf("checkpoint advanced to %d, want 520", result.CheckpointTo)
	}

	// requires_response alerts immediately, should_read queues for the digest.
	if len(notifier.immediate) != 1 {
		t.Fatalf("immediate alerts = %d, want 1", len(notifier.immediate))
	}
	if !strings.Contains(notifier.immediate[0], "Contract question") {
		t.Errorf("immediate alert missing subject: %q", notifier.immediate[0])
	}
	queued, err := store.ListQueuedAlerts(ctx, testMailbox)
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 1 || queued[0].GmailID != "msg-02" {
		t.Fatalf("queued alerts = %+v, want one for msg-02", queued)
	}
}

func TestProcessNotificationAlreadyCovered(t *testing.T) {
	mail := newFakeMail()
	mail.history = []*HistoryPage{{AddedIDs: []string{"msg-01"}, HistoryID: 510}}
	store := staterepo.NewMemoryStore()
	if err := store.SetCheckpoint(context.Background(), testMailbox, 600, 0); err != nil {
		t.Fatal(err)
	}
	sync := newTestSynchronizer(mail, store, newFakeClassifier(""), &fakeNotifier{})

	result, err := sync.ProcessNotification(context.Background(), testMailbox, 550, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 0 || mail.historyPage != 0 {
		t.Error("a notification at or below the checkpoint should be a no-op")
	}
}

func TestProcessNotificationSkipsProcessedMessages(t *testing.T) {
	mail := newFakeMail()
	mail.addMessage("msg-01", "Spam", "spam@example.com")
	mail.history = []*HistoryPage{{AddedIDs: []string{"msg-01"}, HistoryID: 510}}

	store := staterepo.NewMemoryStore()
	ctx := context.Background()
	if err := store.SetCheckpoint(ctx, testMailbox, 500, 0); err != nil {
		t.Fatal(err)
	}
	if err := store.PutDecision(ctx, &statedomain.MessageDecision{
		GmailID:      "msg-01",
		MailboxEmail: testMailbox,
		State:        statedomain.DecisionProcessed,
	}); err != nil {
		t.Fatal(err)
	}

	sync := newTestSynchronizer(mail, store, newFakeClassifier(decisionJSON("spam", "")), &fakeNotifier{})
	result, err := sync.ProcessNotification(ctx, testMailbox, 510, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped != 1 || result.Processed != 0 {
		t.Errorf("skipped=%d processed=%d, want 1/0", result.Skipped, result.Processed)
	}
	if got := mail.mutationCount(); got != 0 {
		t.Errorf("mutations = %d, duplicate delivery must not re-act", got)
	}
}

func TestRefreshForceReprocessesLoggedMessages(t *testing.T) {
	mail := newFakeMail()
	mail.addMessage("msg-01", "Spam", "spam@example.com")
	mail.history = []*HistoryPage{{AddedIDs: []string{"msg-01"}, HistoryID: 510}}

	store := staterepo.NewMemoryStore()
	ctx := context.Background()
	if err := store.SetCheckpoint(ctx, testMailbox, 500, 0); err != nil {
		t.Fatal(err)
	}
	if err := store.PutDecision(ctx, &statedomain.MessageDecision{
		GmailID:      "msg-01",
		MailboxEmail: testMailbox,
		State:        statedomain.DecisionProcessed,
	}); err != nil {
		t.Fatal(err)
	}

	sync := newTestSynchronizer(mail, store, newFakeClassifier(decisionJSON("spam", "")), &fakeNotifier{})
	result, err := sync.Refresh(ctx, testMailbox, true)
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 1 || result.Skipped != 0 {
		t.Errorf("processed=%d skipped=%d, want 1/0", result.Processed, result.Skipped)
	}
	if got := mail.mutationCount(); got != 1 {
		t.Errorf("mutations = %d, a forced re-run should act again", got)
	}
}

func TestRefreshWithoutCheckpointFails(t *testing.T) {
	sync := newTestSynchronizer(newFakeMail(), staterepo.NewMemoryStore(), newFakeClassifier(""), &fakeNotifier{})
	if _, err := sync.Refresh(context.Background(), testMailbox, false); err == nil {
		t.Fatal("refresh with no stored checkpoint should fail")
	}
}

func TestProcessNotificationLogsErrorsAndContinues(t *testing.T) {
	mail := newFakeMail()
	mail.addMessage("msg-01", "Broken", "x@example.com")
	mail.addMessage("msg-02", "Fine", "y@example.com")
	mail.history = []*HistoryPage{{AddedIDs: []string{"msg-01", "msg-02"}, HistoryID: 510}}
	mail.getErr["msg-01"] = fmt.Errorf("%w: boom", triagedomain.ErrTransientAPI)

	store := staterepo.NewMemoryStore()
	ctx := context.Background()
	if err := store.SetCheckpoint(ctx, testMailbox, 500, 0); err != nil {
		t.Fatal(err)
	}

	sync := newTestSynchronizer(mail, store, newFakeClassifier(decisionJSON("spam", "")), &fakeNotifier{})
	result, err := sync.ProcessNotification(ctx, testMailbox, 510, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Errors != 1 || result.Processed != 1 {
		t.Errorf("errors=%d processed=%d, want 1/1", result.Errors, result.Processed)
	}

	decision, _ := store.GetDecision(ctx, testMailbox, "msg-01")
	if decision == nil || decision.State != statedomain.DecisionError {
		t.Errorf("decision = %+v, want error state", decision)
	}
	// The checkpoint still advances; the error row marks the retry.
	checkpoint, _ := store.GetCheckpoint(ctx, testMailbox)
	if checkpoint.HistoryID != 510 {
		t.Errorf("checkpoint = %d, want 510", checkpoint.HistoryID)
	}
}

func TestProcessNotificationRecoversInvalidCheckpoint(t *testing.T) {
	mail := newFakeMail()
	mail.historyErr = fmt.Errorf("%w: startHistoryId too old", triagedomain.ErrCheckpointInvalid)
	mail.watchHistoryID = 900
	mail.watchExpiration = time.Now().Add(time.Hour).UnixMilli()

	store := staterepo.NewMemoryStore()
	ctx := context.Background()
	if err := store.SetCheckpoint(ctx, testMailbox, 100, 0); err != nil {
		t.Fatal(err)
	}

	sync := newTestSynchronizer(mail, store, newFakeClassifier(""), &fakeNotifier{})
	if _, err := sync.ProcessNotification(ctx, testMailbox, 950, 0); err != nil {
		t.Fatal(err)
	}

	if mail.watchCalls != 1 {
		t.Errorf("watch calls = %d, want 1", mail.watchCalls)
	}
	checkpoint, _ := store.GetCheckpoint(ctx, testMailbox)
	if checkpoint.HistoryID != 900 {
		t.Errorf("checkpoint = %d, want reset to the fresh watch point 900", checkpoint.HistoryID)
	}
}

func TestRegisterWatchSeedsCheckpoint(t *testing.T) {
	mail := newFakeMail()
	mail.watchHistoryID = 777
	mail.watchExpiration = time.Now().Add(time.Hour).UnixMilli()

	store := staterepo.NewMemoryStore()
	sync := newTestSynchronizer(mail, store, newFakeClassifier(""), &fakeNotifier{})

	ctx := context.Background()
	historyID, err := sync.RegisterWatch(ctx, testMailbox)
	if err != nil {
		t.Fatal(err)
	}
	if historyID != 777 {
		t.Errorf("history id = %d, want 777", historyID)
	}
	checkpoint, _ := store.GetCheckpoint(ctx, testMailbox)
	if checkpoint == nil || checkpoint.HistoryID != 777 || checkpoint.WatchExpiration != mail.watchExpiration {
		t.Errorf("checkpoint = %+v", checkpoint)
	}
}
