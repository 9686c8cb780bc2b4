package notification

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func testService() *Service {
	return &Service{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		topicName:     "gmail-updates",
		subName:       "gmail-updates-sub",
		lastHistoryID: make(map[string]uint64),
	}
}

func TestIsDuplicate(t *testing.T) {
	s := testService()

	if s.isDuplicate("a@example.com", 100) {
		t.Error("first notification should not be a duplicate")
	}
	if !s.isDuplicate("a@example.com", 100) {
		t.Error("same history id again should be a duplicate")
	}
	if !s.isDuplicate("a@example.com", 90) {
		t.Error("older history id should be a duplicate")
	}
	if s.isDuplicate("a@example.com", 110) {
		t.Error("newer history id should pass")
	}
	// Mailboxes are tracked independently.
	if s.isDuplicate("b@example.com", 100) {
		t.Error("other mailbox should have its own watermark")
	}
}

func TestHandleMessageDropsBadPayloads(t *testing.T) {
	s := testService()

	// Neither payload reaches the synchronizer (which is nil here and would
	// panic if called).
	s.handleMessage(context.Background(), []byte("not json"))
	s.handleMessage(context.Background(), []byte(`{"historyId": 42}`))

	if len(s.lastHistoryID) != 0 {
		t.Errorf("watermarks = %v, bad payloads must not record state", s.lastHistoryID)
	}
}
