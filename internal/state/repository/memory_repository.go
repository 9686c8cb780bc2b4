package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	statedomain "mailsweep-backend/internal/state/domain"

	"github.com/google/uuid"
)

// memoryStore is the in-memory fallback used when no database is configured.
// It honors the same contract as the GORM store but loses everything on
// restart, which the unconfigured mode accepts.
type memoryStore struct {
	mu          sync.Mutex
	checkpoints map[string]*statedomain.MailboxCheckpoint
	decisions   map[string]*statedomain.MessageDecision
	alerts      map[string]*statedomain.AlertItem
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() Store {
	return &memoryStore{
		checkpoints: make(map[string]*statedomain.MailboxCheckpoint),
		decisions:   make(map[string]*statedomain.MessageDecision),
		alerts:      make(map[string]*statedomain.AlertItem),
	}
}

func decisionKey(mailboxEmail, gmailID string) string {
	return mailboxEmail + ":" + gmailID
}

func (s *memoryStore) GetCheckpoint(_ context.Context, email string) (*statedomain.MailboxCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[email]
	if !ok {
		return nil, nil
	}
	copied := *cp
	return &copied, nil
}

func (s *memoryStore) SetCheckpoint(_ context.Context, email string, historyID uint64, watchExpiration int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[email]
	if !ok {
		s.checkpoints[email] = &statedomain.MailboxCheckpoint{
			Email:           email,
			HistoryID:       historyID,
			WatchExpiration: watchExpiration,
			UpdatedAt:       time.Now(),
		}
		return nil
	}
	if historyID > cp.HistoryID {
		cp.HistoryID = historyID
	}
	if watchExpiration != 0 {
		cp.WatchExpiration = watchExpiration
	}
	cp.UpdatedAt = time.Now()
	return nil
}

func (s *memoryStore) GetDecision(_ context.Context, mailboxEmail, gmailID string) (*statedomain.MessageDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	decision, ok := s.decisions[decisionKey(mailboxEmail, gmailID)]
	if !ok {
		return nil, nil
	}
	copied := *decision
	return &copied, nil
}

func (s *memoryStore) PutDecision(_ context.Context, decision *statedomain.MessageDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if decision.ID == "" {
		decision.ID = uuid.New().String()
	}
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now()
	}
	copied := *decision
	s.decisions[decisionKey(decision.MailboxEmail, decision.GmailID)] = &copied
	return nil
}

func (s *memoryStore) EnqueueAlert(_ context.Context, alert *statedomain.AlertItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	copied := *alert
	s.alerts[alert.ID] = &copied
	return nil
}

func (s *memoryStore) ListQueuedAlerts(_ context.Context, mailboxEmail string) ([]*statedomain.AlertItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var queued []*statedomain.AlertItem
	for _, alert := range s.alerts {
		if alert.Status != statedomain.AlertQueued {
			continue
		}
		if mailboxEmail != "" && alert.MailboxEmail != mailboxEmail {
			continue
		}
		copied := *alert
		queued = append(queued, &copied)
	}
	sort.Slice(queued, func(i, j int) bool {
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	return queued, nil
}

func (s *memoryStore) MarkAlertSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert, ok := s.alerts[id]; ok {
		alert.Status = statedomain.AlertSent
	}
	return nil
}

func (s *memoryStore) MarkAlertError(_ context.Context, id, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert, ok := s.alerts[id]; ok {
		alert.Status = statedomain.AlertError
		alert.ErrorDetail = detail
	}
	return nil
}
