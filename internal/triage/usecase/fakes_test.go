package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	triagedomain "mailsweep-backend/internal/triage/domain"
)

// fakeMail is an in-memory MailService. Mutations are recorded so tests can
// assert exactly which messages were touched.
type fakeMail struct {
	mu sync.Mutex

	messages map[string]*triagedomain.MessageEnvelope
	labels   []Label
	inbox    []string
	history  []*HistoryPage

	watchHistoryID  uint64
	watchExpiration int64
	watchCalls      int

	deleted     []string
	modified    []modifyCall
	created     []string
	historyErr  error
	getErr      map[string]error
	modifyErr   map[string]error
	deleteErr   map[string]error
	listLblErr  error
	listInbErr  error
	historyPage int
}

type modifyCall struct {
	id     string
	add    []string
	remove []string
}

func newFakeMail() *fakeMail {
	return &fakeMail{
		messages:  make(map[string]*triagedomain.MessageEnvelope),
		getErr:    make(map[string]error),
		modifyErr: make(map[string]error),
		deleteErr: make(map[string]error),
	}
}

func (f *fakeMail) addMessage(id, subject, from string) {
	f.messages[id] = &triagedomain.MessageEnvelope{
		ID:      id,
		Subject: subject,
		From:    from,
		To:      "founder@example.com",
		Date:    "Mon, 2 Jun 2025 09:00:00 +0000",
		Snippet: "snippet for " + id,
	}
	f.inbox = append(f.inbox, id)
}

func (f *fakeMail) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted) + len(f.modified)
}

func (f *fakeMail) GetMessage(_ context.Context, _, id string) (*triagedomain.MessageEnvelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	env, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", triagedomain.ErrMessageNotFound, id)
	}
	copied := *env
	return &copied, nil
}

func (f *fakeMail) ListHistory(_ context.Context, _ string, _ uint64, _ string) (*HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if f.historyPage >= len(f.history) {
		return &HistoryPage{}, nil
	}
	page := f.history[f.historyPage]
	f.historyPage++
	return page, nil
}

func (f *fakeMail) ListInbox(_ context.Context, _ string, maxResults int64, pageToken string) (*InboxPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listInbErr != nil {
		return nil, f.listInbErr
	}
	start := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "%d", &start)
	}
	end := start + int(maxResults)
	if end > len(f.inbox) {
		end = len(f.inbox)
	}
	page := &InboxPage{SizeEstimate: int64(len(f.inbox))}
	if start < end {
		page.IDs = append(page.IDs, f.inbox[start:end]...)
	}
	if end < len(f.inbox) {
		page.NextPageToken = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func (f *fakeMail) ModifyLabels(_ context.Context, _, id string, add, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.modifyErr[id]; err != nil {
		return err
	}
	if _, ok := f.messages[id]; !ok {
		return fmt.Errorf("%w: %s", triagedomain.ErrMessageNotFound, id)
	}
	f.modified = append(f.modified, modifyCall{id: id, add: add, remove: remove})
	return nil
}

func (f *fakeMail) Delete(_ context.Context, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := f.messages[id]; !ok {
		return fmt.Errorf("%w: %s", triagedomain.ErrMessageNotFound, id)
	}
	delete(f.messages, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMail) ListLabels(_ context.Context, _ string) ([]Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listLblErr != nil {
		return nil, f.listLblErr
	}
	out := make([]Label, len(f.labels))
	copy(out, f.labels)
	return out, nil
}

func (f *fakeMail) CreateLabel(_ context.Context, _, name string) (Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	label := Label{ID: "lbl-" + name, Name: name}
	f.labels = append(f.labels, label)
	f.created = append(f.created, name)
	return label, nil
}

func (f *fakeMail) Watch(_ context.Context, _ string) (uint64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchCalls++
	return f.watchHistoryID, f.watchExpiration, nil
}

// fakeClassifier returns canned responses keyed by a substring of the
// prompt, falling back to a default response.
type fakeClassifier struct {
	mu        sync.Mutex
	responses map[string]string
	fallback  string
	err       error
	prompts   []string
}

func newFakeClassifier(fallback string) *fakeClassifier {
	return &fakeClassifier{
		responses: make(map[string]string),
		fallback:  fallback,
	}
}

func (f *fakeClassifier) Classify(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	for needle, response := range f.responses {
		if needle != "" && strings.Contains(prompt, needle) {
			return response, nil
		}
	}
	return f.fallback, nil
}

// fakeNotifier records sends and can fail them on demand.
type fakeNotifier struct {
	mu         sync.Mutex
	immediate  []string
	digests    []string
	sendErr    error
	digestErr  error
}

func (f *fakeNotifier) SendImmediate(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.immediate = append(f.immediate, text)
	return nil
}

func (f *fakeNotifier) SendDigest(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.digestErr != nil {
		return f.digestErr
	}
	f.digests = append(f.digests, text)
	return nil
}
