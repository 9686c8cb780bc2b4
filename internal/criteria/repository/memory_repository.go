package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	criteriadomain "mailsweep-backend/internal/criteria/domain"

	"github.com/google/uuid"
)

// memoryRepository keeps criteria in process memory. Used when no database
// is configured, and as the fake in tests.
type memoryRepository struct {
	mu    sync.Mutex
	items map[string]*criteriadomain.Criterion
	seq   int
}

// NewMemoryRepository creates an empty in-memory criteria repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{items: make(map[string]*criteriadomain.Criterion)}
}

func (r *memoryRepository) sorted() []*criteriadomain.Criterion {
	items := make([]*criteriadomain.Criterion, 0, len(r.items))
	for _, item := range r.items {
		copied := *item
		items = append(items, &copied)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func (r *memoryRepository) ListEnabled(_ context.Context) ([]*criteriadomain.Criterion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var enabled []*criteriadomain.Criterion
	for _, item := range r.sorted() {
		if item.Enabled {
			enabled = append(enabled, item)
		}
	}
	return enabled, nil
}

func (r *memoryRepository) List(_ context.Context) ([]*criteriadomain.Criterion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(), nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (*criteriadomain.Criterion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (r *memoryRepository) Append(_ context.Context, text string) (*criteriadomain.Criterion, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return nil, errors.New("criterion text must be non-empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Nudge CreatedAt forward so creation order survives coarse clocks.
	r.seq++
	now := time.Now().Add(time.Duration(r.seq) * time.Microsecond)
	item := &criteriadomain.Criterion{
		ID:        uuid.New().String(),
		Text:      cleaned,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.items[item.ID] = item
	copied := *item
	return &copied, nil
}

func (r *memoryRepository) Update(_ context.Context, id string, text *string, enabled *bool) (*criteriadomain.Criterion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if text != nil {
		cleaned := strings.TrimSpace(*text)
		if cleaned == "" {
			return nil, errors.New("criterion text must be non-empty")
		}
		item.Text = cleaned
	}
	if enabled != nil {
		item.Enabled = *enabled
	}
	item.UpdatedAt = time.Now()
	copied := *item
	return &copied, nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}
