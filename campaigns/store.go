package campaigns

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/campaignrules/rules"
)

// CampaignStore manages campaign persistence and retrieval
type CampaignStore interface {
	// GetCampaign returns ErrNotFound when the campaign does not exist
	GetCampaign(ctx context.Context, id string) (*Campaign, error)

	// ListCampaigns returns one page of campaigns and the total number matching the filter
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]*Campaign, int, error)

	// CreateCampaign assigns an ID when empty and sets the timestamps
	CreateCampaign(ctx context.Context, c *Campaign) error

	// UpdateCampaign replaces every mutable field and preserves CreatedAt
	UpdateCampaign(ctx context.Context, c *Campaign) error

	DeleteCampaign(ctx context.Context, id string) error

	UpdateTargetStatus(ctx context.Context, id string, status rules.Status) error
}

// ScheduleStore manages the weekly activity windows of campaigns
type ScheduleStore interface {
	ListSlots(ctx context.Context, campaignID string) ([]rules.ScheduleSlot, error)

	// ReplaceSlots swaps the whole schedule. A non-empty schedule enables
	// schedule management on the campaign, an empty one disables it.
	ReplaceSlots(ctx context.Context, campaignID string, slots []rules.ScheduleSlot) ([]rules.ScheduleSlot, error)

	// DeleteSlots removes the schedule and disables schedule management
	DeleteSlots(ctx context.Context, campaignID string) error
}

// AuditStore is the append-only trail of evaluations
type AuditStore interface {
	AppendLog(ctx context.Context, entry *EvaluationLogEntry) error

	// ListLogs returns one page of entries, newest first, and the total number of entries
	ListLogs(ctx context.Context, campaignID string, skip, limit int) ([]*EvaluationLogEntry, int, error)
}

// Store is everything the evaluation service and the API need
type Store interface {
	CampaignStore
	ScheduleStore
	AuditStore

	// RecordEvaluation appends the audit entry and, when updateTarget is set,
	// writes entry.NewTarget as the campaign target status. Both happen or neither.
	RecordEvaluation(ctx context.Context, entry *EvaluationLogEntry, updateTarget bool) error

	Ping(ctx context.Context) error
}

// InMemoryStore implements Store using maps guarded by a RWMutex
type InMemoryStore struct {
	mu        sync.RWMutex
	campaigns map[string]*Campaign
	order     []string
	slots     map[string][]rules.ScheduleSlot
	logs      map[string][]*EvaluationLogEntry
	now       func() time.Time
}

// NewInMemoryStore creates an empty in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		campaigns: make(map[string]*Campaign),
		slots:     make(map[string][]rules.ScheduleSlot),
		logs:      make(map[string][]*EvaluationLogEntry),
		now:       time.Now,
	}
}

func (s *InMemoryStore) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.clone(), nil
}

func (s *InMemoryStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]*Campaign, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Campaign
	for _, id := range s.order {
		c := s.campaigns[id]
		if filter.matches(c) {
			matched = append(matched, c)
		}
	}

	total := len(matched)
	page := paginate(matched, filter.Skip, filter.Limit)

	out := make([]*Campaign, 0, len(page))
	for _, c := range page {
		out = append(out, c.clone())
	}
	return out, total, nil
}

func (s *InMemoryStore) CreateCampaign(ctx context.Context, c *Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := s.campaigns[c.ID]; exists {
		return fmt.Errorf("%w: id %s", ErrConflict, c.ID)
	}
	if s.nameTaken(c.Name, c.ID) {
		return fmt.Errorf("%w: name %q", ErrConflict, c.Name)
	}

	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.campaigns[c.ID] = c.clone()
	s.order = append(s.order, c.ID)
	return nil
}

func (s *InMemoryStore) UpdateCampaign(ctx context.Context, c *Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.campaigns[c.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, c.ID)
	}
	if s.nameTaken(c.Name, c.ID) {
		return fmt.Errorf("%w: name %q", ErrConflict, c.Name)
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now()
	s.campaigns[c.ID] = c.clone()
	return nil
}

func (s *InMemoryStore) DeleteCampaign(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(s.campaigns, id)
	delete(s.slots, id)
	delete(s.logs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemoryStore) UpdateTargetStatus(ctx context.Context, id string, status rules.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setTarget(id, status)
}

func (s *InMemoryStore) ListSlots(ctx context.Context, campaignID string) ([]rules.ScheduleSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]rules.ScheduleSlot(nil), s.slots[campaignID]...), nil
}

func (s *InMemoryStore) ReplaceSlots(ctx context.Context, campaignID string, slots []rules.ScheduleSlot) ([]rules.ScheduleSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[campaignID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, campaignID)
	}

	stored := make([]rules.ScheduleSlot, len(slots))
	for i, slot := range slots {
		slot.ID = uuid.NewString()
		stored[i] = slot
	}

	if len(stored) == 0 {
		delete(s.slots, campaignID)
	} else {
		s.slots[campaignID] = stored
	}
	c.ScheduleEnabled = len(stored) > 0
	c.UpdatedAt = s.now()

	return append([]rules.ScheduleSlot(nil), stored...), nil
}

func (s *InMemoryStore) DeleteSlots(ctx context.Context, campaignID string) error {
	_, err := s.ReplaceSlots(ctx, campaignID, nil)
	return err
}

func (s *InMemoryStore) AppendLog(ctx context.Context, entry *EvaluationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLog(entry)
}

func (s *InMemoryStore) ListLogs(ctx context.Context, campaignID string, skip, limit int) ([]*EvaluationLogEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := s.logs[campaignID]
	newestFirst := make([]*EvaluationLogEntry, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, logs[i])
	}

	page := paginate(newestFirst, skip, limit)
	out := make([]*EvaluationLogEntry, len(page))
	for i, entry := range page {
		cp := *entry
		out[i] = &cp
	}
	return out, len(logs), nil
}

func (s *InMemoryStore) RecordEvaluation(ctx context.Context, entry *EvaluationLogEntry, updateTarget bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[entry.CampaignID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, entry.CampaignID)
	}
	if updateTarget {
		if err := s.setTarget(entry.CampaignID, entry.NewTarget); err != nil {
			return err
		}
	}
	return s.appendLog(entry)
}

func (s *InMemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *InMemoryStore) setTarget(id string, status rules.Status) error {
	c, ok := s.campaigns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: invalid target status %q", ErrValidation, status)
	}
	c.TargetStatus = status
	c.UpdatedAt = s.now()
	return nil
}

func (s *InMemoryStore) appendLog(entry *EvaluationLogEntry) error {
	if _, ok := s.campaigns[entry.CampaignID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, entry.CampaignID)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = s.now()

	cp := *entry
	s.logs[entry.CampaignID] = append(s.logs[entry.CampaignID], &cp)
	return nil
}

func (s *InMemoryStore) nameTaken(name, exceptID string) bool {
	for id, c := range s.campaigns {
		if id != exceptID && c.Name == name {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return nil
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
