package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redditmod/modbot/internal/models"
)

// Memory keeps everything in process. It backs tests and the memory driver.
type Memory struct {
	mu          sync.RWMutex
	nextID      int64
	communities map[int64]models.Community
	conditions  map[int64][]models.Condition
	actions     []models.ActionRecord
	reapprovals map[reapprovalKey]*models.ReapprovalRecord
}

var _ Persistence = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		communities: make(map[int64]models.Community),
		conditions:  make(map[int64][]models.Condition),
		reapprovals: make(map[reapprovalKey]*models.ReapprovalRecord),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

type reapprovalKey struct {
	communityID int64
	permalink   string
}

func (m *Memory) Close(ctx context.Context) error { return nil }

func (m *Memory) Migrate(ctx context.Context) error { return nil }

func (m *Memory) ListEnabledCommunities(ctx context.Context) ([]models.Community, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Community
	for _, c := range m.communities {
		if c.Enabled {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) LoadConditions(ctx context.Context, communityID int64) ([]models.Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conds := m.conditions[communityID]
	out := make([]models.Condition, len(conds))
	copy(out, conds)
	return out, nil
}

func (m *Memory) HasAction(ctx context.Context, communityID int64, permalink string, action models.Action) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.actions {
		if rec.CommunityID == communityID && rec.Permalink == permalink && rec.Action == action {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListActionsSince(ctx context.Context, action models.Action, since time.Time) ([]models.ActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ActionRecord
	for _, rec := range m.actions {
		if rec.Action == action && !rec.ActionTime.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) GetReapproval(ctx context.Context, communityID int64, permalink string) (*models.ReapprovalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.reapprovals[reapprovalKey{communityID, permalink}]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *Memory) CommitRun(ctx context.Context, state *RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := state.Community
	stored, ok := m.communities[c.ID]
	if !ok {
		return ErrNotFound
	}
	stored.LastSubmission = c.LastSubmission
	stored.LastSpam = c.LastSpam
	stored.LastComment = c.LastComment
	m.communities[c.ID] = stored

	for _, rec := range state.Actions {
		rec.ID = m.id()
		rec.CommunityID = c.ID
		m.actions = append(m.actions, rec)
	}

	for _, rec := range state.Reapprovals {
		clone := *rec
		clone.CommunityID = c.ID
		if clone.ID == 0 {
			clone.ID = m.id()
		}
		m.reapprovals[reapprovalKey{c.ID, clone.Permalink}] = &clone
	}
	return nil
}

func (m *Memory) UpsertCommunity(ctx context.Context, community *models.Community) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.communities {
		if existing.Name != community.Name {
			continue
		}
		existing.Enabled = community.Enabled
		existing.ReportThreshold = community.ReportThreshold
		existing.AutoReapprove = community.AutoReapprove
		existing.CheckAllConditions = community.CheckAllConditions
		existing.ReportedCommentsOnly = community.ReportedCommentsOnly
		m.communities[id] = existing
		return id, nil
	}

	created := *community
	created.ID = m.id()
	created.LastSubmission = time.Time{}
	created.LastSpam = time.Time{}
	created.LastComment = time.Time{}
	m.communities[created.ID] = created
	return created.ID, nil
}

func (m *Memory) ReplaceConditions(ctx context.Context, communityID int64, conds []models.Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make(map[int64]int64, len(conds))
	out := make([]models.Condition, 0, len(conds))
	for _, c := range conds {
		if c.ParentID != nil {
			mapped, ok := ids[*c.ParentID]
			if !ok {
				return ErrNotFound
			}
			c.ParentID = &mapped
		}
		id := m.id()
		ids[c.ID] = id
		c.ID = id
		c.CommunityID = communityID
		out = append(out, c)
	}
	m.conditions[communityID] = out
	return nil
}
