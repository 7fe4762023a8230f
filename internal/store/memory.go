package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joescharf/issuetracker/internal/models"
)

// MemoryStore implements Store in process memory. Data is lost on Close.
type MemoryStore struct {
	mu     sync.RWMutex
	issues map[string]models.Issue
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{issues: make(map[string]models.Issue)}
}

// Migrate is a no-op for the in-memory store.
func (m *MemoryStore) Migrate(context.Context) error { return nil }

// Close discards all stored issues.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues = make(map[string]models.Issue)
	return nil
}

func (m *MemoryStore) FindIssues(_ context.Context, filter IssueFilter) ([]*models.Issue, error) {
	if filter.ID != nil {
		id, err := ParseID(*filter.ID)
		if err != nil {
			return nil, err
		}
		filter.ID = &id
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var issues []*models.Issue
	for _, issue := range m.issues {
		if matches(issue, filter) {
			issue := issue
			issues = append(issues, &issue)
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		if !issues[i].CreatedOn.Equal(issues[j].CreatedOn) {
			return issues[i].CreatedOn.Before(issues[j].CreatedOn)
		}
		return issues[i].ID < issues[j].ID
	})
	return issues, nil
}

func matches(issue models.Issue, f IssueFilter) bool {
	eq := func(want *string, got string) bool { return want == nil || *want == got }
	eqTime := func(want *time.Time, got time.Time) bool { return want == nil || want.Equal(got) }

	return eq(f.ID, issue.ID) &&
		eq(f.Project, issue.Project) &&
		eq(f.IssueTitle, issue.IssueTitle) &&
		eq(f.IssueText, issue.IssueText) &&
		eq(f.CreatedBy, issue.CreatedBy) &&
		eq(f.AssignedTo, issue.AssignedTo) &&
		eq(f.StatusText, issue.StatusText) &&
		(f.Open == nil || *f.Open == issue.Open) &&
		eqTime(f.CreatedOn, issue.CreatedOn) &&
		eqTime(f.UpdatedOn, issue.UpdatedOn)
}

func (m *MemoryStore) CreateIssue(_ context.Context, issue *models.Issue) error {
	if err := prepareIssue(issue); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.issues[issue.ID]; exists {
		return fmt.Errorf("create issue: duplicate id %s", issue.ID)
	}
	m.issues[issue.ID] = *issue
	return nil
}

func (m *MemoryStore) UpdateIssue(_ context.Context, project, id string, update IssueUpdate) error {
	id, err := ParseID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.issues[id]
	if !ok || issue.Project != project {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&issue.IssueTitle, update.IssueTitle)
	set(&issue.IssueText, update.IssueText)
	set(&issue.CreatedBy, update.CreatedBy)
	set(&issue.AssignedTo, update.AssignedTo)
	set(&issue.StatusText, update.StatusText)
	if update.Open != nil {
		issue.Open = *update.Open
	}
	issue.UpdatedOn = update.UpdatedOn
	if issue.UpdatedOn.IsZero() {
		issue.UpdatedOn = time.Now().UTC()
	}

	m.issues[id] = issue
	return nil
}

func (m *MemoryStore) DeleteIssue(_ context.Context, project, id string) error {
	id, err := ParseID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.issues[id]
	if !ok || issue.Project != project {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.issues, id)
	return nil
}
