// Package issues implements the project-scoped issue operations independent of
// any transport. Every failure is reported as an *Error carrying a Kind.
package issues

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/store"
)

// Field names as they appear on the wire.
const (
	FieldID         = "_id"
	FieldProject    = "project"
	FieldIssueTitle = "issue_title"
	FieldIssueText  = "issue_text"
	FieldCreatedBy  = "created_by"
	FieldAssignedTo = "assigned_to"
	FieldStatusText = "status_text"
	FieldCreatedOn  = "created_on"
	FieldUpdatedOn  = "updated_on"
	FieldOpen       = "open"
)

// updatableFields are the fields an update may change.
var updatableFields = []string{
	FieldIssueTitle, FieldIssueText, FieldCreatedBy,
	FieldAssignedTo, FieldStatusText, FieldOpen,
}

// Service maps issue operations onto a Store.
type Service struct {
	store  store.Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for created_on/updated_on.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger used to record swallowed store errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service backed by st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

// Search returns the issues in project that exactly match every filter.
// A "project" filter is always replaced by the project argument.
func (s *Service) Search(ctx context.Context, project string, filters map[string]string) ([]*models.Issue, error) {
	filter, err := parseFilter(filters)
	if err != nil {
		return nil, &Error{Kind: KindSearchFailed, Err: err}
	}
	filter.Project = &project

	found, err := s.store.FindIssues(ctx, filter)
	if err != nil {
		s.logger.Warn("search failed", "project", project, "error", err)
		return nil, &Error{Kind: KindSearchFailed, Err: err}
	}
	if found == nil {
		found = []*models.Issue{}
	}
	return found, nil
}

// parseFilter converts query values to typed exact-match filters.
func parseFilter(filters map[string]string) (store.IssueFilter, error) {
	var f store.IssueFilter
	for key, raw := range filters {
		v := raw
		switch key {
		case FieldID:
			f.ID = &v
		case FieldProject:
			// overwritten by the caller
		case FieldIssueTitle:
			f.IssueTitle = &v
		case FieldIssueText:
			f.IssueText = &v
		case FieldCreatedBy:
			f.CreatedBy = &v
		case FieldAssignedTo:
			f.AssignedTo = &v
		case FieldStatusText:
			f.StatusText = &v
		case FieldOpen:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return f, fmt.Errorf("cast %q to boolean for field %q", v, key)
			}
			f.Open = &b
		case FieldCreatedOn, FieldUpdatedOn:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return f, fmt.Errorf("cast %q to date for field %q", v, key)
			}
			if key == FieldCreatedOn {
				f.CreatedOn = &t
			} else {
				f.UpdatedOn = &t
			}
		default:
			return f, fmt.Errorf("unknown filter field %q", key)
		}
	}
	return f, nil
}

// Create stores a new open issue in project. Optional fields default to "".
func (s *Service) Create(ctx context.Context, project string, p Payload) (*models.Issue, error) {
	now := s.timestamp()
	issue := &models.Issue{
		Project:    project,
		IssueTitle: p.String(FieldIssueTitle),
		IssueText:  p.String(FieldIssueText),
		CreatedBy:  p.String(FieldCreatedBy),
		AssignedTo: p.String(FieldAssignedTo),
		StatusText: p.String(FieldStatusText),
		CreatedOn:  now,
		UpdatedOn:  now,
		Open:       true,
	}

	if err := s.store.CreateIssue(ctx, issue); err != nil {
		s.logger.Debug("create rejected", "project", project, "error", err)
		return nil, &Error{Kind: KindRequiredFieldMissing, Err: err}
	}
	return issue, nil
}

// Update merges the fields sent in p into the issue identified by p["_id"]
// within project and returns the echoed id.
func (s *Service) Update(ctx context.Context, project string, p Payload) (string, error) {
	if !Truthy(p[FieldID]) {
		return "", &Error{Kind: KindMissingID}
	}
	id := echoID(p[FieldID])

	sent := false
	for _, field := range updatableFields {
		if Truthy(p[field]) {
			sent = true
			break
		}
	}
	if !sent {
		return id, &Error{Kind: KindNoUpdateFields, ID: id}
	}

	update := store.IssueUpdate{
		IssueTitle: p.patch(FieldIssueTitle),
		IssueText:  p.patch(FieldIssueText),
		CreatedBy:  p.patch(FieldCreatedBy),
		AssignedTo: p.set(FieldAssignedTo),
		StatusText: p.set(FieldStatusText),
		UpdatedOn:  s.timestamp(),
	}
	if v, ok := p[FieldOpen]; ok && v != nil && v != "" {
		open := CoerceOpen(v)
		update.Open = &open
	}

	if err := s.store.UpdateIssue(ctx, project, id, update); err != nil {
		s.logger.Debug("update failed", "project", project, "_id", id, "error", err)
		return id, &Error{Kind: KindCouldNotUpdate, ID: id, Err: err}
	}
	return id, nil
}

// Delete removes the issue identified by p["_id"] within project and returns
// the echoed id.
func (s *Service) Delete(ctx context.Context, project string, p Payload) (string, error) {
	if !Truthy(p[FieldID]) {
		return "", &Error{Kind: KindMissingID}
	}
	id := echoID(p[FieldID])

	if err := s.store.DeleteIssue(ctx, project, id); err != nil {
		s.logger.Debug("delete failed", "project", project, "_id", id, "error", err)
		return id, &Error{Kind: KindCouldNotDelete, ID: id, Err: err}
	}
	return id, nil
}
