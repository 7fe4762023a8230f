package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/issuetracker/internal/models"
)

var (
	// ErrNotFound is returned when no issue matches both id and project.
	ErrNotFound = errors.New("issue not found")
	// ErrInvalidID is returned for identifiers that are not valid ULIDs.
	ErrInvalidID = errors.New("invalid issue id")
)

// IssueFilter specifies exact-match filters for finding issues.
// Nil fields are not filtered on.
type IssueFilter struct {
	ID         *string
	Project    *string
	IssueTitle *string
	IssueText  *string
	CreatedBy  *string
	AssignedTo *string
	StatusText *string
	Open       *bool
	CreatedOn  *time.Time
	UpdatedOn  *time.Time
}

// IssueUpdate holds the fields to merge into an existing issue.
// Nil fields are left untouched.
type IssueUpdate struct {
	IssueTitle *string
	IssueText  *string
	CreatedBy  *string
	AssignedTo *string
	StatusText *string
	Open       *bool
	UpdatedOn  time.Time
}

// Store defines the persistence interface for issues.
type Store interface {
	FindIssues(ctx context.Context, filter IssueFilter) ([]*models.Issue, error)
	CreateIssue(ctx context.Context, issue *models.Issue) error
	UpdateIssue(ctx context.Context, project, id string, update IssueUpdate) error
	DeleteIssue(ctx context.Context, project, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ParseID checks that id is a syntactically valid issue identifier and
// returns its canonical form.
func ParseID(id string) (string, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return u.String(), nil
}

// newID generates a new ULID string.
func newID() string {
	return ulid.Make().String()
}

// prepareIssue validates a new issue and fills in its id and timestamps.
func prepareIssue(issue *models.Issue) error {
	if err := issue.Validate(); err != nil {
		return err
	}
	if issue.ID == "" {
		issue.ID = newID()
	}
	if issue.CreatedOn.IsZero() {
		issue.CreatedOn = time.Now().UTC()
	}
	if issue.UpdatedOn.IsZero() || issue.UpdatedOn.Before(issue.CreatedOn) {
		issue.UpdatedOn = issue.CreatedOn
	}
	return nil
}
