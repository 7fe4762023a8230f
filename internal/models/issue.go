package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRequiredFieldMissing is returned when an issue lacks a required field.
var ErrRequiredFieldMissing = errors.New("required field(s) missing")

// Issue represents a tracked issue scoped to a project.
type Issue struct {
	ID         string    `json:"_id"`
	Project    string    `json:"project"`
	IssueTitle string    `json:"issue_title"`
	IssueText  string    `json:"issue_text"`
	CreatedBy  string    `json:"created_by"`
	AssignedTo string    `json:"assigned_to"`
	StatusText string    `json:"status_text"`
	CreatedOn  time.Time `json:"created_on"`
	UpdatedOn  time.Time `json:"updated_on"`
	Open       bool      `json:"open"`
}

// Validate reports which required fields are empty.
func (i *Issue) Validate() error {
	var missing []string
	if i.IssueTitle == "" {
		missing = append(missing, "issue_title")
	}
	if i.IssueText == "" {
		missing = append(missing, "issue_text")
	}
	if i.CreatedBy == "" {
		missing = append(missing, "created_by")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrRequiredFieldMissing, strings.Join(missing, ", "))
	}
	return nil
}
