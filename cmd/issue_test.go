package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuetracker/internal/issues"
	"github.com/joescharf/issuetracker/internal/models"
)

// issueEnv sets up testEnv with captured output and cleared issue flags.
func issueEnv(t *testing.T) *bytes.Buffer {
	t.Helper()
	testEnv(t)

	out := &bytes.Buffer{}
	ui.Out = out
	ui.ErrOut = &bytes.Buffer{}

	issueTitle, issueText, issueCreatedBy = "", "", ""
	issueAssignedTo, issueStatusText, issueOpen = "", "", ""
	issueFilters = nil
	issueJSON = false
	t.Cleanup(func() {
		issueFilters = nil
		issueJSON = false
	})
	return out
}

func addIssue(t *testing.T, project, title string) *models.Issue {
	t.Helper()
	svc, err := getService()
	require.NoError(t, err)
	issue, err := svc.Create(context.Background(), project, issues.Payload{
		issues.FieldIssueTitle: title,
		issues.FieldIssueText:  "steps to reproduce",
		issues.FieldCreatedBy:  "joe",
	})
	require.NoError(t, err)
	return issue
}

func TestIssueAddRun(t *testing.T) {
	out := issueEnv(t)
	issueTitle = "Login broken"
	issueText = "500 on submit"
	issueCreatedBy = "joe"
	issueAssignedTo = "ann"

	require.NoError(t, issueAddRun(context.Background(), "apitest"))
	assert.Contains(t, out.String(), "Created issue")

	svc, err := getService()
	require.NoError(t, err)
	found, err := svc.Search(context.Background(), "apitest", nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Login broken", found[0].IssueTitle)
	assert.Equal(t, "ann", found[0].AssignedTo)
	assert.True(t, found[0].Open)
}

func TestIssueAddRun_MissingFields(t *testing.T) {
	issueEnv(t)
	issueTitle = "Only a title"

	err := issueAddRun(context.Background(), "apitest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required field(s) missing")
}

func TestIssueAddRun_DryRun(t *testing.T) {
	issueEnv(t)
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })

	issueTitle, issueText, issueCreatedBy = "t", "x", "joe"
	require.NoError(t, issueAddRun(context.Background(), "apitest"))

	svc, err := getService()
	require.NoError(t, err)
	found, err := svc.Search(context.Background(), "apitest", nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestIssueListRun(t *testing.T) {
	out := issueEnv(t)
	addIssue(t, "apitest", "first issue")
	addIssue(t, "apitest", "second issue")
	addIssue(t, "other", "elsewhere")

	require.NoError(t, issueListRun(context.Background(), "apitest"))
	assert.Contains(t, out.String(), "first issue")
	assert.Contains(t, out.String(), "second issue")
	assert.NotContains(t, out.String(), "elsewhere")
}

func TestIssueListRun_Empty(t *testing.T) {
	out := issueEnv(t)

	require.NoError(t, issueListRun(context.Background(), "apitest"))
	assert.Contains(t, out.String(), "No issues found")
}

func TestIssueListRun_FilterJSON(t *testing.T) {
	out := issueEnv(t)
	first := addIssue(t, "apitest", "first issue")
	addIssue(t, "apitest", "second issue")

	issueFilters = map[string]string{issues.FieldIssueTitle: "first issue"}
	issueJSON = true
	require.NoError(t, issueListRun(context.Background(), "apitest"))

	var found []models.Issue
	require.NoError(t, json.Unmarshal(out.Bytes(), &found))
	require.Len(t, found, 1)
	assert.Equal(t, first.ID, found[0].ID)
}

func TestIssueListRun_BadFilter(t *testing.T) {
	issueEnv(t)
	issueFilters = map[string]string{issues.FieldOpen: "sometimes"}

	err := issueListRun(context.Background(), "apitest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search failed")
}

func TestIssueShowRun(t *testing.T) {
	out := issueEnv(t)
	issue := addIssue(t, "apitest", "show me")

	require.NoError(t, issueShowRun(context.Background(), "apitest", issue.ID))
	assert.Contains(t, out.String(), "show me")
	assert.Contains(t, out.String(), "steps to reproduce")

	err := issueShowRun(context.Background(), "other", issue.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestIssueUpdateRun(t *testing.T) {
	out := issueEnv(t)
	issue := addIssue(t, "apitest", "to update")

	err := issueUpdateRun(context.Background(), "apitest", issue.ID, issues.Payload{
		issues.FieldStatusText: "triaged",
		issues.FieldOpen:       "false",
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Updated issue")

	svc, err := getService()
	require.NoError(t, err)
	found, err := svc.Search(context.Background(), "apitest", map[string]string{issues.FieldID: issue.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "triaged", found[0].StatusText)
	assert.False(t, found[0].Open)
	assert.Equal(t, "to update", found[0].IssueTitle)
}

func TestIssueUpdateRun_NoFields(t *testing.T) {
	issueEnv(t)
	issue := addIssue(t, "apitest", "to update")

	err := issueUpdateRun(context.Background(), "apitest", issue.ID, issues.Payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no update field(s) sent")
}

func TestIssueDeleteRun(t *testing.T) {
	out := issueEnv(t)
	issue := addIssue(t, "apitest", "to delete")

	require.NoError(t, issueDeleteRun(context.Background(), "apitest", issue.ID))
	assert.Contains(t, out.String(), "Deleted issue")

	err := issueDeleteRun(context.Background(), "apitest", issue.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not delete")
}

func TestIssueDeleteRun_WrongProject(t *testing.T) {
	issueEnv(t)
	issue := addIssue(t, "apitest", "to delete")

	err := issueDeleteRun(context.Background(), "other", issue.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not delete")
}
