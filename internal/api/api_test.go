package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuetracker/internal/issues"
	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/store"
)

func setupTestServer(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(issues.NewService(s, issues.WithLogger(logger)), logger)
	return srv.Router(), s
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func createIssue(t *testing.T, router http.Handler, project string, fields map[string]any) models.Issue {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/issues/"+project, fields)
	var issue models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issue))
	require.NotEmpty(t, issue.ID)
	return issue
}

func requiredFields() map[string]any {
	return map[string]any{
		"issue_title": "Testing Issue",
		"issue_text":  "with testify",
		"created_by":  "Neo Calystro",
	}
}

func TestCreateIssue_EveryField(t *testing.T) {
	router, _ := setupTestServer(t)

	fields := requiredFields()
	fields["assigned_to"] = "Ryan Reynolds"
	fields["status_text"] = "in process"

	w := doJSON(t, router, "POST", "/api/issues/apitest", fields)
	body := decodeMap(t, w)
	assert.Equal(t, "Testing Issue", body["issue_title"])
	assert.Equal(t, "with testify", body["issue_text"])
	assert.Equal(t, "Neo Calystro", body["created_by"])
	assert.Equal(t, "Ryan Reynolds", body["assigned_to"])
	assert.Equal(t, "in process", body["status_text"])
	assert.Equal(t, "apitest", body["project"])
	assert.Equal(t, true, body["open"])
	assert.NotEmpty(t, body["_id"])
	assert.NotEmpty(t, body["created_on"])
	assert.Equal(t, body["created_on"], body["updated_on"])
}

func TestCreateIssue_RequiredOnly(t *testing.T) {
	router, _ := setupTestServer(t)

	body := decodeMap(t, doJSON(t, router, "POST", "/api/issues/apitest", requiredFields()))
	assert.Equal(t, "", body["assigned_to"])
	assert.Equal(t, "", body["status_text"])
}

func TestCreateIssue_MissingRequired(t *testing.T) {
	router, _ := setupTestServer(t)

	fields := requiredFields()
	delete(fields, "created_by")

	body := decodeMap(t, doJSON(t, router, "POST", "/api/issues/apitest", fields))
	assert.Equal(t, map[string]any{"error": "required field(s) missing"}, body)
}

func TestCreateIssue_FormBody(t *testing.T) {
	router, _ := setupTestServer(t)

	form := url.Values{
		"issue_title": {"Form Issue"},
		"issue_text":  {"from a form"},
		"created_by":  {"browser"},
	}
	req := httptest.NewRequest("POST", "/api/issues/apitest", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeMap(t, w)
	assert.Equal(t, "Form Issue", body["issue_title"])
	assert.Equal(t, "apitest", body["project"])
}

func TestCreateIssue_MultipartBody(t *testing.T) {
	router, _ := setupTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("issue_title", "Multipart Issue"))
	require.NoError(t, mw.WriteField("issue_text", "from a multipart form"))
	require.NoError(t, mw.WriteField("created_by", "browser"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/issues/apitest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	body := decodeMap(t, w)
	assert.Equal(t, "Multipart Issue", body["issue_title"])
	assert.Equal(t, "browser", body["created_by"])
}

func TestSearchIssues(t *testing.T) {
	router, _ := setupTestServer(t)

	first := createIssue(t, router, "apitest", requiredFields())
	other := requiredFields()
	other["issue_title"] = "Another"
	second := createIssue(t, router, "apitest", other)
	createIssue(t, router, "elsewhere", requiredFields())

	doJSON(t, router, "PUT", "/api/issues/apitest", map[string]any{"_id": second.ID, "open": "false"})

	var all []models.Issue
	w := doJSON(t, router, "GET", "/api/issues/apitest", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 2)
	for _, i := range all {
		assert.Equal(t, "apitest", i.Project)
	}

	var closed []models.Issue
	w = doJSON(t, router, "GET", "/api/issues/apitest?open=false", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &closed))
	require.Len(t, closed, 1)
	assert.Equal(t, second.ID, closed[0].ID)

	var multi []models.Issue
	w = doJSON(t, router, "GET", "/api/issues/apitest?open=true&issue_title=Testing%20Issue", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &multi))
	require.Len(t, multi, 1)
	assert.Equal(t, first.ID, multi[0].ID)
}

func TestSearchIssues_EmptyIsArray(t *testing.T) {
	router, _ := setupTestServer(t)

	w := doJSON(t, router, "GET", "/api/issues/nothing-here", nil)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestSearchIssues_QueryProjectIgnored(t *testing.T) {
	router, _ := setupTestServer(t)
	createIssue(t, router, "elsewhere", requiredFields())

	w := doJSON(t, router, "GET", "/api/issues/apitest?project=elsewhere", nil)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestSearchIssues_Failure(t *testing.T) {
	router, _ := setupTestServer(t)

	body := decodeMap(t, doJSON(t, router, "GET", "/api/issues/apitest?open=maybe", nil))
	assert.Equal(t, "search failed", body["confirmation"])
	assert.Contains(t, body["message"], "maybe")
}

func TestUpdateIssue_OneField(t *testing.T) {
	router, _ := setupTestServer(t)
	issue := createIssue(t, router, "apitest", requiredFields())

	body := decodeMap(t, doJSON(t, router, "PUT", "/api/issues/apitest", map[string]any{
		"_id":         issue.ID,
		"issue_title": "Use This Title Instead",
	}))
	assert.Equal(t, map[string]any{"result": "successfully updated", "_id": issue.ID}, body)

	var got []models.Issue
	w := doJSON(t, router, "GET", "/api/issues/apitest?_id="+issue.ID, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Use This Title Instead", got[0].IssueTitle)
	assert.Equal(t, issue.IssueText, got[0].IssueText)
	assert.False(t, got[0].UpdatedOn.Before(issue.UpdatedOn))
}

func TestUpdateIssue_MultipleFields(t *testing.T) {
	router, _ := setupTestServer(t)
	issue := createIssue(t, router, "apitest", requiredFields())

	body := decodeMap(t, doJSON(t, router, "PUT", "/api/issues/apitest", map[string]any{
		"_id":         issue.ID,
		"issue_title": "A Brand New Title",
		"issue_text":  "A brand new text",
	}))
	assert.Equal(t, "successfully updated", body["result"])
	assert.Equal(t, issue.ID, body["_id"])
}

func TestUpdateIssue_ClearsOptionalFields(t *testing.T) {
	router, _ := setupTestServer(t)
	fields := requiredFields()
	fields["assigned_to"] = "Ryan Reynolds"
	fields["status_text"] = "in process"
	issue := createIssue(t, router, "apitest", fields)

	body := decodeMap(t, doJSON(t, router, "PUT", "/api/issues/apitest", map[string]any{
		"_id":         issue.ID,
		"issue_title": "t2",
		"assigned_to": "",
		"status_text": "",
	}))
	assert.Equal(t, "successfully updated", body["result"])

	var got []models.Issue
	w := doJSON(t, router, "GET", "/api/issues/apitest?_id="+issue.ID, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "t2", got[0].IssueTitle)
	assert.Equal(t, "", got[0].AssignedTo)
	assert.Equal(t, "", got[0].StatusText)
}

func TestUpdateIssue_CompositeID(t *testing.T) {
	router, _ := setupTestServer(t)

	body := decodeMap(t, doJSON(t, router, "PUT", "/api/issues/apitest", map[string]any{
		"_id":         map[string]any{"a": 1},
		"issue_title": "x",
	}))
	assert.Equal(t, map[string]any{"error": "could not update", "_id": `{"a":1}`}, body)
}

func TestUpdateIssue_MissingID(t *testing.T) {
	router, _ := setupTestServer(t)

	body := decodeMap(t, doJSON(t, router, "PUT", "/api/issues/apitest", map[string]any{
		"issue_title": "A Brand New Title",
	}))
	assert.Equal(t, map[string]any{"error": "missing _id"}, body)
}

func TestUpdateIssue_NoFields(t *testing.T) {
	router, _ := setupTestServer(t)
	issue := createIssue(t, router, "apitest", requiredFields())

	body := decodeMap(t, doJSON(t, router, "PUT", "/api/issues/apitest", map[string]any{"_id": issue.ID}))
	assert.Equal(t, map[string]any{"error": "no update field(s) sent", "_id": issue.ID}, body)
}

func TestUpdateIssue_InvalidID(t *testing.T) {
	router, _ := setupTestServer(t)

	body := decodeMap(t, doJSON(t, router, "PUT", "/api/issues/apitest", map[string]any{
		"_id":         "5fce191cb7",
		"issue_title": "A Brand New Title",
	}))
	assert.Equal(t, map[string]any{"error": "could not update", "_id": "5fce191cb7"}, body)
}

func TestDeleteIssue(t *testing.T) {
	router, _ := setupTestServer(t)
	issue := createIssue(t, router, "apitest", requiredFields())

	body := decodeMap(t, doJSON(t, router, "DELETE", "/api/issues/apitest", map[string]any{"_id": issue.ID}))
	assert.Equal(t, map[string]any{"result": "successfully deleted", "_id": issue.ID}, body)

	w := doJSON(t, router, "GET", "/api/issues/apitest?_id="+issue.ID, nil)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	body = decodeMap(t, doJSON(t, router, "DELETE", "/api/issues/apitest", map[string]any{"_id": issue.ID}))
	assert.Equal(t, map[string]any{"error": "could not delete", "_id": issue.ID}, body)
}

func TestDeleteIssue_InvalidID(t *testing.T) {
	router, _ := setupTestServer(t)

	body := decodeMap(t, doJSON(t, router, "DELETE", "/api/issues/apitest", map[string]any{"_id": "an invalid id"}))
	assert.Equal(t, map[string]any{"error": "could not delete", "_id": "an invalid id"}, body)
}

func TestDeleteIssue_MissingID(t *testing.T) {
	router, _ := setupTestServer(t)

	body := decodeMap(t, doJSON(t, router, "DELETE", "/api/issues/apitest", map[string]any{}))
	assert.Equal(t, map[string]any{"error": "missing _id"}, body)
}

func TestDeleteIssue_FormBody(t *testing.T) {
	router, _ := setupTestServer(t)
	issue := createIssue(t, router, "apitest", requiredFields())

	req := httptest.NewRequest("DELETE", "/api/issues/apitest", strings.NewReader("_id="+issue.ID))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, map[string]any{"result": "successfully deleted", "_id": issue.ID}, decodeMap(t, w))
}

func TestMalformedJSONBody(t *testing.T) {
	router, _ := setupTestServer(t)

	req := httptest.NewRequest("PUT", "/api/issues/apitest", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"error": "missing _id"}, decodeMap(t, w))
}

func TestUnroutedPath(t *testing.T) {
	router, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/issues/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	router, _ := setupTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/issues/apitest", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetrics(t *testing.T) {
	router, _ := setupTestServer(t)
	createIssue(t, router, "apitest", requiredFields())
	doJSON(t, router, "DELETE", "/api/issues/apitest", map[string]any{})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, `issuetracker_operations_total{operation="create",outcome="ok"} 1`)
	assert.Contains(t, out, `issuetracker_operations_total{operation="delete",outcome="missing _id"} 1`)
	assert.Contains(t, out, "issuetracker_http_request_duration_seconds")
}
