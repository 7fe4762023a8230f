package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/issuetracker/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is the on-disk timestamp format. Fixed-width UTC text keeps
// exact-match filters and ordering stable.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const issueColumns = `id, project, issue_title, issue_text, created_by, assigned_to, status_text, created_on, updated_on, open`

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer; a single connection
	// serializes access and avoids "database is locked" under HTTP load.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindIssues(ctx context.Context, filter IssueFilter) ([]*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues`
	var conditions []string
	var args []any

	addString := func(column string, v *string) {
		if v != nil {
			conditions = append(conditions, column+" = ?")
			args = append(args, *v)
		}
	}

	if filter.ID != nil {
		id, err := ParseID(*filter.ID)
		if err != nil {
			return nil, err
		}
		addString("id", &id)
	}
	addString("project", filter.Project)
	addString("issue_title", filter.IssueTitle)
	addString("issue_text", filter.IssueText)
	addString("created_by", filter.CreatedBy)
	addString("assigned_to", filter.AssignedTo)
	addString("status_text", filter.StatusText)
	if filter.Open != nil {
		conditions = append(conditions, "open = ?")
		args = append(args, boolToInt(*filter.Open))
	}
	if filter.CreatedOn != nil {
		conditions = append(conditions, "created_on = ?")
		args = append(args, formatTime(*filter.CreatedOn))
	}
	if filter.UpdatedOn != nil {
		conditions = append(conditions, "updated_on = ?")
		args = append(args, formatTime(*filter.UpdatedOn))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_on, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue := &models.Issue{}
		var createdOn, updatedOn string
		if err := rows.Scan(&issue.ID, &issue.Project, &issue.IssueTitle, &issue.IssueText, &issue.CreatedBy,
			&issue.AssignedTo, &issue.StatusText, &createdOn, &updatedOn, &issue.Open); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		if issue.CreatedOn, err = parseTime(createdOn); err != nil {
			return nil, err
		}
		if issue.UpdatedOn, err = parseTime(updatedOn); err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if err := prepareIssue(issue); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Project, issue.IssueTitle, issue.IssueText, issue.CreatedBy,
		issue.AssignedTo, issue.StatusText, formatTime(issue.CreatedOn), formatTime(issue.UpdatedOn),
		boolToInt(issue.Open),
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// UpdateIssue merges the non-nil fields of update into the issue matching
// both project and id in a single statement.
func (s *SQLiteStore) UpdateIssue(ctx context.Context, project, id string, update IssueUpdate) error {
	id, err := ParseID(id)
	if err != nil {
		return err
	}

	if update.UpdatedOn.IsZero() {
		update.UpdatedOn = time.Now().UTC()
	}
	sets := []string{"updated_on = ?"}
	args := []any{formatTime(update.UpdatedOn)}

	setString := func(column string, v *string) {
		if v != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *v)
		}
	}
	setString("issue_title", update.IssueTitle)
	setString("issue_text", update.IssueText)
	setString("created_by", update.CreatedBy)
	setString("assigned_to", update.AssignedTo)
	setString("status_text", update.StatusText)
	if update.Open != nil {
		sets = append(sets, "open = ?")
		args = append(args, boolToInt(*update.Open))
	}
	args = append(args, id, project)

	result, err := s.db.ExecContext(ctx,
		`UPDATE issues SET `+strings.Join(sets, ", ")+` WHERE id = ? AND project = ?`, args...)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) DeleteIssue(ctx context.Context, project, id string) error {
	id, err := ParseID(id)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ? AND project = ?", id, project)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
