package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erikvandergeld/focalize/internal/apperr"
	"github.com/erikvandergeld/focalize/internal/models"
)

const taskColumns = `t.id, t.title, t.description, t.client_id, COALESCE(c.name, ''),
        t.assignee_id, t.entity_id, COALESCE(e.name, ''), t.project_id, COALESCE(p.name, ''),
        t.task_type, t.status, t.created_at, t.completed_at, t.archived_at`

const taskFrom = ` FROM tasks t
        LEFT JOIN clients c ON c.id = t.client_id
        LEFT JOIN entities e ON e.id = t.entity_id
        LEFT JOIN projects p ON p.id = t.project_id`

func scanTask(row interface{ Scan(...any) error }) (models.Task, error) {
	var (
		t          models.Task
		assignee   sql.NullString
		projectID  sql.NullString
		completed  sql.NullTime
		archivedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.ClientID, &t.ClientName,
		&assignee, &t.EntityID, &t.EntityName, &projectID, &t.ProjectName,
		&t.Type, &t.Status, &t.CreatedAt, &completed, &archivedAt)
	if err != nil {
		return models.Task{}, err
	}
	if assignee.Valid {
		t.Assignee.ID = assignee.String
	}
	if projectID.Valid {
		t.ProjectID = projectID.String
	}
	if completed.Valid {
		at := completed.Time
		t.CompletedAt = &at
	}
	if archivedAt.Valid {
		at := archivedAt.Time
		t.ArchivedAt = &at
	}
	return t, nil
}

// InsertTask persists a new task row.
func (s *Store) InsertTask(ctx context.Context, t models.Task) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks
        (id, title, description, client_id, assignee_id, entity_id, project_id, task_type, status, created_at, completed_at, archived_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.ClientID, nullString(t.Assignee.ID),
		t.EntityID, nullString(t.ProjectID), t.Type, t.Status, t.CreatedAt,
		nullTime(t.CompletedAt), nullTime(t.ArchivedAt))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a task row by id with client, entity and project names
// joined in. Tags, comments and attachments are not attached.
func (s *Store) GetTask(ctx context.Context, id string) (models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+taskFrom+` WHERE t.id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, apperr.New(apperr.NotFound, "task %q not found", id)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns non-archived tasks whose entity is in entityIDs, newest
// first.
func (s *Store) ListTasks(ctx context.Context, entityIDs []string) ([]models.Task, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + taskColumns + taskFrom +
		` WHERE t.status != ? AND t.entity_id IN (` + placeholders(len(entityIDs)) + `)
        ORDER BY t.created_at DESC, t.id`
	args := append([]any{models.StatusArchived}, toAny(entityIDs)...)
	return s.queryTasks(ctx, query, args...)
}

// ListArchivedTasks returns archived tasks whose entity is in entityIDs,
// most recently archived first.
func (s *Store) ListArchivedTasks(ctx context.Context, entityIDs []string) ([]models.Task, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + taskColumns + taskFrom +
		` WHERE t.status = ? AND t.entity_id IN (` + placeholders(len(entityIDs)) + `)
        ORDER BY t.archived_at DESC, t.id`
	args := append([]any{models.StatusArchived}, toAny(entityIDs)...)
	return s.queryTasks(ctx, query, args...)
}

// TasksForProject derives a project's task list from the tasks table.
func (s *Store) TasksForProject(ctx context.Context, projectID string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + taskFrom + ` WHERE t.project_id = ? ORDER BY t.created_at, t.id`
	return s.queryTasks(ctx, query, projectID)
}

// CompletedTasksBefore returns tasks in status completed whose completion
// time is at or before cutoff. Used by the auto-archive sweeper.
func (s *Store) CompletedTasksBefore(ctx context.Context, cutoff time.Time) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + taskFrom +
		` WHERE t.status = ? AND t.completed_at IS NOT NULL AND t.completed_at <= ? ORDER BY t.completed_at`
	return s.queryTasks(ctx, query, models.StatusCompleted, cutoff)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// SetTaskStatus writes a non-archive status transition: status is replaced,
// completed_at is overwritten with the given value (nil clears it, e.g. when
// a task is reopened) and archived_at is cleared so it stays non-null only
// while the task is archived.
func (s *Store) SetTaskStatus(ctx context.Context, id, status string, completedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, completed_at = ?, archived_at = NULL WHERE id = ?`,
		status, nullTime(completedAt), id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return requireAffected(res, "task", id)
}

// ArchiveTask marks a task archived at the given instant. completed_at is
// left untouched.
func (s *Store) ArchiveTask(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, archived_at = ? WHERE id = ?`,
		models.StatusArchived, at, id)
	if err != nil {
		return fmt.Errorf("archive task: %w", err)
	}
	return requireAffected(res, "task", id)
}

// ArchiveCompletedTask archives a task only if it is still in status
// completed, reporting whether a transition happened. Re-running it against
// an already-archived task is a no-op.
func (s *Store) ArchiveCompletedTask(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, archived_at = ? WHERE id = ? AND status = ?`,
		models.StatusArchived, at, id, models.StatusCompleted)
	if err != nil {
		return false, fmt.Errorf("archive completed task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateTaskFields overwrites the editable task fields in one statement.
// archived_at is written alongside status so the pair stays consistent when
// a full edit archives or unarchives the task.
func (s *Store) UpdateTaskFields(ctx context.Context, id, title, description, clientID, assigneeID, status string, completedAt, archivedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks
        SET title = ?, description = ?, client_id = ?, assignee_id = ?, status = ?, completed_at = ?, archived_at = ?
        WHERE id = ?`,
		title, description, clientID, nullString(assigneeID), status,
		nullTime(completedAt), nullTime(archivedAt), id)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireAffected(res, "task", id)
}

// DeleteTask removes the task's tag associations and then the task row. The
// tag deletion is unconditional; a missing task surfaces as NotFound from the
// row deletion.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete task tags: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireAffected(res, "task", id)
}

// TagTask creates one association row per tag id, preserving order. Rows are
// inserted independently of the task insert; a failure part-way leaves the
// earlier associations in place.
func (s *Store) TagTask(ctx context.Context, taskID string, tagIDs []string) error {
	for i, tagID := range tagIDs {
		_, err := s.db.ExecContext(ctx, `INSERT INTO task_tags (task_id, tag_id, position) VALUES (?, ?, ?)`,
			taskID, tagID, i)
		if err != nil {
			return fmt.Errorf("tag task %s with %s: %w", taskID, tagID, err)
		}
	}
	return nil
}

// TagsForTask returns the task's tags in association order.
func (s *Store) TagsForTask(ctx context.Context, taskID string) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT g.id, g.name, g.color
        FROM task_tags tt JOIN tags g ON g.id = tt.tag_id
        WHERE tt.task_id = ? ORDER BY tt.position`, taskID)
	if err != nil {
		return nil, fmt.Errorf("tags for task: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var g models.Tag
		if err := rows.Scan(&g.ID, &g.Name, &g.Color); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, g)
	}
	return tags, rows.Err()
}

func requireAffected(res sql.Result, kind, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.New(apperr.NotFound, "%s %q not found", kind, id)
	}
	return nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
