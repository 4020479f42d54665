// Package task implements the task lifecycle engine and the auto-archive
// sweeper.
package task

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erikvandergeld/focalize/internal/apperr"
	"github.com/erikvandergeld/focalize/internal/auth"
	"github.com/erikvandergeld/focalize/internal/models"
	"github.com/erikvandergeld/focalize/internal/storage/sqlite"
)

// Engine owns the task state machine, the entity visibility rule, and the
// project-aggregate side effects of transitions.
type Engine struct {
	store  *sqlite.Store
	dir    auth.Directory
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine constructs a task engine.
func NewEngine(store *sqlite.Store, dir auth.Directory, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, dir: dir, logger: logger, now: time.Now}
}

// CreateInput carries the fields for a new task.
type CreateInput struct {
	Title       string
	Description string
	ClientID    string
	AssigneeID  string
	Status      string
	Type        string
	EntityID    string
	ProjectID   string
	TagIDs      []string
}

// Create persists a new task for the caller, appending its id to the
// project's active-task cache when a project is referenced. Tag association
// rows are inserted after the task row and are not rolled back if a later
// insert fails; the gap is logged.
func (e *Engine) Create(ctx context.Context, caller auth.Principal, in CreateInput) (string, error) {
	if !caller.Can(auth.PermCreateTask) {
		return "", apperr.New(apperr.Forbidden, "missing %s permission", auth.PermCreateTask)
	}
	if err := validateCreate(in); err != nil {
		return "", err
	}
	if !caller.MemberOf(in.EntityID) {
		return "", apperr.New(apperr.Forbidden, "not a member of entity %q", in.EntityID)
	}

	if in.ProjectID != "" {
		if _, err := e.store.GetProject(ctx, in.ProjectID); err != nil {
			return "", err
		}
	}

	now := e.now().UTC()
	t := models.Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		ClientID:    in.ClientID,
		Assignee:    models.Assignee{ID: in.AssigneeID},
		EntityID:    in.EntityID,
		ProjectID:   in.ProjectID,
		Type:        in.Type,
		Status:      in.Status,
		CreatedAt:   now,
	}
	if in.Status == models.StatusCompleted {
		t.CompletedAt = &now
	}
	if in.Status == models.StatusArchived {
		t.ArchivedAt = &now
	}

	if err := e.store.InsertTask(ctx, t); err != nil {
		return "", err
	}

	if in.ProjectID != "" {
		if err := e.store.AppendProjectActiveTask(ctx, in.ProjectID, t.ID); err != nil {
			e.logger.Error("project active-task append failed after task insert",
				slog.String("task", t.ID), slog.String("project", in.ProjectID),
				slog.String("error", err.Error()))
			return "", err
		}
	}

	if len(in.TagIDs) > 0 {
		if err := e.store.TagTask(ctx, t.ID, in.TagIDs); err != nil {
			e.logger.Error("tag association failed after task insert",
				slog.String("task", t.ID), slog.String("error", err.Error()))
			return "", err
		}
	}

	return t.ID, nil
}

func validateCreate(in CreateInput) error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return apperr.New(apperr.InvalidInput, "title is required")
	case in.ClientID == "":
		return apperr.New(apperr.InvalidInput, "client is required")
	case in.AssigneeID == "":
		return apperr.New(apperr.InvalidInput, "assignee is required")
	case in.EntityID == "":
		return apperr.New(apperr.InvalidInput, "entity is required")
	}
	if _, ok := models.ValidTaskStatuses[in.Status]; !ok {
		return apperr.New(apperr.InvalidInput, "unknown status %q", in.Status)
	}
	if _, ok := models.ValidTaskTypes[in.Type]; !ok {
		return apperr.New(apperr.InvalidInput, "unknown task type %q", in.Type)
	}
	return nil
}

// List returns the caller's visible, non-archived tasks with tags, comments
// and attachments attached and display names resolved.
func (e *Engine) List(ctx context.Context, caller auth.Principal) ([]models.Task, error) {
	tasks, err := e.store.ListTasks(ctx, caller.Entities)
	if err != nil {
		return nil, err
	}
	return e.hydrate(ctx, tasks)
}

// ListArchived mirrors List for archived tasks, most recently archived
// first.
func (e *Engine) ListArchived(ctx context.Context, caller auth.Principal) ([]models.Task, error) {
	tasks, err := e.store.ListArchivedTasks(ctx, caller.Entities)
	if err != nil {
		return nil, err
	}
	return e.hydrate(ctx, tasks)
}

// ProjectTasks derives the task list of a project from the tasks table, the
// source of truth, rather than the project's cached id arrays. The entity
// filter applies to the project itself.
func (e *Engine) ProjectTasks(ctx context.Context, caller auth.Principal, projectID string) ([]models.Task, error) {
	p, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !caller.MemberOf(p.EntityID) {
		return nil, apperr.New(apperr.Forbidden, "not permitted to view this entity's projects")
	}
	tasks, err := e.store.TasksForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return e.hydrate(ctx, tasks)
}

func (e *Engine) hydrate(ctx context.Context, tasks []models.Task) ([]models.Task, error) {
	names := make(map[string]string)
	for i := range tasks {
		t := &tasks[i]

		tags, err := e.store.TagsForTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		t.Tags = tags

		comments, err := e.store.CommentsForTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		for j := range comments {
			comments[j].Author = e.displayName(ctx, names, comments[j].AuthorID)
		}
		t.Comments = comments

		attachments, err := e.store.AttachmentsForTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		t.Attachments = attachments

		if t.Assignee.Assigned() {
			t.Assignee.Name = e.displayName(ctx, names, t.Assignee.ID)
		}
	}
	return tasks, nil
}

// displayName resolves a principal id, caching lookups per call. Unknown ids
// fall back to the raw id rather than failing the read.
func (e *Engine) displayName(ctx context.Context, cache map[string]string, id string) string {
	if name, ok := cache[id]; ok {
		return name
	}
	name := id
	if p, err := e.dir.Principal(ctx, id); err == nil {
		name = p.DisplayName
	}
	cache[id] = name
	return name
}

// authorizeWrite loads the task and enforces the entity and assignee gates
// shared by status updates, edits and deletion.
func (e *Engine) authorizeWrite(ctx context.Context, caller auth.Principal, taskID string) (models.Task, error) {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	if !caller.MemberOf(t.EntityID) {
		return models.Task{}, apperr.New(apperr.Forbidden, "not permitted to update this entity's tasks")
	}
	if t.Assignee.ID != caller.ID {
		return models.Task{}, apperr.New(apperr.Forbidden, "not the assignee of task %q", taskID)
	}
	return t, nil
}

// UpdateStatus applies a status transition. Archiving stamps archivedAt and
// leaves completedAt untouched; any other transition overwrites completedAt
// with the given value (nil clears it, e.g. when reopening). Completing a
// task that belongs to a project appends its id to the project's
// complete-task cache.
func (e *Engine) UpdateStatus(ctx context.Context, caller auth.Principal, taskID, status string, completedAt *time.Time) error {
	if _, ok := models.ValidTaskStatuses[status]; !ok {
		return apperr.New(apperr.InvalidInput, "unknown status %q", status)
	}

	t, err := e.authorizeWrite(ctx, caller, taskID)
	if err != nil {
		return err
	}

	if status == models.StatusArchived {
		return e.store.ArchiveTask(ctx, taskID, e.now().UTC())
	}

	if err := e.store.SetTaskStatus(ctx, taskID, status, completedAt); err != nil {
		return err
	}
	return e.recordCompletion(ctx, t, status)
}

// UpdateInput carries the fields overwritten by a full edit.
type UpdateInput struct {
	Title       string
	Description string
	ClientID    string
	AssigneeID  string
	Status      string
}

// Update overwrites the editable fields in one write, with the same
// authorization and completion side effect as UpdateStatus.
func (e *Engine) Update(ctx context.Context, caller auth.Principal, taskID string, in UpdateInput) error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return apperr.New(apperr.InvalidInput, "title is required")
	case in.ClientID == "":
		return apperr.New(apperr.InvalidInput, "client is required")
	case in.AssigneeID == "":
		return apperr.New(apperr.InvalidInput, "assignee is required")
	}
	if _, ok := models.ValidTaskStatuses[in.Status]; !ok {
		return apperr.New(apperr.InvalidInput, "unknown status %q", in.Status)
	}

	t, err := e.authorizeWrite(ctx, caller, taskID)
	if err != nil {
		return err
	}

	completedAt := t.CompletedAt
	if in.Status == models.StatusCompleted && completedAt == nil {
		now := e.now().UTC()
		completedAt = &now
	}
	if in.Status != models.StatusCompleted && in.Status != models.StatusArchived {
		completedAt = nil
	}

	// archivedAt is non-null exactly while the task is archived: an edit into
	// archived stamps it (keeping an earlier stamp), any other target clears
	// it.
	var archivedAt *time.Time
	if in.Status == models.StatusArchived {
		archivedAt = t.ArchivedAt
		if archivedAt == nil {
			now := e.now().UTC()
			archivedAt = &now
		}
	}

	if err := e.store.UpdateTaskFields(ctx, taskID, strings.TrimSpace(in.Title),
		strings.TrimSpace(in.Description), in.ClientID, in.AssigneeID, in.Status, completedAt, archivedAt); err != nil {
		return err
	}
	return e.recordCompletion(ctx, t, in.Status)
}

// recordCompletion appends the task id to its project's complete-task cache
// when the task just transitioned into completed.
func (e *Engine) recordCompletion(ctx context.Context, t models.Task, newStatus string) error {
	if newStatus != models.StatusCompleted || t.ProjectID == "" {
		return nil
	}
	if err := e.store.AppendProjectCompleteTask(ctx, t.ProjectID, t.ID); err != nil {
		e.logger.Error("project complete-task append failed after status change",
			slog.String("task", t.ID), slog.String("project", t.ProjectID),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Delete removes the task and its tag associations. Project task-id caches
// are not pruned; derived project listings read the tasks table instead.
func (e *Engine) Delete(ctx context.Context, caller auth.Principal, taskID string) error {
	if _, err := e.authorizeWrite(ctx, caller, taskID); err != nil {
		return err
	}
	return e.store.DeleteTask(ctx, taskID)
}
