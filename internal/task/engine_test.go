package task

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/erikvandergeld/focalize/internal/apperr"
	"github.com/erikvandergeld/focalize/internal/auth"
	"github.com/erikvandergeld/focalize/internal/models"
	"github.com/erikvandergeld/focalize/internal/storage/sqlite"
)

var (
	ana   = auth.Principal{ID: "u-ana", DisplayName: "Ana Silva", Entities: []string{"e1"}, Permissions: []string{auth.PermCreateTask}}
	bruno = auth.Principal{ID: "u-bruno", DisplayName: "Bruno Costa", Entities: []string{"e2"}}
	carla = auth.Principal{ID: "u-carla", DisplayName: "Carla Dias", Entities: []string{"e1"}, Permissions: []string{auth.PermCreateTask}}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*Engine, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	source, err := auth.NewStaticSource([]auth.Entry{
		{Principal: ana, Token: "tok-ana"},
		{Principal: bruno, Token: "tok-bruno"},
		{Principal: carla, Token: "tok-carla"},
	})
	if err != nil {
		t.Fatalf("static source: %v", err)
	}

	ctx := context.Background()
	for _, e := range []models.Entity{
		{ID: "e1", Name: "Entity One", CreatedAt: time.Now().UTC()},
		{ID: "e2", Name: "Entity Two", CreatedAt: time.Now().UTC()},
	} {
		if err := store.InsertEntity(ctx, e); err != nil {
			t.Fatalf("insert entity: %v", err)
		}
	}
	if err := store.InsertClient(ctx, models.Client{ID: "c1", Name: "Acme", Entities: []string{"e1"}, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("insert client: %v", err)
	}

	return NewEngine(store, source, testLogger()), store
}

func mustCreate(t *testing.T, e *Engine, caller auth.Principal, in CreateInput) string {
	t.Helper()
	id, err := e.Create(context.Background(), caller, in)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return id
}

func basicInput() CreateInput {
	return CreateInput{
		Title:      "Prepare report",
		ClientID:   "c1",
		AssigneeID: "u-ana",
		Status:     models.StatusPending,
		Type:       models.TypeAdministrative,
		EntityID:   "e1",
	}
}

func TestCreateRequiresPermission(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Create(context.Background(), bruno, basicInput())
	if !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestCreateRequiresEntityMembership(t *testing.T) {
	e, _ := newTestEngine(t)
	in := basicInput()
	in.EntityID = "e2"
	_, err := e.Create(context.Background(), ana, in)
	if !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestCreateValidatesFields(t *testing.T) {
	e, _ := newTestEngine(t)
	cases := map[string]func(*CreateInput){
		"empty title":    func(in *CreateInput) { in.Title = "  " },
		"empty client":   func(in *CreateInput) { in.ClientID = "" },
		"empty assignee": func(in *CreateInput) { in.AssigneeID = "" },
		"bad status":     func(in *CreateInput) { in.Status = "done" },
		"bad type":       func(in *CreateInput) { in.Type = "other" },
	}
	for name, mutate := range cases {
		in := basicInput()
		mutate(&in)
		if _, err := e.Create(context.Background(), ana, in); !apperr.Is(err, apperr.InvalidInput) {
			t.Errorf("%s: expected InvalidInput, got %v", name, err)
		}
	}
}

func TestCreateUnknownProject(t *testing.T) {
	e, _ := newTestEngine(t)
	in := basicInput()
	in.ProjectID = "missing"
	if _, err := e.Create(context.Background(), ana, in); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestEntityIsolation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, e, ana, basicInput())

	visible, err := e.List(ctx, ana)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != id {
		t.Fatalf("expected task %s visible to ana, got %v", id, visible)
	}
	if visible[0].Assignee.Name != "Ana Silva" {
		t.Fatalf("expected resolved assignee name, got %q", visible[0].Assignee.Name)
	}

	hidden, err := e.List(ctx, bruno)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(hidden) != 0 {
		t.Fatalf("task leaked outside caller's entities: %v", hidden)
	}
}

func TestAssigneeGate(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, e, ana, basicInput())

	// Carla shares the entity but is not the assignee.
	now := time.Now().UTC()
	if err := e.UpdateStatus(ctx, carla, id, models.StatusCompleted, &now); !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden for non-assignee update, got %v", err)
	}
	if err := e.Delete(ctx, carla, id); !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden for non-assignee delete, got %v", err)
	}

	// Bruno is outside the entity entirely.
	if err := e.UpdateStatus(ctx, bruno, id, models.StatusCompleted, &now); !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden for wrong entity, got %v", err)
	}
}

func TestCompleteThenArchiveKeepsCompletedAt(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, e, ana, basicInput())

	completedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := e.UpdateStatus(ctx, ana, id, models.StatusCompleted, &completedAt); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := e.UpdateStatus(ctx, ana, id, models.StatusArchived, nil); err != nil {
		t.Fatalf("archive: %v", err)
	}

	got, err := store.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusArchived {
		t.Fatalf("expected archived, got %s", got.Status)
	}
	if got.ArchivedAt == nil {
		t.Fatal("archivedAt not set")
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completedAt) {
		t.Fatalf("completedAt changed by archiving: %v", got.CompletedAt)
	}
}

func TestReopenClearsCompletedAt(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, e, ana, basicInput())

	now := time.Now().UTC()
	if err := e.UpdateStatus(ctx, ana, id, models.StatusCompleted, &now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := e.UpdateStatus(ctx, ana, id, models.StatusPending, nil); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	got, err := store.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CompletedAt != nil {
		t.Fatalf("expected completedAt cleared on reopen, got %v", got.CompletedAt)
	}
}

func TestProjectTaskListSideEffects(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	if err := store.InsertProject(ctx, models.Project{
		ID: "p1", Name: "Migration", ClientID: "c1", EntityID: "e1",
		Status: "active", CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("insert project: %v", err)
	}

	in := basicInput()
	in.ProjectID = "p1"
	id := mustCreate(t, e, ana, in)

	p, err := store.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if len(p.ActiveTasks) != 1 || p.ActiveTasks[0] != id {
		t.Fatalf("active tasks = %v, want [%s]", p.ActiveTasks, id)
	}

	now := time.Now().UTC()
	if err := e.UpdateStatus(ctx, ana, id, models.StatusCompleted, &now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// Completing again appends again; the cache is not de-duplicated.
	if err := e.UpdateStatus(ctx, ana, id, models.StatusCompleted, &now); err != nil {
		t.Fatalf("complete twice: %v", err)
	}

	p, err = store.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if len(p.CompleteTasks) != 2 || p.CompleteTasks[0] != id || p.CompleteTasks[1] != id {
		t.Fatalf("complete tasks = %v, want [%s %s]", p.CompleteTasks, id, id)
	}

	// The derived listing reads the tasks table, so the duplicate never
	// surfaces there.
	derived, err := e.ProjectTasks(ctx, ana, "p1")
	if err != nil {
		t.Fatalf("project tasks: %v", err)
	}
	if len(derived) != 1 || derived[0].ID != id {
		t.Fatalf("derived project tasks = %v", derived)
	}
}

func TestDeleteRemovesTagAssociations(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	if err := store.InsertTag(ctx, models.Tag{ID: "g1", Name: "urgent", Color: "#dc2626"}); err != nil {
		t.Fatalf("insert tag: %v", err)
	}

	in := basicInput()
	in.TagIDs = []string{"g1"}
	id := mustCreate(t, e, ana, in)

	if err := e.Delete(ctx, ana, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetTask(ctx, id); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
	tags, err := store.TagsForTask(ctx, id)
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if len(tags) != 0 {
		t.Fatalf("tag associations survived delete: %v", tags)
	}

	if err := e.Delete(ctx, ana, id); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound for second delete, got %v", err)
	}
}

func TestListArchivedSeparation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	open := mustCreate(t, e, ana, basicInput())
	gone := mustCreate(t, e, ana, basicInput())
	if err := e.UpdateStatus(ctx, ana, gone, models.StatusArchived, nil); err != nil {
		t.Fatalf("archive: %v", err)
	}

	active, err := e.List(ctx, ana)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].ID != open {
		t.Fatalf("active list = %v, want only %s", active, open)
	}

	archived, err := e.ListArchived(ctx, ana)
	if err != nil {
		t.Fatalf("list archived: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != gone {
		t.Fatalf("archived list = %v, want only %s", archived, gone)
	}
}

func TestFullUpdateOverwritesFields(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, e, ana, basicInput())

	err := e.Update(ctx, ana, id, UpdateInput{
		Title:       "Prepare final report",
		Description: "with appendix",
		ClientID:    "c1",
		AssigneeID:  "u-ana",
		Status:      models.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Prepare final report" || got.Description != "with appendix" {
		t.Fatalf("fields not overwritten: %+v", got)
	}
	if got.Status != models.StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("expected completed with timestamp, got %s %v", got.Status, got.CompletedAt)
	}
}

func TestFullUpdateToArchivedStampsArchivedAt(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, e, ana, basicInput())

	completedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := e.UpdateStatus(ctx, ana, id, models.StatusCompleted, &completedAt); err != nil {
		t.Fatalf("complete: %v", err)
	}

	err := e.Update(ctx, ana, id, UpdateInput{
		Title:      "Prepare report",
		ClientID:   "c1",
		AssigneeID: "u-ana",
		Status:     models.StatusArchived,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusArchived {
		t.Fatalf("expected archived, got %s", got.Status)
	}
	if got.ArchivedAt == nil {
		t.Fatal("archivedAt not set by full update")
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completedAt) {
		t.Fatalf("completedAt changed by archiving edit: %v", got.CompletedAt)
	}

	// The archived listing sorts on archivedAt, so the row must carry one.
	archived, err := e.ListArchived(ctx, ana)
	if err != nil {
		t.Fatalf("list archived: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != id {
		t.Fatalf("archived list = %v, want only %s", archived, id)
	}
}

func TestFullUpdateReopenClearsArchivedAt(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, e, ana, basicInput())

	if err := e.UpdateStatus(ctx, ana, id, models.StatusArchived, nil); err != nil {
		t.Fatalf("archive: %v", err)
	}

	err := e.Update(ctx, ana, id, UpdateInput{
		Title:      "Prepare report",
		ClientID:   "c1",
		AssigneeID: "u-ana",
		Status:     models.StatusPending,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ArchivedAt != nil {
		t.Fatalf("expected archivedAt cleared on reopen, got %v", got.ArchivedAt)
	}
}

func TestStatusReopenClearsArchivedAt(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, e, ana, basicInput())

	if err := e.UpdateStatus(ctx, ana, id, models.StatusArchived, nil); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := e.UpdateStatus(ctx, ana, id, models.StatusPending, nil); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	got, err := store.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ArchivedAt != nil {
		t.Fatalf("expected archivedAt cleared on reopen, got %v", got.ArchivedAt)
	}
}

func TestCreateArchivedStampsArchivedAt(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	in := basicInput()
	in.Status = models.StatusArchived
	id := mustCreate(t, e, ana, in)

	got, err := store.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ArchivedAt == nil {
		t.Fatal("archivedAt not set on archived create")
	}
	if got.CompletedAt != nil {
		t.Fatalf("unexpected completedAt on archived create: %v", got.CompletedAt)
	}

	archived, err := e.ListArchived(ctx, ana)
	if err != nil {
		t.Fatalf("list archived: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != id {
		t.Fatalf("archived list = %v, want only %s", archived, id)
	}
}
