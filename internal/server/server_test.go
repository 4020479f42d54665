package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/erikvandergeld/focalize/internal/attach"
	"github.com/erikvandergeld/focalize/internal/auth"
	"github.com/erikvandergeld/focalize/internal/comment"
	"github.com/erikvandergeld/focalize/internal/models"
	"github.com/erikvandergeld/focalize/internal/notify"
	"github.com/erikvandergeld/focalize/internal/storage/sqlite"
	"github.com/erikvandergeld/focalize/internal/task"
)

type env struct {
	srv     *Server
	store   *sqlite.Store
	sweeper *task.Sweeper
}

func newTestEnv(t *testing.T) *env {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	source, err := auth.NewStaticSource([]auth.Entry{
		{Principal: auth.Principal{ID: "u-ana", DisplayName: "Ana Silva", Entities: []string{"e1"}, Permissions: []string{auth.PermCreateTask}}, Token: "tok-ana"},
		{Principal: auth.Principal{ID: "u-bruno", DisplayName: "Bruno Costa", Entities: []string{"e2"}}, Token: "tok-bruno"},
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

	files, err := attach.NewFSStore(t.TempDir(), "/files")
	if err != nil {
		t.Fatalf("attachment store: %v", err)
	}

	ledger := notify.NewLedger(store, source, logger)
	engine := task.NewEngine(store, source, logger)
	processor := comment.NewProcessor(store, ledger, source, logger)
	sweeper := task.NewSweeper(store, ledger, logger, 0, 0)

	srv := New(Config{
		Store:       store,
		Tasks:       engine,
		Comments:    processor,
		Ledger:      ledger,
		Attachments: files,
		Identity:    source,
		Directory:   source,
		Logger:      logger,
		FilesDir:    files.Root(),
	})

	return &env{srv: srv, store: store, sweeper: sweeper}
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func (e *env) createTask(t *testing.T, token string, body map[string]any) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/tasks", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: status %d body %s", rec.Code, rec.Body.String())
	}
	id, _ := decode(t, rec)["task_id"].(string)
	if id == "" {
		t.Fatalf("no task id in %s", rec.Body.String())
	}
	return id
}

func taskBody() map[string]any {
	return map[string]any{
		"title":       "Prepare report",
		"client_id":   "c1",
		"assignee_id": "u-ana",
		"status":      "pending",
		"type":        "administrative",
		"entity_id":   "e1",
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/tasks", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}
	if decode(t, rec)["success"] != false {
		t.Fatalf("expected success=false, got %s", rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/api/tasks", "wrong", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d", rec.Code)
	}
}

func TestTaskLifecycleEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	id := e.createTask(t, "tok-ana", taskBody())

	// Visible to the creator, invisible outside the entity.
	rec := e.do(t, http.MethodGet, "/api/tasks", "tok-ana", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	tasks, _ := decode(t, rec)["tasks"].([]any)
	if len(tasks) != 1 {
		t.Fatalf("ana sees %d tasks, want 1", len(tasks))
	}

	rec = e.do(t, http.MethodGet, "/api/tasks", "tok-bruno", nil)
	tasks, _ = decode(t, rec)["tasks"].([]any)
	if len(tasks) != 0 {
		t.Fatalf("bruno sees %d tasks, want 0", len(tasks))
	}

	// Complete 49 hours ago, then sweep.
	completedAt := time.Now().UTC().Add(-49 * time.Hour)
	rec = e.do(t, http.MethodPatch, "/api/tasks/"+id+"/status", "tok-ana", map[string]any{
		"status":       "completed",
		"completed_at": completedAt,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status %d body %s", rec.Code, rec.Body.String())
	}

	archived, err := e.sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if archived != 1 {
		t.Fatalf("archived = %d, want 1", archived)
	}

	got, err := e.store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusArchived || got.ArchivedAt == nil || got.CompletedAt == nil {
		t.Fatalf("bad archived state: %+v", got)
	}

	rec = e.do(t, http.MethodGet, "/api/tasks/archived", "tok-ana", nil)
	tasks, _ = decode(t, rec)["tasks"].([]any)
	if len(tasks) != 1 {
		t.Fatalf("archived list has %d tasks, want 1", len(tasks))
	}
	rec = e.do(t, http.MethodGet, "/api/tasks", "tok-ana", nil)
	tasks, _ = decode(t, rec)["tasks"].([]any)
	if len(tasks) != 0 {
		t.Fatalf("archived task still in default list")
	}
}

func TestCommentMentionFlow(t *testing.T) {
	e := newTestEnv(t)
	id := e.createTask(t, "tok-ana", taskBody())

	rec := e.do(t, http.MethodPost, "/api/tasks/"+id+"/comments", "tok-ana", map[string]any{
		"text": "@Bruno Costa please check",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("comment: status %d body %s", rec.Code, rec.Body.String())
	}
	created, _ := decode(t, rec)["comment"].(map[string]any)
	if created["author"] != "Ana Silva" {
		t.Fatalf("author = %v, want resolved display name", created["author"])
	}

	rec = e.do(t, http.MethodGet, "/api/notifications", "tok-bruno", nil)
	notifications, _ := decode(t, rec)["notifications"].([]any)
	if len(notifications) != 1 {
		t.Fatalf("bruno has %d notifications, want 1", len(notifications))
	}
	first, _ := notifications[0].(map[string]any)
	if first["title"] != comment.MentionTitle {
		t.Fatalf("title = %v", first["title"])
	}
	notificationID, _ := first["id"].(string)

	// The author mentioned nobody else; she gets nothing.
	rec = e.do(t, http.MethodGet, "/api/notifications", "tok-ana", nil)
	notifications, _ = decode(t, rec)["notifications"].([]any)
	if len(notifications) != 0 {
		t.Fatalf("ana has %d notifications, want 0", len(notifications))
	}

	rec = e.do(t, http.MethodPost, "/api/notifications/"+notificationID+"/read", "tok-bruno", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: status %d", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/api/notifications", "tok-bruno", nil)
	notifications, _ = decode(t, rec)["notifications"].([]any)
	if len(notifications) != 0 {
		t.Fatalf("notification still listed after read")
	}

	rec = e.do(t, http.MethodGet, "/api/tasks/"+id+"/comments", "tok-bruno", nil)
	comments, _ := decode(t, rec)["comments"].([]any)
	if len(comments) != 1 {
		t.Fatalf("comments = %d, want 1", len(comments))
	}
}

func TestMountFilesSkipsNonDirectory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &Server{engine: gin.New(), logger: logger}

	path := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	s.mountFiles(path)

	req := httptest.NewRequest(http.MethodGet, "/files/anything", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected no file mount for a regular file, got status %d", rec.Code)
	}
}

func TestDeleteForbiddenForNonAssignee(t *testing.T) {
	e := newTestEnv(t)
	id := e.createTask(t, "tok-ana", taskBody())

	rec := e.do(t, http.MethodDelete, "/api/tasks/"+id, "tok-bruno", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rec.Code)
	}
}

func TestUploadAndFetchAttachment(t *testing.T) {
	e := newTestEnv(t)
	id := e.createTask(t, "tok-ana", taskBody())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write([]byte("meeting notes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/"+id+"/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer tok-ana")
	rec := httptest.NewRecorder()
	e.srv.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: status %d body %s", rec.Code, rec.Body.String())
	}

	attachment, _ := decode(t, rec)["attachment"].(map[string]any)
	url, _ := attachment["url"].(string)
	if !strings.HasPrefix(url, "/files/"+id+"/") {
		t.Fatalf("url = %q", url)
	}

	fetch := e.do(t, http.MethodGet, url, "", nil)
	if fetch.Code != http.StatusOK || fetch.Body.String() != "meeting notes" {
		t.Fatalf("fetch: status %d body %q", fetch.Code, fetch.Body.String())
	}

	// The attachment record is attached to the task listing.
	list := e.do(t, http.MethodGet, "/api/tasks", "tok-ana", nil)
	tasks, _ := decode(t, list)["tasks"].([]any)
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d", len(tasks))
	}
	taskObj, _ := tasks[0].(map[string]any)
	attachments, _ := taskObj["attachments"].([]any)
	if len(attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(attachments))
	}
}
