package models

import "time"

// Task statuses. Transitions are not restricted to adjacent statuses; the
// engine accepts any known status as a target.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusArchived   = "archived"
)

// ValidTaskStatuses enumerates the statuses a task may carry.
var ValidTaskStatuses = map[string]struct{}{
	StatusPending:    {},
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusArchived:   {},
}

// Task types.
const (
	TypeAdministrative = "administrative"
	TypeTechnical      = "technical"
)

// ValidTaskTypes enumerates the supported task types.
var ValidTaskTypes = map[string]struct{}{
	TypeAdministrative: {},
	TypeTechnical:      {},
}

// Notification scopes.
const (
	ScopeTargeted  = "targeted"
	ScopeBroadcast = "broadcast"
)

// Entity is an organizational unit; the scope of visibility for clients,
// projects and tasks.
type Entity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Client is a named reference record. A client may belong to several
// entities.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Entities  []string  `json:"entities"`
	CreatedAt time.Time `json:"created_at"`
}

// Project groups tasks under a client within a single entity. ActiveTasks and
// CompleteTasks are denormalized id caches; the source of truth for project
// membership is each task's project reference.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	ClientID      string    `json:"client_id"`
	EntityID      string    `json:"entity_id"`
	Status        string    `json:"status"`
	ActiveTasks   []string  `json:"active_tasks"`
	CompleteTasks []string  `json:"complete_tasks"`
	CreatedAt     time.Time `json:"created_at"`
}

// Tag is a named, colored label attached to tasks.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Assignee identifies the principal responsible for a task. The zero value
// means unassigned.
type Assignee struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Assigned reports whether the task has an assignee.
func (a Assignee) Assigned() bool {
	return a.ID != ""
}

// Attachment records a stored file associated with a task. The blob itself
// lives in the attachment store; only the retrievable URL is persisted.
type Attachment struct {
	ID       string `json:"id"`
	TaskID   string `json:"task_id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Comment is a single entry in a task's thread. AuthorID is the principal id
// of the writer; Author carries the display name resolved at read time.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AuthorID  string    `json:"author_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is a single work item. CompletedAt is set on the transition into
// completed and survives archiving; ArchivedAt is set only on the transition
// into archived. The entity reference is immutable after creation.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	ClientID    string       `json:"client_id"`
	ClientName  string       `json:"client_name,omitempty"`
	Assignee    Assignee     `json:"assignee"`
	EntityID    string       `json:"entity_id"`
	EntityName  string       `json:"entity_name,omitempty"`
	ProjectID   string       `json:"project_id,omitempty"`
	ProjectName string       `json:"project_name,omitempty"`
	Type        string       `json:"type"`
	Status      string       `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	ArchivedAt  *time.Time   `json:"archived_at,omitempty"`
	Tags        []Tag        `json:"tags"`
	Attachments []Attachment `json:"attachments"`
	Comments    []Comment    `json:"comments"`
}

// Notification is a user-visible alert. ReadAll is derived: true once every
// targeted principal (or, for broadcasts, every known principal) has read it.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Scope     string    `json:"scope"`
	ReadAll   bool      `json:"read_all"`
	CreatedAt time.Time `json:"created_at"`
}

// UserNotification is the per-principal read/seen projection of a
// notification.
type UserNotification struct {
	PrincipalID    string `json:"principal_id"`
	NotificationID string `json:"notification_id"`
	Read           bool   `json:"read"`
	Seen           bool   `json:"seen"`
}
