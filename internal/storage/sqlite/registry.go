package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erikvandergeld/focalize/internal/apperr"
	"github.com/erikvandergeld/focalize/internal/models"
)

// InsertEntity persists a new organizational entity.
func (s *Store) InsertEntity(ctx context.Context, e models.Entity) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO entities (id, name, created_at) VALUES (?, ?, ?)`,
		e.ID, e.Name, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

// ListEntities returns all entities ordered by creation date.
func (s *Store) ListEntities(ctx context.Context) ([]models.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM entities ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		var e models.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// InsertClient persists a client and its entity memberships.
func (s *Store) InsertClient(ctx context.Context, c models.Client) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO clients (id, name, created_at) VALUES (?, ?, ?)`,
		c.ID, c.Name, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	for _, entityID := range c.Entities {
		_, err := s.db.ExecContext(ctx, `INSERT INTO client_entities (client_id, entity_id) VALUES (?, ?)`,
			c.ID, entityID)
		if err != nil {
			return fmt.Errorf("link client %s to entity %s: %w", c.ID, entityID, err)
		}
	}
	return nil
}

// ListClients returns clients that belong to at least one of entityIDs.
func (s *Store) ListClients(ctx context.Context, entityIDs []string) ([]models.Client, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT c.id, c.name, c.created_at
        FROM clients c JOIN client_entities ce ON ce.client_id = c.id
        WHERE ce.entity_id IN (`+placeholders(len(entityIDs))+`)
        ORDER BY c.created_at, c.id`, toAny(entityIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range clients {
		entities, err := s.clientEntities(ctx, clients[i].ID)
		if err != nil {
			return nil, err
		}
		clients[i].Entities = entities
	}
	return clients, nil
}

func (s *Store) clientEntities(ctx context.Context, clientID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id FROM client_entities WHERE client_id = ? ORDER BY entity_id`, clientID)
	if err != nil {
		return nil, fmt.Errorf("client entities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertProject persists a new project with empty task-id caches.
func (s *Store) InsertProject(ctx context.Context, p models.Project) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO projects
        (id, name, description, client_id, entity_id, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.ClientID, p.EntityID, p.Status, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject fetches a single project by id.
func (s *Store) GetProject(ctx context.Context, id string) (models.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, client_id, entity_id, status,
        active_tasks, complete_tasks, created_at FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, apperr.New(apperr.NotFound, "project %q not found", id)
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns projects scoped to entityIDs.
func (s *Store) ListProjects(ctx context.Context, entityIDs []string) ([]models.Project, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, client_id, entity_id, status,
        active_tasks, complete_tasks, created_at FROM projects
        WHERE entity_id IN (`+placeholders(len(entityIDs))+`) ORDER BY created_at, id`, toAny(entityIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(row interface{ Scan(...any) error }) (models.Project, error) {
	var (
		p           models.Project
		activeRaw   string
		completeRaw string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ClientID, &p.EntityID, &p.Status,
		&activeRaw, &completeRaw, &p.CreatedAt); err != nil {
		return models.Project{}, err
	}
	if err := json.Unmarshal([]byte(activeRaw), &p.ActiveTasks); err != nil {
		return models.Project{}, fmt.Errorf("decode active tasks: %w", err)
	}
	if err := json.Unmarshal([]byte(completeRaw), &p.CompleteTasks); err != nil {
		return models.Project{}, fmt.Errorf("decode complete tasks: %w", err)
	}
	return p, nil
}

// AppendProjectActiveTask appends a task id to the project's active-task
// cache. The append happens in a single UPDATE so concurrent appends cannot
// lose each other's writes.
func (s *Store) AppendProjectActiveTask(ctx context.Context, projectID, taskID string) error {
	return s.appendProjectTask(ctx, "active_tasks", projectID, taskID)
}

// AppendProjectCompleteTask appends a task id to the project's complete-task
// cache. Ids are not de-duplicated; completing a task twice appends twice.
func (s *Store) AppendProjectCompleteTask(ctx context.Context, projectID, taskID string) error {
	return s.appendProjectTask(ctx, "complete_tasks", projectID, taskID)
}

func (s *Store) appendProjectTask(ctx context.Context, column, projectID, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET `+column+` = json_insert(`+column+`, '$[#]', ?) WHERE id = ?`,
		taskID, projectID)
	if err != nil {
		return fmt.Errorf("append to %s: %w", column, err)
	}
	return requireAffected(res, "project", projectID)
}

// InsertTag persists a new tag.
func (s *Store) InsertTag(ctx context.Context, t models.Tag) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tags (id, name, color) VALUES (?, ?, ?)`,
		t.ID, t.Name, t.Color)
	if err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, color FROM tags ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
