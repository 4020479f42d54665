package sqlite

import (
	"context"
	"fmt"

	"github.com/erikvandergeld/focalize/internal/models"
)

// InsertComment persists a comment row.
func (s *Store) InsertComment(ctx context.Context, c models.Comment) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO comments (id, task_id, author_id, body, created_at)
        VALUES (?, ?, ?, ?, ?)`, c.ID, c.TaskID, c.AuthorID, c.Text, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// CommentsForTask returns a task's comments, newest first.
func (s *Store) CommentsForTask(ctx context.Context, taskID string) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, author_id, body, created_at
        FROM comments WHERE task_id = ? ORDER BY created_at DESC, id DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("comments for task: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// InsertAttachment persists the (task, filename, url) triple for a stored
// blob.
func (s *Store) InsertAttachment(ctx context.Context, a models.Attachment) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO attachments (id, task_id, filename, url)
        VALUES (?, ?, ?, ?)`, a.ID, a.TaskID, a.Filename, a.URL)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

// AttachmentsForTask returns a task's attachment records.
func (s *Store) AttachmentsForTask(ctx context.Context, taskID string) ([]models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, filename, url
        FROM attachments WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("attachments for task: %w", err)
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Filename, &a.URL); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}
