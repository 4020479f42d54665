package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erikvandergeld/focalize/internal/apperr"
	"github.com/erikvandergeld/focalize/internal/models"
)

// InsertNotification persists a notification.
func (s *Store) InsertNotification(ctx context.Context, n models.Notification) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO notifications (id, title, message, scope, read_all, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`, n.ID, n.Title, n.Message, n.Scope, n.ReadAll, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetNotification fetches a notification by id.
func (s *Store) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	var n models.Notification
	err := s.db.QueryRowContext(ctx, `SELECT id, title, message, scope, read_all, created_at
        FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.Title, &n.Message, &n.Scope, &n.ReadAll, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, apperr.New(apperr.NotFound, "notification %q not found", id)
	}
	if err != nil {
		return models.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// InsertUserNotification creates the per-principal projection row for a
// notification target.
func (s *Store) InsertUserNotification(ctx context.Context, un models.UserNotification) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO user_notifications
        (principal_id, notification_id, read, seen) VALUES (?, ?, ?, ?)`,
		un.PrincipalID, un.NotificationID, un.Read, un.Seen)
	if err != nil {
		return fmt.Errorf("insert user notification: %w", err)
	}
	return nil
}

// MarkUserNotificationRead flips the pair's read flag, creating the row if
// the principal had no projection yet.
func (s *Store) MarkUserNotificationRead(ctx context.Context, principalID, notificationID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO user_notifications (principal_id, notification_id, read, seen)
        VALUES (?, ?, 1, 0)
        ON CONFLICT(principal_id, notification_id) DO UPDATE SET read = 1`,
		principalID, notificationID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllUserNotificationsRead marks every projection row of the principal
// read and seen, returning the ids of the notifications whose read flag
// actually flipped. Already-read rows are left out so callers do not recheck
// notifications whose state cannot have changed.
func (s *Store) MarkAllUserNotificationsRead(ctx context.Context, principalID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT notification_id FROM user_notifications
        WHERE principal_id = ? AND read = 0`, principalID)
	if err != nil {
		return nil, fmt.Errorf("list principal notifications: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	_, err = s.db.ExecContext(ctx, `UPDATE user_notifications SET read = 1, seen = 1
        WHERE principal_id = ?`, principalID)
	if err != nil {
		return nil, fmt.Errorf("mark all read: %w", err)
	}
	return ids, nil
}

// UnreadCount counts the notification's projection rows still unread.
func (s *Store) UnreadCount(ctx context.Context, notificationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_notifications
        WHERE notification_id = ? AND read = 0`, notificationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

// ReadPrincipals returns the ids of principals that have read the
// notification.
func (s *Store) ReadPrincipals(ctx context.Context, notificationID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT principal_id FROM user_notifications
        WHERE notification_id = ? AND read = 1`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("read principals: %w", err)
	}
	defer rows.Close()

	readers := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		readers[id] = struct{}{}
	}
	return readers, rows.Err()
}

// SetNotificationReadAll writes the derived global-read flag.
func (s *Store) SetNotificationReadAll(ctx context.Context, notificationID string, readAll bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notifications SET read_all = ? WHERE id = ?`,
		readAll, notificationID)
	if err != nil {
		return fmt.Errorf("set read_all: %w", err)
	}
	return nil
}

// UnreadNotifications returns the notifications still visible to the
// principal, newest first: broadcasts the principal has not read, and
// targeted notifications whose projection row for the principal is unread.
func (s *Store) UnreadNotifications(ctx context.Context, principalID string) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT n.id, n.title, n.message, n.scope, n.read_all, n.created_at
        FROM notifications n
        LEFT JOIN user_notifications un
            ON un.notification_id = n.id AND un.principal_id = ?
        WHERE (n.scope = ? AND (un.read IS NULL OR un.read = 0))
           OR (n.scope = ? AND un.read = 0)
        ORDER BY n.created_at DESC, n.id DESC`,
		principalID, models.ScopeBroadcast, models.ScopeTargeted)
	if err != nil {
		return nil, fmt.Errorf("unread notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.Scope, &n.ReadAll, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
