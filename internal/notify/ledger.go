// Package notify stores notifications and the per-principal read/seen
// projections, and maintains the derived global-read rollup.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/erikvandergeld/focalize/internal/auth"
	"github.com/erikvandergeld/focalize/internal/models"
	"github.com/erikvandergeld/focalize/internal/storage/sqlite"
)

// Ledger owns notification and user-notification writes.
type Ledger struct {
	store  *sqlite.Store
	dir    auth.Directory
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger constructs a ledger.
func NewLedger(store *sqlite.Store, dir auth.Directory, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, dir: dir, logger: logger, now: time.Now}
}

// FanOut creates a targeted notification with one unread projection row per
// target. An empty target set still records the notification; it stays
// invisible to every principal.
func (l *Ledger) FanOut(ctx context.Context, title, message string, targets []string) (models.Notification, error) {
	n := models.Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Message:   message,
		Scope:     models.ScopeTargeted,
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.InsertNotification(ctx, n); err != nil {
		return models.Notification{}, err
	}
	for _, principalID := range targets {
		un := models.UserNotification{PrincipalID: principalID, NotificationID: n.ID}
		if err := l.store.InsertUserNotification(ctx, un); err != nil {
			return models.Notification{}, err
		}
	}
	return n, nil
}

// Announce creates a broadcast notification. Projection rows are created
// lazily, on each principal's first mark-read.
func (l *Ledger) Announce(ctx context.Context, title, message string) (models.Notification, error) {
	n := models.Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Message:   message,
		Scope:     models.ScopeBroadcast,
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.InsertNotification(ctx, n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// MarkRead records that the principal has read the notification, creating
// the projection row if needed, then recomputes the global-read flag.
func (l *Ledger) MarkRead(ctx context.Context, principalID, notificationID string) error {
	n, err := l.store.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if err := l.store.MarkUserNotificationRead(ctx, principalID, notificationID); err != nil {
		return err
	}
	return l.rollup(ctx, n)
}

// MarkAllRead marks every projection row of the principal read and seen,
// then recomputes the global-read flag for each touched notification
// individually. Notifications the principal is not targeted by are never
// rolled up here.
func (l *Ledger) MarkAllRead(ctx context.Context, principalID string) error {
	touched, err := l.store.MarkAllUserNotificationsRead(ctx, principalID)
	if err != nil {
		return err
	}
	for _, id := range touched {
		n, err := l.store.GetNotification(ctx, id)
		if err != nil {
			return err
		}
		if err := l.rollup(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// List returns the principal's unread notifications, newest first. Listing
// re-runs the rollup for each returned notification; the returned data is
// idempotent even though the flag recomputation is a side effect.
func (l *Ledger) List(ctx context.Context, principalID string) ([]models.Notification, error) {
	notifications, err := l.store.UnreadNotifications(ctx, principalID)
	if err != nil {
		return nil, err
	}
	for i := range notifications {
		if err := l.rollup(ctx, notifications[i]); err != nil {
			return nil, err
		}
	}
	return notifications, nil
}

// rollup recomputes the notification's global-read flag. A targeted
// notification is globally read when none of its projection rows remain
// unread; a broadcast when every principal in the current directory has a
// read row.
func (l *Ledger) rollup(ctx context.Context, n models.Notification) error {
	readAll := false
	switch n.Scope {
	case models.ScopeBroadcast:
		readers, err := l.store.ReadPrincipals(ctx, n.ID)
		if err != nil {
			return err
		}
		principals, err := l.dir.Principals(ctx)
		if err != nil {
			return err
		}
		readAll = true
		for _, p := range principals {
			if _, ok := readers[p.ID]; !ok {
				readAll = false
				break
			}
		}
	default:
		unread, err := l.store.UnreadCount(ctx, n.ID)
		if err != nil {
			return err
		}
		readAll = unread == 0
	}

	if readAll == n.ReadAll {
		return nil
	}
	return l.store.SetNotificationReadAll(ctx, n.ID, readAll)
}
