// Package comment appends comments to tasks and fans out mention
// notifications.
package comment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erikvandergeld/focalize/internal/apperr"
	"github.com/erikvandergeld/focalize/internal/auth"
	"github.com/erikvandergeld/focalize/internal/models"
	"github.com/erikvandergeld/focalize/internal/notify"
	"github.com/erikvandergeld/focalize/internal/storage/sqlite"
)

// MentionTitle is the notification title used for mention fan-out.
const MentionTitle = "Você foi mencionado!"

// Processor appends comments and triggers notification fan-out for mentioned
// principals. It enforces no entity or assignee gate: any authenticated
// principal may comment on an existing task.
type Processor struct {
	store  *sqlite.Store
	ledger *notify.Ledger
	dir    auth.Directory
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor constructs a comment processor.
func NewProcessor(store *sqlite.Store, ledger *notify.Ledger, dir auth.Directory, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, ledger: ledger, dir: dir, logger: logger, now: time.Now}
}

// AddComment appends a comment to the task and creates one mention
// notification targeting mentionedIDs. The notification is recorded even
// when the mention set is empty; with the targeted scope it reaches nobody.
func (p *Processor) AddComment(ctx context.Context, taskID, authorID, text string, mentionedIDs []string) (models.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return models.Comment{}, apperr.New(apperr.InvalidInput, "comment text is required")
	}

	t, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Comment{}, err
	}

	c := models.Comment{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: p.now().UTC(),
	}
	if err := p.store.InsertComment(ctx, c); err != nil {
		return models.Comment{}, err
	}

	message := fmt.Sprintf("Você foi mencionado em um comentário na tarefa %q.", t.Title)
	if _, err := p.ledger.FanOut(ctx, MentionTitle, message, mentionedIDs); err != nil {
		p.logger.Error("mention fan-out failed after comment insert",
			slog.String("task", taskID), slog.String("comment", c.ID),
			slog.String("error", err.Error()))
		return models.Comment{}, err
	}

	c.Author = p.displayName(ctx, authorID)
	return c, nil
}

// ListComments returns the task's comments, newest first, with author
// display names resolved from the directory.
func (p *Processor) ListComments(ctx context.Context, taskID string) ([]models.Comment, error) {
	if _, err := p.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	comments, err := p.store.CommentsForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string)
	for i := range comments {
		name, ok := names[comments[i].AuthorID]
		if !ok {
			name = p.displayName(ctx, comments[i].AuthorID)
			names[comments[i].AuthorID] = name
		}
		comments[i].Author = name
	}
	return comments, nil
}

func (p *Processor) displayName(ctx context.Context, id string) string {
	if pr, err := p.dir.Principal(ctx, id); err == nil {
		return pr.DisplayName
	}
	return id
}
