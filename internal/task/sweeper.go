package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/erikvandergeld/focalize/internal/notify"
	"github.com/erikvandergeld/focalize/internal/storage/sqlite"
)

// DefaultSweepInterval is how often the sweeper scans for archivable tasks.
const DefaultSweepInterval = time.Hour

// DefaultArchiveThreshold is how long a task stays completed before it is
// archived.
const DefaultArchiveThreshold = 48 * time.Hour

// Sweeper archives tasks that have been completed for longer than the
// threshold. It runs concurrently with request handling against the same
// store; each transition is guarded on the completed status so a re-sweep of
// an already-archived task is a no-op.
type Sweeper struct {
	store     *sqlite.Store
	ledger    *notify.Ledger
	logger    *slog.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
}

// NewSweeper constructs a sweeper. Zero interval or threshold fall back to
// the defaults.
func NewSweeper(store *sqlite.Store, ledger *notify.Ledger, logger *slog.Logger, interval, threshold time.Duration) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if threshold <= 0 {
		threshold = DefaultArchiveThreshold
	}
	return &Sweeper{
		store:     store,
		ledger:    ledger,
		logger:    logger,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.SweepOnce(ctx); err != nil {
				w.logger.Error("archive sweep failed", slog.String("error", err.Error()))
			} else if n > 0 {
				w.logger.Info("archive sweep", slog.Int("archived", n))
			}
		}
	}
}

// SweepOnce archives every task completed at or before now minus the
// threshold and notifies each task's assignee. It returns the number of
// tasks transitioned.
func (w *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := w.now().UTC().Add(-w.threshold)
	candidates, err := w.store.CompletedTasksBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, t := range candidates {
		transitioned, err := w.store.ArchiveCompletedTask(ctx, t.ID, w.now().UTC())
		if err != nil {
			return archived, err
		}
		if !transitioned {
			continue
		}
		archived++

		title := "Tarefa arquivada"
		message := fmt.Sprintf("A tarefa %q foi arquivada automaticamente.", t.Title)
		if t.Assignee.Assigned() {
			_, err = w.ledger.FanOut(ctx, title, message, []string{t.Assignee.ID})
		} else {
			_, err = w.ledger.Announce(ctx, title, message)
		}
		if err != nil {
			w.logger.Error("archive notification failed",
				slog.String("task", t.ID), slog.String("error", err.Error()))
		}
	}
	return archived, nil
}
