package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/erikvandergeld/focalize/internal/auth"
	"github.com/erikvandergeld/focalize/internal/notify"
	"github.com/erikvandergeld/focalize/internal/storage/sqlite"
	"github.com/erikvandergeld/focalize/internal/task"
)

func newSweepCmd() *cobra.Command {
	var threshold time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Archive completed tasks past the threshold and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			source, err := auth.LoadStaticSource(flagPrincipals)
			if err != nil {
				return err
			}

			store, err := sqlite.Open(flagDB, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ledger := notify.NewLedger(store, source, logger)
			sweeper := task.NewSweeper(store, ledger, logger, task.DefaultSweepInterval, threshold)

			archived, err := sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("sweep complete", "archived", archived)
			return nil
		},
	}

	cmd.Flags().DurationVar(&threshold, "archive-after", task.DefaultArchiveThreshold, "how long a completed task waits before archiving")

	return cmd
}
