package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/erikvandergeld/focalize/internal/attach"
	"github.com/erikvandergeld/focalize/internal/auth"
	"github.com/erikvandergeld/focalize/internal/comment"
	"github.com/erikvandergeld/focalize/internal/notify"
	"github.com/erikvandergeld/focalize/internal/server"
	"github.com/erikvandergeld/focalize/internal/storage/sqlite"
	"github.com/erikvandergeld/focalize/internal/task"
	"github.com/erikvandergeld/focalize/internal/util"
)

func newServeCmd() *cobra.Command {
	var (
		sweepInterval  time.Duration
		sweepThreshold time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the auto-archive sweeper",
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

			files, err := attach.NewFSStore(flagFilesDir, "/files")
			if err != nil {
				return err
			}

			ledger := notify.NewLedger(store, source, logger)
			engine := task.NewEngine(store, source, logger)
			processor := comment.NewProcessor(store, ledger, source, logger)
			sweeper := task.NewSweeper(store, ledger, logger, sweepInterval, sweepThreshold)

			srv := server.New(server.Config{
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

			httpServer := &http.Server{
				Addr:    flagAddr,
				Handler: srv.Engine(),
			}

			sweepCtx, stopSweeper := context.WithCancel(cmd.Context())
			defer stopSweeper()
			go sweeper.Run(sweepCtx)

			go func() {
				logger.Info("starting server", slog.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			stopSweeper()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			}

			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&flagAddr, "addr", util.EnvOrDefault("FOCALIZE_ADDR", ":8080"), "HTTP listen address")
	cmd.Flags().StringVar(&flagFilesDir, "files", util.EnvOrDefault("FOCALIZE_FILES_DIR", "data/files"), "directory for attachment blobs")
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", task.DefaultSweepInterval, "how often to scan for archivable tasks")
	cmd.Flags().DurationVar(&sweepThreshold, "archive-after", task.DefaultArchiveThreshold, "how long a completed task waits before archiving")

	return cmd
}
