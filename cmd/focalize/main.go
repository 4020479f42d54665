package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/erikvandergeld/focalize/internal/util"
)

var (
	flagAddr       string
	flagDB         string
	flagPrincipals string
	flagFilesDir   string
	flagDebug      bool
)

func main() {
	root := &cobra.Command{
		Use:           "focalize",
		Short:         "Multi-tenant task tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagDB, "db", util.EnvOrDefault("FOCALIZE_DB_PATH", "data/focalize.db"), "path to the sqlite database file")
	root.PersistentFlags().StringVar(&flagPrincipals, "principals", util.EnvOrDefault("FOCALIZE_PRINCIPALS", "principals.yaml"), "path to the principal directory file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(newServeCmd(), newSweepCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
