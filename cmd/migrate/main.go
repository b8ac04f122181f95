package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/samirrijal/pharmacover/internal/adapters/postgres"
	"github.com/samirrijal/pharmacover/internal/legacy"
	"github.com/samirrijal/pharmacover/internal/pkg/config"
	"github.com/samirrijal/pharmacover/internal/pkg/logging"
)

func main() {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Schema migrations and legacy data import",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(upCmd(), importLegacyCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func connect(ctx context.Context) (*postgres.DB, error) {
	cfg, err := config.Load("pharmacover-migrate")
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, "text")
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	return db, nil
}

func upCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply every migrations/*.sql file in name order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no migrations in %s", dir)
			}
			sort.Strings(files)

			// Migrations are idempotent (IF NOT EXISTS), so rerunning is safe.
			for _, f := range files {
				data, err := os.ReadFile(f)
				if err != nil {
					return fmt.Errorf("read %s: %w", f, err)
				}
				if _, err := db.Pool.Exec(ctx, string(data)); err != nil {
					return fmt.Errorf("exec %s: %w", f, err)
				}
				fmt.Printf("OK  %s\n", f)
			}
			slog.Info("all migrations applied", "count", len(files))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding the SQL files")
	return cmd
}

func importLegacyCmd() *cobra.Command {
	var usersPath, countsPath string
	cmd := &cobra.Command{
		Use:   "import-legacy <search_history.json>",
		Short: "Import the JSON exports of the previous app version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			history, err := readFile(args[0], legacy.DecodeHistory)
			if err != nil {
				return err
			}
			users := map[string]legacy.User{}
			if usersPath != "" {
				if users, err = readFile(usersPath, legacy.DecodeUsers); err != nil {
					return err
				}
			}
			counts := map[string]legacy.RequestCount{}
			if countsPath != "" {
				if counts, err = readFile(countsPath, legacy.DecodeRequestCounts); err != nil {
					return err
				}
			}

			db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			im := &legacy.Importer{
				Users:    postgres.NewUserRepo(db),
				Searches: postgres.NewSearchRepo(db),
			}
			var rep legacy.Report
			if err := im.ImportUsers(ctx, legacy.Users(users, counts), &rep); err != nil {
				return err
			}
			if err := im.ImportHistory(ctx, history, &rep); err != nil {
				return err
			}

			slog.Info("legacy import finished",
				"users_created", rep.UsersCreated,
				"users_skipped", rep.UsersSkipped,
				"searches_created", rep.SearchesCreated,
				"searches_skipped", rep.SearchesSkipped,
				"searches_invalid", rep.SearchesInvalid,
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&usersPath, "users", "", "users.json export")
	cmd.Flags().StringVar(&countsPath, "requests", "", "request_count.json export")
	return cmd
}

func readFile[T any](path string, decode func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	return decode(f)
}
