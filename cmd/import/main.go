// Command import moves the legacy JSON data (users.json, playlists.json)
// into the SQLite database the server uses.
//
// USAGE:
//
//	go run ./cmd/import -data ./data
//
// DB_PATH and the other settings come from the same .env / environment as
// the server. Running it twice is safe: records that already exist are
// skipped.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sakif/mixtape/internal/auth"
	"github.com/sakif/mixtape/internal/config"
	"github.com/sakif/mixtape/internal/legacy"
	"github.com/sakif/mixtape/internal/logger"
	sqliteRepo "github.com/sakif/mixtape/internal/repository/sqlite"
)

func main() {
	dataDir := flag.String("data", "data", "directory holding users.json and playlists.json")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(os.Stderr, cfg.Env, cfg.LogLevel)

	if err := run(cfg, *dataDir, log); err != nil {
		log.Error("import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, dataDir string, log *slog.Logger) error {
	// Ctrl+C stops between records; whatever was written stays written.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	importer := legacy.NewImporter(db, db, auth.NewPasswordService(), log)

	log.Info("importing legacy data",
		slog.String("from", dataDir),
		slog.String("database", cfg.DBPath),
	)
	report, err := importer.ImportDir(ctx, dataDir)
	if err != nil {
		return err
	}

	fmt.Printf("users:     %d imported, %d already present, %d skipped\n",
		report.UsersImported, report.UsersExisting, report.UsersSkipped)
	fmt.Printf("playlists: %d imported (%d with a new id), %d skipped\n",
		report.PlaylistsImported, report.PlaylistsRenumbered, report.PlaylistsSkipped)
	fmt.Printf("items:     %d imported, %d skipped\n",
		report.ItemsImported, report.ItemsSkipped)
	return nil
}
