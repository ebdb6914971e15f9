package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/cratebox/cratebox-backend/pkg/config"
	"github.com/cratebox/cratebox-backend/pkg/db"
	"github.com/cratebox/cratebox-backend/pkg/logger"
	"github.com/cratebox/cratebox-backend/pkg/migrate"
)

const usage = `Usage: migrate <command> [flags]

Commands:
  up         apply all pending migrations
  down       roll back the most recent migration
  status     print the migration status table
  version    print the current database version
  up-to      migrate up or down to a specific version (requires -version)

Flags:
  -dir      migrations directory (default %q)
  -version  target version for up-to (YYYYMMDDHHMMSS)
`

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dir := fs.String("dir", migrate.DefaultDir, "migrations directory")
	version := fs.String("version", "", "target version for up-to")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, usage, migrate.DefaultDir)
	}

	if len(os.Args) < 2 {
		fs.Usage()
		os.Exit(2)
	}
	command := os.Args[1]
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to extract sql.DB", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"command": command,
		"dir":     *dir,
		"env":     cfg.App.Env,
	})

	switch command {
	case "up", "down", "status", "version":
		err = migrate.Run(ctx, sqlDB, *dir, command)
	case "up-to":
		err = migrate.MigrateToVersion(ctx, sqlDB, *dir, *version)
	default:
		fs.Usage()
		os.Exit(2)
	}
	if err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}

	logg.Info(ctx, "migration command completed")
}
