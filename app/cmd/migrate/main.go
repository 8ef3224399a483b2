package main

import (
	"database/sql"
	"embed"
	"flag"
	"io/fs"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"authn-service/app/config"
	"authn-service/app/utils/logger"
	"authn-service/app/utils/migration"
)

//go:embed migrations
var migrationsFS embed.FS

func main() {
	var (
		command = flag.String("command", "up", "Migration command (up, down, status)")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := cfg.LogLevel
	if *verbose {
		logLevel = "debug"
	}
	appLogger, err := logger.New(logLevel)
	if err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DatabaseURL == "" {
		appLogger.Error("DATABASE_URL is required to run migrations")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		appLogger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		appLogger.Error("failed to open embedded migrations", "error", err)
		os.Exit(1)
	}

	migrator := migration.NewMigrator(db, appLogger, sub)

	switch *command {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	case "status":
		err = migrator.Status()
	default:
		appLogger.Error("unknown command", "command", *command)
		os.Exit(1)
	}

	if err != nil {
		appLogger.Error("migration failed", "command", *command, "error", err)
		os.Exit(1)
	}
}
