// Command migrate-config-users copies the accounts declared in a library
// configuration file into the Postgres user store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"polaris/internal/auth"
	"polaris/internal/config"
)

func main() {
	configPath := flag.String("config", "polaris.yaml", "path to the library configuration to migrate")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	dsn := strings.TrimSpace(*postgresDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("POLARIS_POSTGRES_DSN"))
	}
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, POLARIS_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	users := cfg.Credentials()
	logger.Info("loaded configuration", "path", *configPath, "users", len(users))

	ctx := context.Background()
	store, err := auth.NewPostgresUserStore(ctx, dsn)
	if err != nil {
		logger.Error("failed to open postgres user store", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close(context.Background())
	}()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}

	var created, updated int
	for _, user := range users {
		isNew, err := store.Put(ctx, user)
		if err != nil {
			logger.Error("failed to import user", "user", user.Name, "error", err)
			os.Exit(1)
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	total, err := store.Count(ctx)
	if err != nil {
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}
	if total < len(users) {
		logger.Error("verification failed", "expected_at_least", len(users), "found", total)
		os.Exit(1)
	}

	logger.Info("migration completed", "created", created, "updated", updated, "total", total)
}
