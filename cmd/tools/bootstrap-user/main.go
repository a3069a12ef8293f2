// Command bootstrap-user creates or updates a login in the Postgres user
// store, or prints a password hash for the YAML configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"polaris/internal/auth"
)

func main() {
	var (
		postgresDSN string
		name        string
		password    string
		printHash   bool
	)

	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&name, "name", "", "Username for the account")
	flag.StringVar(&password, "password", "", "Password for the account")
	flag.BoolVar(&printHash, "print-hash", false, "Print a password_hash value instead of writing to Postgres")
	flag.Parse()

	if len(password) < 8 {
		fatalf("--password must be at least 8 characters")
	}

	if printHash {
		hash, err := auth.HashPassword(password)
		if err != nil {
			fatalf("hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	if strings.TrimSpace(name) == "" {
		fatalf("--name is required")
	}
	dsn := firstNonEmpty(postgresDSN, os.Getenv("POLARIS_POSTGRES_DSN"), os.Getenv("DATABASE_URL"))
	if dsn == "" {
		fatalf("either --postgres-dsn, POLARIS_POSTGRES_DSN or DATABASE_URL must be provided")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := auth.NewPostgresUserStore(ctx, dsn)
	if err != nil {
		fatalf("open user store: %v", err)
	}
	defer func() {
		_ = store.Close(context.Background())
	}()

	if err := store.EnsureSchema(ctx); err != nil {
		fatalf("prepare schema: %v", err)
	}
	created, err := store.Put(ctx, auth.UserCredential{Name: name, Password: password})
	if err != nil {
		fatalf("bootstrap user: %v", err)
	}

	state := "updated"
	if created {
		state = "created"
	}
	fmt.Printf("User %s %s successfully.\n", strings.TrimSpace(name), state)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
