package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/af-corp/conduit/internal/auth"
	"github.com/jackc/pgx/v5"
)

func main() {
	user := flag.String("user", "", "user ID (required)")
	name := flag.String("name", "", "human-friendly key name (required)")
	env := flag.String("env", "prod", "environment prefix")
	models := flag.String("models", "", "comma-separated model allowlist (empty allows all)")
	limit := flag.Int("limit", 0, "per-window request limit override (0 uses the server default)")
	expires := flag.String("expires", "365d", "expiry duration (e.g., 365d, 720h)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *user == "" || *name == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -user and -name are required")
		os.Exit(1)
	}

	// Generate key
	rawKey, err := auth.GenerateKey(*env)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	keyHash := auth.HashKey(rawKey)
	keyPrefix := auth.KeyPrefix(rawKey)

	// Parse expiry
	dur, err := auth.ParseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}
	expiresAt := time.Now().Add(dur)

	// Connect to database
	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "conduit")
		pass := envOrDefault("DB_PASSWORD", "conduit-dev")
		dbname := envOrDefault("DB_NAME", "conduit")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	allowed := []string{}
	if *models != "" {
		for _, m := range strings.Split(*models, ",") {
			if m = strings.TrimSpace(m); m != "" {
				allowed = append(allowed, m)
			}
		}
	}
	allowedModels, _ := json.Marshal(allowed)

	// Insert key
	var keyID string
	err = conn.QueryRow(ctx, `
		INSERT INTO api_keys (key_hash, key_prefix, user_id, name, allowed_models, request_limit, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, keyHash, keyPrefix, *user, *name, allowedModels, nilIfZero(*limit), expiresAt).Scan(&keyID)
	if err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("=== Conduit API Key Generated ===")
	fmt.Println()
	fmt.Printf("  Key ID:        %s\n", keyID)
	fmt.Printf("  Key Prefix:    %s\n", keyPrefix)
	fmt.Printf("  User:          %s\n", *user)
	if len(allowed) > 0 {
		fmt.Printf("  Models:        %s\n", strings.Join(allowed, ", "))
	} else {
		fmt.Printf("  Models:        all\n")
	}
	if *limit > 0 {
		fmt.Printf("  Request limit: %d\n", *limit)
	}
	fmt.Printf("  Expires:       %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  API Key (save this, it will NOT be shown again):")
	fmt.Printf("  %s\n", rawKey)
	fmt.Println()
	fmt.Println("=================================")
}

func nilIfZero(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
