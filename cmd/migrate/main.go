package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"voice-companion/internal/config"
	pg "voice-companion/internal/infra/db/postgres"
	"voice-companion/internal/infra/logging"
)

// Applies the turn_logs schema and reports what is already stored.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schemaPath := flag.String("schema", "deploy/postgres/init.sql", "schema file to apply")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("database.url (or DATABASE_URL) is required")
	}
	logger := logging.New(cfg.Log, false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		log.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	fmt.Printf("applied %s\n", *schemaPath)

	var turns, sessions int64
	if err := pool.QueryRow(ctx, `SELECT count(*), count(DISTINCT session_key) FROM turn_logs`).Scan(&turns, &sessions); err != nil {
		log.Fatalf("count turn_logs: %v", err)
	}
	fmt.Printf("turn_logs: %d turns across %d sessions\n", turns, sessions)
}
