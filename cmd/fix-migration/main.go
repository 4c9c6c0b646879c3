// Package main clears dirty migration state. golang-migrate marks a version
// dirty while it runs; if the process dies mid-migration the flag stays set
// and every subsequent server start fails with "Dirty database version". This
// tool inspects schema_migrations and, when dirty, resets the flag so the
// runner can retry on the next startup. Inspect the partially applied
// migration by hand before running it.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/oneira/oneira/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	conn, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()

	if err := conn.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	version, dirty, err := migrationState(conn)
	if err != nil {
		return err
	}
	log.Printf("Migration state: version=%d, dirty=%v", version, dirty)

	if !dirty {
		log.Println("Migration state is already clean, nothing to do")
		return nil
	}

	if _, err := conn.Exec("UPDATE schema_migrations SET dirty = false"); err != nil {
		return fmt.Errorf("failed to clear dirty flag: %w", err)
	}

	version, dirty, err = migrationState(conn)
	if err != nil {
		return err
	}
	log.Printf("Cleared dirty flag: version=%d, dirty=%v", version, dirty)
	return nil
}

func migrationState(conn *sql.DB) (int, bool, error) {
	var version int
	var dirty bool
	err := conn.QueryRow("SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	return version, dirty, nil
}
