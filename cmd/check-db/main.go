// Package main is a diagnostic tool for testing database connectivity and
// inspecting live platform data. It connects to the database, prints per-table
// row counts, and lists any generation jobs stuck in a non-terminal state. The
// binary exits with a non-zero code on any failure so it can be embedded in
// health checks or CI/CD pipeline steps to gate deployments on a reachable,
// populated database.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	dbPassword := os.Getenv("DATABASE_PASSWORD")
	if dbPassword == "" {
		dbPassword = "oneira"
	}

	connStr := fmt.Sprintf("host=localhost port=5432 user=oneira password=%s dbname=oneira sslmode=disable", dbPassword)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	// Check row counts
	fmt.Println("=== TABLE COUNTS ===")
	for _, table := range []string{"users", "sessions", "access_codes", "photos", "dreams", "dream_photos", "generation_jobs", "image_assets", "audit_logs", "webhook_logs"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			log.Fatalf("Count query failed for %s: %v", table, err)
		}
		fmt.Printf("%-18s %d\n", table, count)
	}

	// Check jobs stuck in a non-terminal state
	fmt.Println("\n=== ACTIVE GENERATION JOBS ===")
	rows, err := db.Query("SELECT id, trace_id, status, created_at FROM generation_jobs WHERE status IN ('queued', 'running') ORDER BY created_at")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id, traceID, status, createdAt string
		if err := rows.Scan(&id, &traceID, &status, &createdAt); err != nil {
			log.Printf("Warning: failed to scan job row: %v", err)
			continue
		}
		fmt.Printf("Job: %s (trace: %s) - %s since %s\n", id, traceID, status, createdAt)
		count++
	}

	if count == 0 {
		fmt.Println("No active jobs.")
	}
}
