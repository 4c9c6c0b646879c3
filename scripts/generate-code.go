// Package main is a development utility for generating a test access code with
// a ready-to-run SQL INSERT statement, so developers can quickly seed a
// redeemable code in a local database without running the full server flow or
// the admin minting endpoint. Do not use generated codes in production — mint
// them through POST /v1/admin/access-codes so they are audited.
package main

import (
	"fmt"
	"log"

	"github.com/oneira/oneira/internal/auth"
)

func main() {
	code, err := auth.GenerateAccessCode()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Access Code Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nCode: %s\n", code)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Insert:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO access_codes (id, code, source, status, max_activations, current_uses, created_at)
VALUES (gen_random_uuid(), '%s', 'dev', 'valid', 1, 0, NOW());
`, code)
	fmt.Println("\n==========================================================")
	fmt.Printf("Redeem with: curl -X POST http://localhost:8080/v1/auth/redeem -d '{\"code\": \"%s\"}'\n", code)
	fmt.Println("==========================================================")
}
