// Package main is a utility for generating bcrypt hashes of PINs. The platform
// stores only bcrypt hashes of user PINs — never the raw values — so this tool
// is used when manually seeding or verifying user records in the database
// without running the full server. Running it locally produces a hash that can
// be inserted directly into the users table.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/oneira/oneira/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <pin>", os.Args[0])
	}

	hash, err := auth.HashPIN(os.Args[1], auth.DefaultBcryptCost)
	if err != nil {
		log.Fatalf("Failed to hash PIN: %v", err)
	}
	fmt.Println(hash)
}
