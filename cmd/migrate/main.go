package main

import (
	"flag"
	"log"

	"github.com/dvloznov/expensebot/internal/config"
	"github.com/dvloznov/expensebot/internal/infra/sqlite"
)

var dbPath = flag.String("db", "", "SQLite database path (defaults to the configured path)")

func main() {
	flag.Parse()

	path := *dbPath
	if path == "" {
		path = config.Load().DBPath
	}

	// Open bootstraps every table and index, so this both creates a
	// fresh database and brings an existing one up to date.
	store, err := sqlite.Open(path)
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", path, err)
	}
	defer store.Close()

	log.Printf("Database schema ready: %s", path)
}
