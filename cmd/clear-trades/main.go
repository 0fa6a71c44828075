// clear-trades - Delete all fills, violations, and mode transitions from
// today and start fresh. Intended for clearing out test/sandbox runs
// between sessions, never for production data.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nitinkhare/tradegateway/internal/config"
)

func main() {
	configPath := flag.String("config", "config/config.json", "Path to config file")
	confirmFlag := flag.Bool("confirm", false, "Confirm deletion (must be explicit)")
	flag.Parse()

	if !*confirmFlag {
		fmt.Println("SAFETY CHECK - Must confirm deletion")
		fmt.Println("")
		fmt.Println("This will DELETE all fills, violations, and mode transitions from TODAY:")
		fmt.Println("")
		fmt.Printf("Date: %s\n", time.Now().UTC().Format("2006-01-02"))
		fmt.Println("")
		fmt.Println("To proceed, run:")
		fmt.Println("  go run ./cmd/clear-trades --confirm")
		fmt.Println("")
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	fmt.Printf("Deleting all data from: %s\n", today)
	fmt.Println("")

	result, err := db.Exec(`DELETE FROM fills WHERE DATE(filled_at) = $1`, today)
	if err != nil {
		log.Fatalf("Failed to delete fills: %v", err)
	}
	fillsDeleted, _ := result.RowsAffected()
	fmt.Printf("  Deleted %d fills\n", fillsDeleted)

	result, err = db.Exec(`DELETE FROM violations WHERE DATE(occurred_at) = $1`, today)
	if err != nil {
		log.Fatalf("Failed to delete violations: %v", err)
	}
	violationsDeleted, _ := result.RowsAffected()
	fmt.Printf("  Deleted %d violations\n", violationsDeleted)

	result, err = db.Exec(`DELETE FROM mode_transitions WHERE DATE(occurred_at) = $1`, today)
	if err != nil {
		log.Fatalf("Failed to delete mode transitions: %v", err)
	}
	transitionsDeleted, _ := result.RowsAffected()
	fmt.Printf("  Deleted %d mode transitions\n", transitionsDeleted)

	fmt.Println("")
	fmt.Println("Clean slate ready. Restart cmd/gateway to resume.")
	fmt.Println("")
}
