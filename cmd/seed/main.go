// Seed loads sample leads into the live table for local development runs.
// The production CRM owns this table; never point the seeder at it.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"whatsapp-salesbot/internal/config"
	"whatsapp-salesbot/internal/database"
	"whatsapp-salesbot/internal/models"
)

func main() {
	file := flag.String("file", "leads.json", "JSON array of leads to insert")
	flag.Parse()

	cfg := config.LoadConfig()
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *file, err)
	}

	var leads []models.Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		log.Fatalf("Failed to parse %s: %v", *file, err)
	}
	if len(leads) == 0 {
		log.Fatal("No leads in input file")
	}

	if err := db.Create(&leads).Error; err != nil {
		log.Fatalf("Failed to insert leads: %v", err)
	}
	log.Printf("Inserted %d leads into %s", len(leads), models.Lead{}.TableName())
}
