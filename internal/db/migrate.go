package db

import (
	"autosave-sync-engine/internal/domain"
	"log"
)

// Migrate runs database migrations
func Migrate() {
	err := AppDb.AutoMigrate(
		&domain.DocumentState{},
		&domain.ConflictItem{},
		&domain.AutosaveRecord{},
	)

	if err != nil {
		log.Fatal(err)
	}

	log.Println("Database schema migrated successfully")
}
