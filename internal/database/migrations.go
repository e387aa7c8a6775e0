package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

// AddIndexes adds lookup indexes that are not declared on the models
func AddIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		name    string
		columns string
	}{
		// Eligible-item lookups
		{"inquiries", "idx_inquiries_supplier_status", "supplier_id, status"},
		{"inquiries", "idx_inquiries_customer_status", "customer_id, status, site, pr_group"},

		// Team membership checks run on every board request
		{"team_members", "idx_team_members_user_id", "user_id"},

		{"task_assignments", "idx_task_assignments_user_id", "user_id"},
		{"communication_resends", "idx_communication_resends_history", "communication_id, resent_at"},
	}

	for _, idx := range indexes {
		if db.Migrator().HasIndex(idx.table, idx.name) {
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}

		log.Printf("Created index %s on %s(%s)", idx.name, idx.table, idx.columns)
	}

	return nil
}

// MigrateDatabase creates or updates every table and then adds indexes
func MigrateDatabase(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := AddIndexes(db); err != nil {
		return fmt.Errorf("failed to add indexes: %w", err)
	}

	return nil
}
