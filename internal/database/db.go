package database

import (
	"log"

	"cuadre-backend/internal/config"
	"cuadre-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("could not connect to database: %v", err)
	}

	if err := Migrate(DB); err != nil {
		log.Fatalf("AutoMigrate error: %v", err)
	}

	// Partial index for the "open cuadre" queries (unsettled orders per scope/day).
	// Postgres only, AutoMigrate cannot express the WHERE clause.
	if err := DB.Exec(`
		CREATE INDEX IF NOT EXISTS idx_orders_open_by_sede
		ON orders (sede_id, delivery_date)
		WHERE settled = false
	`).Error; err != nil {
		log.Printf("idx_orders_open_by_sede could not be created: %v", err)
	}

	log.Println("Database connection established. Migration completed.")
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Courier{},
		&models.Sede{},
		&models.User{},
		&models.Order{},
		&models.SettlementBatch{},
		&models.SettlementBatchItem{},
		&models.AuditLog{},
	)
}
