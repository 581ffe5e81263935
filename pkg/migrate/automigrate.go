package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
)

// Models lists every table the ledger owns or reads, in dependency order.
func Models() []any {
	return []any{
		&models.Product{},
		&models.User{},
		&models.StockBalance{},
		&models.Order{},
		&models.OrderItem{},
		&models.Transaction{},
		&models.TransactionItem{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// AutoMigrate builds the schema from the gorm models. Used for sqlite (local
// runs and tests) where the goose SQL does not apply.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
