// Package dbtest opens throwaway sqlite databases migrated with the ledger
// schema for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/migrate"
)

// Open returns a client over a private in-memory database. A single pooled
// connection keeps every goroutine on the same memory database and
// serializes transactions the way row locks would.
func Open(t testing.TB) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:ledger_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db.FromGorm(conn)
}

// SeedUser inserts a user with the given role.
func SeedUser(t testing.TB, conn *gorm.DB, name string, role enums.Role) models.User {
	t.Helper()
	user := models.User{ID: uuid.New(), Name: name, Role: role}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedProduct inserts a catalog product with the given VAT rate.
func SeedProduct(t testing.TB, conn *gorm.DB, name string, vatRate int64) models.Product {
	t.Helper()
	product := models.Product{
		ID:      uuid.New(),
		Name:    name,
		SKU:     "SKU-" + uuid.NewString()[:8],
		Unit:    "kg",
		VATRate: decimal.NewFromInt(vatRate),
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedBalance inserts a balance row directly, bypassing the ledger.
func SeedBalance(t testing.TB, conn *gorm.DB, ownerID uuid.UUID, product models.Product, bucket enums.StockBucket, qty, price string) models.StockBalance {
	t.Helper()
	balance := models.StockBalance{
		OwnerID:     ownerID,
		ProductID:   product.ID,
		Bucket:      bucket,
		Quantity:    decimal.RequireFromString(qty),
		UnitPrice:   decimal.RequireFromString(price),
		ProductName: product.Name,
		SKU:         product.SKU,
		Unit:        product.Unit,
		Version:     1,
	}
	if err := conn.Create(&balance).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	return balance
}
