package infra

import (
	"fmt"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx and runs AutoMigrate
// for the ledger/inventory entities, then applies the SQL patches AutoMigrate
// cannot express.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := db.AutoMigrate(
		&model.Product{},
		&model.DrawerSession{},
		&model.CashMovement{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderPayment{},
		&model.StockMovement{},
	); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	if err := applySchemaPatches(db); err != nil {
		return nil, fmt.Errorf("schema patches: %w", err)
	}

	return db, nil
}

// applySchemaPatches creates the objects GORM tags cannot declare. Each
// statement is idempotent so startup on an already-patched schema is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// One OPEN session per operator: partial unique index on the open rows.
		{"unique open session per operator", `
CREATE UNIQUE INDEX IF NOT EXISTS idx_drawer_sessions_operator_open
ON drawer_sessions (operator_id) WHERE closed_at IS NULL`},
		// Ticket numbers come from a sequence so concurrent orders never collide.
		{"ticket number sequence", `
CREATE SEQUENCE IF NOT EXISTS orders_ticket_number_seq START 1`},
		// Stock can never go negative even if a conditional UPDATE is bypassed.
		{"non-negative stock check", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_products_stock_nonneg') THEN
    ALTER TABLE products ADD CONSTRAINT chk_products_stock_nonneg CHECK (stock >= 0);
  END IF;
END $$`},
	}

	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("%s: %w", p.descr, err)
		}
	}
	return nil
}
