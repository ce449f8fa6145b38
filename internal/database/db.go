package database

import (
	"fmt"
	"time"

	"restoran-pos/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectAttempts = 5

// Open connects to Postgres, retrying while the database comes up, and migrates the
// schema.
func Open(dsn string, log *zap.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Warn),
			TranslateError: true,
		})
		if err == nil {
			break
		}
		log.Warn("database connection failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", connectAttempts),
			zap.Error(err),
		)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", connectAttempts, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database connected, schema migrated")
	return db, nil
}

// Migrate creates or updates every table, then the partial unique indexes that back
// the single-open-aggregate rules. Raw statements run on both Postgres and SQLite.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Branch{},
		&models.Zone{},
		&models.User{},
		&models.Station{},
		&models.Product{},
		&models.PaymentMethod{},
		&models.DiningTable{},
		&models.Order{},
		&models.OrderLine{},
		&models.OrderLineModifier{},
		&models.Ticket{},
		&models.TicketItem{},
		&models.Invoice{},
		&models.Payment{},
		&models.CashSession{},
		&models.CashMovement{},
		&models.CashClose{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}

	indexes := []string{
		// one open order per table
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_open_table ON orders (table_id)
			WHERE table_id IS NOT NULL AND state NOT IN ('delivered', 'voided')`,
		// one live ticket per (order, station)
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_active_station ON tickets (order_id, station_id)
			WHERE state NOT IN ('delivered', 'voided')`,
		// one unclosed till per operator per branch
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cash_sessions_open_operator ON cash_sessions (branch_id, operator_id)
			WHERE state <> 'closed'`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index failed: %w", err)
		}
	}
	return nil
}
