package db

import (
	"errors"

	"github.com/costfence/costfence/internal/models"
	"gorm.io/gorm"
)

// Migrate runs schema migrations for every persisted collection.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.CostEntry{},
		&models.BudgetLimit{},
		&models.AdminOverride{},
		&models.CostAlert{},
		&models.ModelPrice{},
		&models.Setting{},
	)
}
