package db

import (
	"fmt"

	"go_certbot/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB) error {
	logrus.Info("Starting database migration...")

	// List of all models to migrate
	models := []interface{}{
		&model.User{},
		&model.Order{},
		&model.ActionLog{},
	}

	// Run AutoMigrate for all models
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logrus.Infof("✓ Database migration completed successfully (%d tables)", len(models))
	return nil
}
