package config

import (
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"runaway_tracker/internal/models"
)

// InitDB opens the database with the configured driver and migrates the schema.
func InitDB(cfg Config) (*gorm.DB, error) {
	driver := cfg.DBDriver
	if driver != "postgres" {
		driver = "" // gorm's default, pgx stdlib
	}

	dialector := postgres.New(postgres.Config{
		DSN:        cfg.DSN(),
		DriverName: driver,
	})

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(logrus.StandardLogger(), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Activity{}, &models.ActivityPoint{}); err != nil {
		return nil, fmt.Errorf("auto-migration failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"host":   cfg.DBHost,
		"db":     cfg.DBName,
		"driver": cfg.DBDriver,
	}).Info("Database ready")
	return db, nil
}
