package repository

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JosueRDx/DotsGo-backend/internal/config"
	"github.com/JosueRDx/DotsGo-backend/internal/models"
)

// Database wraps the gorm handle so repositories share one connection pool.
type Database struct {
	*gorm.DB
}

func NewDatabase(cfg *config.Database) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db := &Database{DB: gdb}
	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the schema for every persisted model.
func (d *Database) Migrate() error {
	return d.AutoMigrate(&models.Room{}, &models.Question{})
}
