// Package dbcore owns the gorm handle shared by the database-backed parts of
// the collection system.
package dbcore

import (
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blacklist-hub/blacklist/database/models"
	logutil "github.com/blacklist-hub/blacklist/utils/log"
)

var (
	instance *gorm.DB
	initOnce sync.Once
	initErr  error
)

// Open opens a database handle and migrates the collection tables.
// driver is "sqlite" or "mysql"; dsn is the file path for sqlite or a mysql DSN.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logutil.GormLogLevel()),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Call volume is low; keep the pool small and connections short-lived.
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := db.AutoMigrate(
		&models.AuthAttempt{},
		&models.CollectionFlag{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Initialize opens the process-wide handle. Safe to call more than once; only
// the first call takes effect.
func Initialize(driver, dsn string) error {
	initOnce.Do(func() {
		instance, initErr = Open(driver, dsn)
		if initErr != nil {
			log.Printf("database initialization failed: %v", initErr)
		}
	})
	return initErr
}

// GetDBInstance returns the handle opened by Initialize. Panics if Initialize
// was never called, which is a programming error.
func GetDBInstance() *gorm.DB {
	if instance == nil {
		panic("dbcore: Initialize must be called before GetDBInstance")
	}
	return instance
}
