package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var Instance *gorm.DB

// Open connects to MySQL when a DSN is given, SQLite otherwise
func Open(mysqlDSN, sqliteFile string) (*gorm.DB, error) {
	dialector := sqlite.Open(sqliteFile)
	if mysqlDSN != "" {
		dialector = mysql.Open(mysqlDSN)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	return db, nil
}

func Init(mysqlDSN, sqliteFile string) error {
	db, err := Open(mysqlDSN, sqliteFile)
	if err != nil {
		return err
	}
	Instance = db
	return nil
}

// Ping is used by the readiness endpoint
func Ping(ctx context.Context) error {
	if Instance == nil {
		return fmt.Errorf("db: not initialised")
	}
	sqlDB, err := Instance.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
