// Package db opens the database used to store accounts
package db

import (
	"errors"
	"fmt"
	"os"

	"bitwise74/eats-api/internal/model"
	"bitwise74/eats-api/pkg/util"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens the database described by the db.* config keys and migrates it.
func New() (*gorm.DB, error) {
	switch t := viper.GetString("db.type"); t {
	case "sqlite":
		path := viper.GetString("db.path")

		// If running in a docker container don't allow the sqlite file to be created.
		// The host should instead mount it using volumes
		if util.IsRunningInDocker() {
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("SQLite database file not mounted, please use docker volumes to mount it to %s", path)
			}
		}

		return Open(sqlite.Open(SQLiteDSN(path)))
	case "postgres":
		return Open(postgres.Open(viper.GetString("db.dsn")))
	default:
		return nil, fmt.Errorf("unsupported database type %q", t)
	}
}

// SQLiteDSN opens path with foreign keys on. Write transactions take the
// lock when they begin and wait for it instead of failing with
// "database is locked" when they can't upgrade a read lock.
func SQLiteDSN(path string) string {
	return path + "?_foreign_keys=on&_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL"
}

// Open connects through the given dialector and migrates the schema.
func Open(d gorm.Dialector) (*gorm.DB, error) {
	db, err := Connect(d)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Connect(d gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(d, &gorm.Config{
		// Unique violations surface as gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database, %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.User{}, model.Verification{}); err != nil {
		return fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return nil
}
