package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"geoping/internal/config"
	"geoping/internal/logging"
	"geoping/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ErrStorage is returned for every fault raised by the database layer.
var ErrStorage = errors.New("storage failure")

const sqliteBusyTimeout = "_pragma=busy_timeout(5000)"

// Options selects and tunes the database backend.
type Options struct {
	Driver    string
	DSN       string
	SlowQuery time.Duration
}

// Open connects to the configured backend without migrating it.
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(opts.DSN))
	case config.DriverPostgres:
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(opts.SlowQuery),
	})
	if err != nil {
		return nil, err
	}

	if opts.Driver == config.DriverSQLite {
		if err := db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}

	return db, nil
}

// ConnectWithRetry opens the database with retry and migrates the schema.
func ConnectWithRetry(opts Options, attempts int, delay time.Duration) (*gorm.DB, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := Open(opts)
		if err == nil {
			if err := Migrate(db); err != nil {
				return nil, err
			}
			return db, nil
		}

		lastErr = err
		logging.Warn().Err(err).Int("attempt", i).Int("attempts", attempts).Str("driver", opts.Driver).Msg("db connect failed")
		if i < attempts {
			time.Sleep(delay)
		}
	}

	return nil, fmt.Errorf("db connect failed after %d attempts: %w", attempts, lastErr)
}

// Migrate creates the locations table and its indexes if they do not exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Location{}); err != nil {
		return fmt.Errorf("migrate locations: %w", err)
	}
	return nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqliteBusyTimeout
	}
	return dsn + "?" + sqliteBusyTimeout
}
