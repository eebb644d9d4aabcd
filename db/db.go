package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/opentip/funnelhub/logger"
)

const DEFAULT_SQLITE_PRAGMAS = "_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON"

func NewDB(uri string, logDBQueries bool) (*gorm.DB, error) {
	isPostgres := strings.HasPrefix(uri, "postgres://") || strings.HasPrefix(uri, "postgresql://")

	var dialector gorm.Dialector
	if isPostgres {
		dialector = postgres.Open(uri)
	} else {
		if !strings.Contains(uri, "?") {
			uri = uri + "?" + DEFAULT_SQLITE_PRAGMAS
		}
		dialector = sqlite.Open(uri)
	}

	gormLogLevel := gormlogger.Warn
	if logDBQueries {
		gormLogLevel = gormlogger.Info
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(&gormLogWriter{}, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if !isPostgres {
		// SQLite only supports one writer; serializing connections avoids
		// SQLITE_BUSY under concurrent claims
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return gormDB, nil
}

func Stop(gormDB *gorm.DB) error {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormLogWriter struct{}

func (w *gormLogWriter) Printf(format string, args ...interface{}) {
	logger.Logger.Debug().Msg(fmt.Sprintf(format, args...))
}
