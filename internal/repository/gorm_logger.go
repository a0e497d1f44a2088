package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"geoping/internal/logging"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger routes gorm output through zerolog. Failed statements are
// logged at debug only: every fault surfaces as ErrStorage and the caller
// logs it once at error level.
type gormLogger struct {
	level         logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(slowThreshold time.Duration) gormLogger {
	return gormLogger{level: logger.Warn, slowThreshold: slowThreshold}
}

func (l gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	l.level = level
	return l
}

func (l gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		logging.Ctx(ctx).Info().Str("component", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

func (l gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		logging.Ctx(ctx).Warn().Str("component", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

func (l gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		logging.Ctx(ctx).Error().Str("component", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

func (l gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		logging.Ctx(ctx).Debug().Str("component", "gorm").Err(err).Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("statement failed")
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		logging.Ctx(ctx).Warn().Str("component", "gorm").Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Dur("threshold", l.slowThreshold).Msg("slow query")
	case l.level >= logger.Info:
		sql, rows := fc()
		logging.Ctx(ctx).Debug().Str("component", "gorm").Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query")
	}
}
