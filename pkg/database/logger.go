package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

const slowQueryThreshold = 200 * time.Millisecond

// zerologLogger sends gorm's output through the request or global zerolog
// logger. Record-not-found is expected on lookups and never logged.
type zerologLogger struct {
	level logger.LogLevel
}

func newLogger(level logger.LogLevel) logger.Interface {
	return &zerologLogger{level: level}
}

func (z *zerologLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &zerologLogger{level: level}
}

func (z *zerologLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if z.level >= logger.Info {
		l := log.Ctx(ctx)
		l.Info().Msg(fmt.Sprintf(msg, args...))
	}
}

func (z *zerologLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if z.level >= logger.Warn {
		l := log.Ctx(ctx)
		l.Warn().Msg(fmt.Sprintf(msg, args...))
	}
}

func (z *zerologLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if z.level >= logger.Error {
		l := log.Ctx(ctx)
		l.Error().Msg(fmt.Sprintf(msg, args...))
	}
}

func (z *zerologLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if z.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	l := log.Ctx(ctx)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && z.level >= logger.Error:
		sql, rows := fc()
		l.Error().Err(err).Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query failed")
	case elapsed > slowQueryThreshold && z.level >= logger.Warn:
		sql, rows := fc()
		l.Warn().Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("slow query")
	case z.level >= logger.Info:
		sql, rows := fc()
		l.Debug().Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query")
	}
}
