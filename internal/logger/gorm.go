package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// gormLogger routes GORM output through zap. Statements run with a request
// context are logged on that request's logger.
type gormLogger struct {
	base  *zap.Logger
	level gormlogger.LogLevel
}

// NewGormLogger returns a GORM logger writing to base at level.
func NewGormLogger(base *zap.Logger, level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLogger{base: base.Named("gorm"), level: level}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLogger{base: l.base, level: level}
}

func (l *gormLogger) log(ctx context.Context) *zap.Logger {
	return FromContext(ctx, l.base)
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.log(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.log(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.log(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace logs failed statements at Error and, at Info level, every statement
// at Debug. Record-not-found is a normal lookup outcome and is not logged.
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	if !failed && l.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", time.Since(begin)),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	if failed {
		l.log(ctx).Error("sql failed", append(fields, zap.Error(err))...)
		return
	}
	l.log(ctx).Debug("sql", fields...)
}

// GormLevel maps a log level name to the GORM level.
func GormLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
