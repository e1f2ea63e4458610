package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SlowThreshold 超过该耗时的 SQL 以 warn 级别记录
const SlowThreshold = 200 * time.Millisecond

type CustomGormLogger struct {
	ZapLogger *zap.Logger
	LogLevel  logger.LogLevel
}

// NewGormLogger 创建自定义 GORM 日志器，tenant 为该连接池所属租户
func NewGormLogger(baseLogger *zap.Logger, gormLogLevel int, tenant string) logger.Interface {
	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}
	return &CustomGormLogger{
		ZapLogger: baseLogger.Named("gorm").With(zap.String("tenant", tenant)),
		LogLevel:  logger.LogLevel(gormLogLevel),
	}
}

// LogMode 设置日志级别
func (l *CustomGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &CustomGormLogger{
		ZapLogger: l.ZapLogger,
		LogLevel:  level,
	}
}

func (l *CustomGormLogger) with(ctx context.Context) *zap.Logger {
	if id := RequestID(ctx); id != "" {
		return l.ZapLogger.With(zap.String("requestId", id))
	}
	return l.ZapLogger
}

func (l *CustomGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Info {
		l.with(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *CustomGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Warn {
		l.with(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *CustomGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Error {
		l.with(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace 记录 SQL：错误记 error，慢 SQL 记 warn，其余在 Info 级别下记 info
func (l *CustomGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.LogLevel >= logger.Error:
		sql, rows := fc()
		l.with(ctx).Error("sql error", zap.Error(err), zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case elapsed > SlowThreshold && l.LogLevel >= logger.Warn:
		sql, rows := fc()
		l.with(ctx).Warn("slow sql", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case l.LogLevel >= logger.Info:
		sql, rows := fc()
		l.with(ctx).Info("sql", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	}
}
