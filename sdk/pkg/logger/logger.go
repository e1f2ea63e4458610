package logger

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ContextKey string

const (
	TrafficKey ContextKey = "X-Request-Id"
	LoggerKey  ContextKey = "_jxt-tenantdb-zap-logger-request"
)

var (
	Logger        = zap.NewNop()   //全局ZapLogger打印
	DefaultLogger = Logger.Sugar() //全局SugarLogger打印，用于简易打印
)

// SetRequestLogger gin 中间件：为每个请求生成请求ID，并把带请求ID的 logger 放入上下文
func SetRequestLogger(c *gin.Context) {
	requestId := c.GetHeader(string(TrafficKey))
	if requestId == "" {
		requestId = uuid.NewString()
	}
	c.Header(string(TrafficKey), requestId)
	c.Set(string(TrafficKey), requestId)

	requestLogger := Logger.With(zap.String("requestId", requestId))
	ctx := context.WithValue(c.Request.Context(), TrafficKey, requestId)
	ctx = context.WithValue(ctx, LoggerKey, requestLogger)
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

// GetRequestLogger 从上下文获得 logger，没有时使用全局 logger
func GetRequestLogger(c *gin.Context) *zap.Logger {
	return FromContext(c.Request.Context())
}

// FromContext 从标准 context 获得请求 logger
func FromContext(ctx context.Context) *zap.Logger {
	if requestLogger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return requestLogger
	}
	return Logger
}

// RequestID 读取当前请求ID
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(TrafficKey).(string)
	return id
}

func Info(args ...interface{}) {
	DefaultLogger.Info(args...)
}

func Infof(template string, args ...interface{}) {
	DefaultLogger.Infof(template, args...)
}

func Debugf(template string, args ...interface{}) {
	DefaultLogger.Debugf(template, args...)
}

func Warn(args ...interface{}) {
	DefaultLogger.Warn(args...)
}

func Warnf(template string, args ...interface{}) {
	DefaultLogger.Warnf(template, args...)
}

func Error(args ...interface{}) {
	DefaultLogger.Error(args...)
}

func Errorf(template string, args ...interface{}) {
	DefaultLogger.Errorf(template, args...)
}

func Fatalf(template string, args ...interface{}) {
	DefaultLogger.Fatalf(template, args...)
	os.Exit(1)
}
