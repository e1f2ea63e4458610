package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"

	toolsConfig "github.com/ChenBigdata421/jxt-tenantdb/sdk/config"
)

func TestSetRequestLogger_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SetRequestLogger)

	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen = RequestID(c.Request.Context())
		assert.NotNil(t, GetRequestLogger(c))
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(string(TrafficKey)))
}

func TestSetRequestLogger_KeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SetRequestLogger)
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(string(TrafficKey), "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Body.String())
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	assert.Same(t, Logger, FromContext(context.Background()))
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), int(gormlogger.Warn), "acme.example.com")
	sql := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(context.Background(), time.Now(), sql, nil)
	assert.Equal(t, 0, logs.Len(), "fast queries are not logged at warn level")

	l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "slow sql", logs.All()[0].Message)
	assert.Equal(t, "acme.example.com", logs.All()[0].ContextMap()["tenant"])

	l.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	assert.Equal(t, 2, logs.Len())
}

func TestSetupWith_ConsoleOnly(t *testing.T) {
	l := SetupWith(&toolsConfig.Logger{Level: "debug", Stdout: false})
	require.NotNil(t, l)
	assert.Same(t, l, Logger)
	assert.NotNil(t, DefaultLogger)
}

func TestSetupWith_FileOutput(t *testing.T) {
	dir := t.TempDir()
	l := SetupWith(&toolsConfig.Logger{Path: dir, Level: "info", MaxSize: 1})
	l.Info("hello")
	l.Error("boom")
	_ = l.Sync()
	assert.FileExists(t, filepath.Join(dir, "info.log"))
	assert.FileExists(t, filepath.Join(dir, "error.log"))
}
