package logger

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	toolsConfig "github.com/ChenBigdata421/jxt-tenantdb/sdk/config"
)

/*
使用 zap.Logger: 组件内部（缓存、连接池、凭证客户端）统一使用结构化字段，便于机器解析。
使用 zap.SugaredLogger: 只在包级简易函数（Info/Warnf 等）中使用。
*/

type LogConfig struct {
	Path          string
	ConsoleOutput bool
	Level         string
	FileOutput    bool
	MaxSize       int
	InfoMaxAge    int
	ErrorMaxAge   int
	MaxBackups    int
	Compress      bool
}

// Setup 按全局 LoggerConfig 初始化全局日志记录器，放在程序运行前执行
func Setup() *zap.Logger {
	return SetupWith(toolsConfig.LoggerConfig)
}

// SetupWith 按给定配置初始化全局日志记录器并返回
func SetupWith(cfg *toolsConfig.Logger) *zap.Logger {
	config := LogConfig{
		Path:          cfg.Path,
		ConsoleOutput: cfg.Stdout,
		Level:         cfg.Level,
		FileOutput:    cfg.Path != "",
		MaxSize:       cfg.MaxSize,
		InfoMaxAge:    cfg.InfoMaxAge,
		ErrorMaxAge:   cfg.ErrorMaxAge,
		MaxBackups:    cfg.MaxBackups,
		Compress:      true,
	}

	Logger = New(config)
	DefaultLogger = Logger.Sugar()
	return Logger
}

// New 根据配置构建 logger：info/error 分文件滚动，可选彩色控制台输出
func New(config LogConfig) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// 解析日志级别，默认使用info级别
	var logLevel zapcore.Level
	if err := logLevel.UnmarshalText([]byte(config.Level)); err != nil {
		logLevel = zapcore.InfoLevel
	}

	var cores []zapcore.Core

	if config.FileOutput {
		if logLevel < zapcore.ErrorLevel {
			infoCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				getLogWriter(config, "info.log", config.InfoMaxAge),
				zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
					return lvl >= logLevel && lvl < zapcore.ErrorLevel
				}),
			)
			cores = append(cores, infoCore)
		}

		// 始终添加errorCore
		errorCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			getLogWriter(config, "error.log", config.ErrorMaxAge),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= zapcore.ErrorLevel
			}),
		)
		cores = append(cores, errorCore)
	}

	if config.ConsoleOutput {
		consoleEncoderConfig := encoderConfig
		consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

		consoleCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderConfig),
			zapcore.AddSync(os.Stdout),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= logLevel
			}),
		)
		cores = append(cores, consoleCore)
	}

	// 如果没有任何core，添加一个空core防止panic
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(io.Discard),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return false
			}),
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func getLogWriter(config LogConfig, name string, maxAge int) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(config.Path, name),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     maxAge,
		Compress:   config.Compress,
	})
}
