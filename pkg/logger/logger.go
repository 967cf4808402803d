package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fyerfyer/reg-retrieval-system/config"
)

// New 根据配置创建logrus日志器
// JSON格式输出；配置了文件路径时通过lumberjack滚动写入
func New(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	// 环境变量DEBUG=true强制开启调试级别
	if os.Getenv("DEBUG") == "true" {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	} else {
		log.SetOutput(os.Stdout)
	}

	return log
}

// Default 返回标准输出、info级别的默认日志器
func Default() *logrus.Logger {
	return New(config.LoggingConfig{Level: "info"})
}
