package utils

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type loggerKey struct{}

// LoggerConfig определяет конфигурацию для логгера
type LoggerConfig struct {
	// Формат логов (text/json)
	Format string
	Level  string
	// Выходной поток (os.Stdout, файл и т.д.)
	Output io.Writer
}

var std = logrus.New()

// InitLogger инициализирует и возвращает логгер
func InitLogger(config ...LoggerConfig) *logrus.Logger {
	var cfg LoggerConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	logger := logrus.New()
	logger.SetOutput(cfg.Output)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	std = logger
	return logger
}

// ContextWithLogger stores a request-scoped entry in ctx.
func ContextWithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry)
}

// WithContext returns the request-scoped entry, or the process logger when ctx has none.
func WithContext(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(std)
}
