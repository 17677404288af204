package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wwqgtxx/fdsplice/config"
)

// New builds a console logger writing to cfg.Path, or stderr when the path
// is empty.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if len(cfg.Level) > 0 {
		var err error
		level, err = zapcore.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	output := "stderr"
	if len(cfg.Path) > 0 {
		output = cfg.Path
	}

	zc := zap.NewDevelopmentConfig()
	zc.Development = false
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{output}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	return zc.Build()
}

func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
