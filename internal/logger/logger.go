package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the process logger.
type Config struct {
	Level       string
	Development bool
	FilePath    string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Compress    bool
}

// New builds a zap logger. Production output is JSON; development output is
// console-encoded. When FilePath is set, log lines go to a size-rotated file
// as well as stdout.
func New(configuration Config) (*zap.Logger, error) {
	level, levelErr := zapcore.ParseLevel(configuration.Level)
	if levelErr != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if configuration.Development {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer := zapcore.AddSync(os.Stdout)
	if configuration.FilePath != "" {
		if mkdirErr := os.MkdirAll(filepath.Dir(configuration.FilePath), 0o755); mkdirErr != nil {
			return nil, mkdirErr
		}
		rotatingWriter := &lumberjack.Logger{
			Filename:   configuration.FilePath,
			MaxSize:    configuration.MaxSizeMB,
			MaxBackups: configuration.MaxBackups,
			MaxAge:     configuration.MaxAgeDays,
			Compress:   configuration.Compress,
		}
		writeSyncer = zapcore.NewMultiWriteSyncer(zapcore.AddSync(rotatingWriter), zapcore.AddSync(os.Stdout))
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)
	return zap.New(core, zap.AddCaller()), nil
}
