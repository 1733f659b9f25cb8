package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"SQLPumpClickHouse/internal/config"
)

// fileLevel — в файл и в Sentry уходят только ошибки
const fileLevel = zapcore.ErrorLevel

// InitZap собирает логгер из двух ядер: console пишет начиная с cfg.Level,
// файл cfg.LogFile получает только Error+. При EnableSentry ошибки дублируются в Sentry.
// console обычно stderr: stdout занят результатами запросов.
func InitZap(cfg *config.LoggingConfig, console io.Writer) (*zap.Logger, error) {
	consoleLevel, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoder := zapcore.NewConsoleEncoder(encoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(console), consoleLevel),
	}
	if cfg.LogFile != "" {
		ws, err := openLogFile(cfg.LogFile)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder.Clone(), ws, fileLevel))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(fileLevel)}
	if cfg.EnableSentry && cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			return nil, fmt.Errorf("sentry init: %w", err)
		}
		opts = append(opts, zap.Hooks(captureErrors))
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

func parseLevel(text string) (zapcore.Level, error) {
	level := zapcore.InfoLevel
	if text == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return level, fmt.Errorf("неизвестный уровень логирования %q: %w", text, err)
	}
	return level, nil
}

// encoderConfig — plain text с короткими ключами T/L/N/C/M/S
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func openLogFile(path string) (zapcore.WriteSyncer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть лог-файл %s: %w", path, err)
	}
	return zapcore.AddSync(f), nil
}

// captureErrors отправляет Error+ в Sentry с именем логгера и местом вызова
func captureErrors(entry zapcore.Entry) error {
	if entry.Level < fileLevel {
		return nil
	}
	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	event.Logger = entry.LoggerName
	event.Message = entry.Message
	event.Tags = map[string]string{"caller": entry.Caller.TrimmedPath()}
	sentry.CaptureEvent(event)
	sentry.Flush(2 * time.Second)
	return nil
}
