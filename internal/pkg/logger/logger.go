package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"disaster-analysis-pipeline/internal/config"
)

type Fields = logrus.Fields

// Logger wraps logrus with pipeline-specific helpers so services log in one
// consistent shape.
type Logger struct {
	*logrus.Logger
}

func New(cfg config.LogConfig) (*Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json", "":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	output, err := resolveOutput(cfg)
	if err != nil {
		return nil, err
	}
	log.SetOutput(output)

	return &Logger{Logger: log}, nil
}

func resolveOutput(cfg config.LogConfig) (io.Writer, error) {
	switch cfg.Output {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log output is file but LOG_FILE_PATH is empty")
		}
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}, nil
	default:
		return nil, fmt.Errorf("invalid log output %q", cfg.Output)
	}
}

func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// Info and friends accept alternating key/value pairs after the message.
func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.WithFields(pairsToFields(keysAndValues)).Info(msg)
}

func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.WithFields(pairsToFields(keysAndValues)).Warn(msg)
}

func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.WithFields(pairsToFields(keysAndValues)).Error(msg)
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.WithFields(pairsToFields(keysAndValues)).Debug(msg)
}

// LogService records one collaborator/service operation with its outcome.
func (l *Logger) LogService(service, operation string, duration time.Duration, fields Fields, err error) {
	entry := l.WithFields(Fields{
		"service":     service,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	}).WithFields(fields)

	if err != nil {
		entry.WithError(err).Error("service operation failed")
		return
	}
	entry.Debug("service operation completed")
}

// LogAgent records one agent lifecycle event within a request.
func (l *Logger) LogAgent(requestID, agent, event string, duration time.Duration, err error) {
	entry := l.WithFields(Fields{
		"request_id":  requestID,
		"agent":       agent,
		"event":       event,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Warn("agent event")
		return
	}
	entry.Info("agent event")
}

// LogRequest records request start/completion at the orchestrator boundary.
func (l *Logger) LogRequest(requestID, event string, duration time.Duration, err error) {
	entry := l.WithFields(Fields{
		"request_id":  requestID,
		"event":       event,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("request event")
		return
	}
	entry.Info("request event")
}

func pairsToFields(keysAndValues []any) Fields {
	fields := make(Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
