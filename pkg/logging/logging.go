// Package logging builds the process logger: text or JSON output on stdout,
// optionally teed into a size-rotated log file.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/k3suav/antenna-scan/pkg/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger configured from cfg. The returned closer flushes the
// rotating file and is a no-op when no file is configured.
func New(cfg config.AgentConfig) (*logrus.Logger, io.Closer) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if cfg.StructuredLogging {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}
	log.SetLevel(ParseLevel(cfg.LogLevel))

	if cfg.LogFile == "" {
		log.SetOutput(os.Stdout)
		return log, nopCloser{}
	}

	w := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB, // MB
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, w))
	return log, w
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
