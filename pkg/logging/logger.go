package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger builds a JSON logrus logger writing to stdout and a rotating file at path.
// The returned closer must be closed on shutdown.
func FileLogger(level logrus.Level, path string) (io.Closer, *logrus.Logger, error) {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})

	if path == "" {
		logger.SetOutput(os.Stdout)
		return nopCloser{}, logger, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, rotating))
	return rotating, logger, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
