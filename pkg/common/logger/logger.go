package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	Log      *logrus.Logger
	initOnce sync.Once
)

func Init() {
	initOnce.Do(func() {
		Log = newLogger(os.Getenv("LOG_LEVEL"))
	})
}

// Get returns the process logger, initialising it on first use so library
// code can log without the binary having called Init.
func Get() *logrus.Logger {
	Init()
	return Log
}

func newLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if level == "" {
		level = "info"
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	l.SetLevel(logLevel)
	return l
}
