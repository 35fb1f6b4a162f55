package main

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/steveyegge/projsync/internal/config"
)

// logOutput receives every component logger. It is stderr unless log.file
// is set.
var (
	logOutput io.Writer = os.Stderr
	logFile   *lumberjack.Logger
)

func setupLogging(c config.LogConfig) error {
	if c.File == "" {
		return nil
	}
	logFile = &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   true,
	}
	logOutput = logFile
	return nil
}

func closeLogging() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	logOutput = os.Stderr
	return err
}

func newLogger(component string) *log.Logger {
	return log.New(logOutput, "["+component+"] ", log.LstdFlags)
}
