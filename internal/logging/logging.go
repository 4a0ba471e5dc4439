// Package logging builds the structured slog.Logger used across the
// engine: JSON to stdout always, plus rotating files under logs/ when
// file logging is enabled, mirroring the teacher's POLYBOT_LOG_LEVEL /
// stdout setup extended with CryptoTrade's lumberjack-backed rotation.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	Level       slog.Level
	ToFiles     bool   // write logs/combined.log and logs/error.log in addition to stdout
	LogDir      string // defaults to "logs"
	MaxSizeMB   int    // lumberjack MaxSize, defaults to 100
	MaxAgeDays  int    // lumberjack MaxAge, defaults to 14
	MaxBackups  int    // lumberjack MaxBackups, defaults to 5
}

// New builds a JSON slog.Logger per Options. When ToFiles is set, every
// record is additionally written to logs/combined.log, and records at
// slog.LevelError or above are also written to logs/error.log.
func New(opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	if !opts.ToFiles {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}

	logDir := opts.LogDir
	if logDir == "" {
		logDir = "logs"
	}
	maxSize := opts.MaxSizeMB
	if maxSize == 0 {
		maxSize = 100
	}
	maxAge := opts.MaxAgeDays
	if maxAge == 0 {
		maxAge = 14
	}
	maxBackups := opts.MaxBackups
	if maxBackups == 0 {
		maxBackups = 5
	}

	combined := &lumberjack.Logger{
		Filename:   logDir + "/combined.log",
		MaxSize:    maxSize,
		MaxAge:     maxAge,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	errorFile := &lumberjack.Logger{
		Filename:   logDir + "/error.log",
		MaxSize:    maxSize,
		MaxAge:     maxAge,
		MaxBackups: maxBackups,
		Compress:   true,
	}

	stdoutAndCombined := io.MultiWriter(os.Stdout, combined)

	handler := &levelSplitHandler{
		main:      slog.NewJSONHandler(stdoutAndCombined, handlerOpts),
		errorOnly: slog.NewJSONHandler(errorFile, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	return slog.New(handler)
}
