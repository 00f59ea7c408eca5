package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dqworkbench/dqsync/internal/config"
)

// Logger owns the default slog handler's level and optional rotating file.
type Logger struct {
	level slog.LevelVar
	file  *lumberjack.Logger
}

// ParseLevel maps debug | info | warn | error to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// Setup builds a JSON logger writing to out and, when cfg.File is set, to a
// size-rotated file. The logger is installed as the slog default.
func Setup(cfg config.LoggingConfig, out io.Writer) (*Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	l := &Logger{}
	l.level.Set(lvl)

	w := out
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = io.MultiWriter(out, l.file)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: &l.level})))
	return l, nil
}

// SetLevel changes the level of the installed logger.
func (l *Logger) SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	if lvl != l.level.Level() {
		slog.Info("logging: level changed", "level", lvl.String())
		l.level.Set(lvl)
	}
	return nil
}

// Level returns the current level.
func (l *Logger) Level() slog.Level { return l.level.Level() }

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
