// Package logging builds the process logger of the gondola command.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the handler and the optional rotating log file.
type Config struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"` // json or text
	IncludeSrc bool   `yaml:"include_src" json:"include_src"`

	LogToFile  bool   `yaml:"log_to_file" json:"log_to_file"`
	Filename   string `yaml:"filename" json:"filename"`
	MaxSize    int    `yaml:"max_size" json:"max_size"` // megabytes
	MaxAge     int    `yaml:"max_age" json:"max_age"`   // days
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to out and, when configured, to a rotating
// file. The closer releases the file.
func New(cfg Config, out io.Writer) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{
		Level:     LevelFromString(cfg.Level),
		AddSource: cfg.IncludeSrc,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
					source.Function = strings.TrimPrefix(source.Function, "github.com/sandrolain/gondola/")
				}
			}
			return a
		},
	}

	var closer io.Closer = nopCloser{}
	w := out
	if cfg.LogToFile && cfg.Filename != "" {
		target := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		w = io.MultiWriter(out, target)
		closer = target
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler), closer
}

// Init installs the logger built from cfg as the slog default. Logs go to
// stderr so that command output on stdout stays clean.
func Init(cfg Config) (*slog.Logger, io.Closer) {
	logger, closer := New(cfg, os.Stderr)
	slog.SetDefault(logger)
	return logger, closer
}

// LevelFromString maps a level name to its slog level; unknown names
// select info.
func LevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
